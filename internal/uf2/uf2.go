// Package uf2 encodes and decodes the UF2 flashing container format used to
// ship firmware images to the upload tool (spec.md §7, S6).
//
// Grounded on original_source/crispy-upload/src/commands.rs's bin2uf2() for
// the encoder (same constants, same 32-byte-header/256-byte-payload/220-byte
// padding/4-byte-footer block layout) and on the teacher's
// cmd/cli/main.go extractUF2Binary/readFirmwareInfo for the decoder (same
// two-pass min/max target address reconstruction).
package uf2

import (
	"encoding/binary"
	"fmt"
)

const (
	magicStart0 = 0x0A324655
	magicStart1 = 0x9E5D5157
	magicEnd    = 0x0AB16F30
	flagFamilyIDPresent = 0x00002000

	// PayloadSize is the number of firmware bytes carried per 512-byte block.
	PayloadSize = 256
	BlockSize   = 512

	headerSize = 32
	footerSize = 4
)

// Family IDs for the RP2040/RP2350 family, as reported by the bootrom.
const (
	FamilyRP2040       = 0xe48bff56
	FamilyRP2350ARMS   = 0xe48bff57
	FamilyRP2350ARMNS  = 0xe48bff58
)

// Encode packages raw firmware bytes into a UF2 container addressed starting
// at baseAddress, tagged with familyID.
func Encode(data []byte, baseAddress uint32, familyID uint32) []byte {
	numBlocks := (len(data) + PayloadSize - 1) / PayloadSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	out := make([]byte, 0, numBlocks*BlockSize)

	for i := 0; i < numBlocks; i++ {
		offset := i * PayloadSize
		end := offset + PayloadSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		var hdr [headerSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], magicStart0)
		binary.LittleEndian.PutUint32(hdr[4:8], magicStart1)
		binary.LittleEndian.PutUint32(hdr[8:12], flagFamilyIDPresent)
		binary.LittleEndian.PutUint32(hdr[12:16], baseAddress+uint32(offset))
		binary.LittleEndian.PutUint32(hdr[16:20], PayloadSize)
		binary.LittleEndian.PutUint32(hdr[20:24], uint32(i))
		binary.LittleEndian.PutUint32(hdr[24:28], uint32(numBlocks))
		binary.LittleEndian.PutUint32(hdr[28:32], familyID)
		out = append(out, hdr[:]...)

		out = append(out, chunk...)
		out = append(out, make([]byte, PayloadSize-len(chunk))...)

		out = append(out, make([]byte, BlockSize-headerSize-PayloadSize-footerSize)...)

		var ftr [footerSize]byte
		binary.LittleEndian.PutUint32(ftr[:], magicEnd)
		out = append(out, ftr[:]...)
	}
	return out
}

// BlockInfo mirrors the fields of a decoded UF2 block header that callers
// outside this package need (readFirmwareInfo's reporting use case).
type BlockInfo struct {
	Flags        uint32
	TargetAddr   uint32
	PayloadSize  uint32
	BlockNo      uint32
	NumBlocks    uint32
	FamilyID     uint32
	FamilyIDSet  bool
}

// DecodeBlockInfo parses the 512-byte block at index 0 of a UF2 image for
// display purposes, without reconstructing the full binary.
func DecodeBlockInfo(uf2Data []byte) (BlockInfo, error) {
	if len(uf2Data) < BlockSize {
		return BlockInfo{}, fmt.Errorf("uf2: file too small (%d bytes)", len(uf2Data))
	}
	block := uf2Data[:BlockSize]
	if err := checkMagic(block); err != nil {
		return BlockInfo{}, err
	}
	flags := binary.LittleEndian.Uint32(block[8:12])
	info := BlockInfo{
		Flags:       flags,
		TargetAddr:  binary.LittleEndian.Uint32(block[12:16]),
		PayloadSize: binary.LittleEndian.Uint32(block[16:20]),
		BlockNo:     binary.LittleEndian.Uint32(block[20:24]),
		NumBlocks:   binary.LittleEndian.Uint32(block[24:28]),
		FamilyIDSet: flags&flagFamilyIDPresent != 0,
	}
	if info.FamilyIDSet {
		info.FamilyID = binary.LittleEndian.Uint32(block[28:32])
	}
	return info, nil
}

// Decode reconstructs the contiguous raw binary a UF2 container describes,
// mirroring extractUF2Binary's two-pass min/max addressing approach so that
// blocks need not appear in address order. Each block contributes its full
// payload_size bytes, so an image written by Encode comes back zero-padded
// to a multiple of PayloadSize.
func Decode(uf2Data []byte) ([]byte, error) {
	if len(uf2Data) < BlockSize {
		return nil, fmt.Errorf("uf2: file too small to be UF2")
	}
	if len(uf2Data)%BlockSize != 0 {
		return nil, fmt.Errorf("uf2: file size %d not a multiple of %d", len(uf2Data), BlockSize)
	}
	numBlocks := len(uf2Data) / BlockSize

	var minAddr, maxAddr uint32 = 0xFFFFFFFF, 0
	for i := 0; i < numBlocks; i++ {
		block := uf2Data[i*BlockSize : (i+1)*BlockSize]
		if err := checkMagic(block); err != nil {
			return nil, fmt.Errorf("uf2: block %d: %w", i, err)
		}
		targetAddr := binary.LittleEndian.Uint32(block[12:16])
		payloadSize := binary.LittleEndian.Uint32(block[16:20])
		if targetAddr < minAddr {
			minAddr = targetAddr
		}
		if targetAddr+payloadSize > maxAddr {
			maxAddr = targetAddr + payloadSize
		}
	}

	outSize := maxAddr - minAddr
	const sanityMax = 4 * 1024 * 1024
	if outSize > sanityMax {
		return nil, fmt.Errorf("uf2: reconstructed image too large (%d bytes)", outSize)
	}
	out := make([]byte, outSize)

	for i := 0; i < numBlocks; i++ {
		block := uf2Data[i*BlockSize : (i+1)*BlockSize]
		targetAddr := binary.LittleEndian.Uint32(block[12:16])
		payloadSize := binary.LittleEndian.Uint32(block[16:20])
		if payloadSize > BlockSize-headerSize-footerSize {
			payloadSize = BlockSize - headerSize - footerSize
		}
		offset := targetAddr - minAddr
		copy(out[offset:offset+payloadSize], block[headerSize:headerSize+int(payloadSize)])
	}
	return out, nil
}

func checkMagic(block []byte) error {
	magic1 := binary.LittleEndian.Uint32(block[0:4])
	magic2 := binary.LittleEndian.Uint32(block[4:8])
	magic3 := binary.LittleEndian.Uint32(block[BlockSize-4 : BlockSize])
	if magic1 != magicStart0 || magic2 != magicStart1 || magic3 != magicEnd {
		return fmt.Errorf("invalid UF2 magic")
	}
	return nil
}
