// Package wire defines the on-the-wire Command/Response protocol exchanged
// between the bootloader and the host uploader over the USB CDC link, and
// the COBS byte-stuffing used to frame it.
//
// Payload encoding is position-defined: a tag byte identifies the variant,
// followed by its fields in declaration order, integers little-endian,
// variable-length byte slices prefixed by a varint length. There is no
// schema exchanged on the wire; both ends are built from this package.
package wire

import (
	"encoding/binary"
	"errors"
)

// MaxDataBlockSize bounds a single DataBlock payload.
const MaxDataBlockSize = 1024

// CommandTag identifies a Command variant on the wire.
type CommandTag byte

const (
	TagGetStatus CommandTag = iota
	TagStartUpdate
	TagDataBlock
	TagFinishUpdate
	TagReboot
	TagSetActiveBank
	TagWipeAll
)

// ResponseTag identifies a Response variant on the wire.
type ResponseTag byte

const (
	TagAck ResponseTag = iota
	TagStatus
)

// AckStatus reports the outcome of a command.
type AckStatus byte

const (
	Ok AckStatus = iota
	BadCommand
	BadState
	BankInvalid
	CrcError
)

func (s AckStatus) String() string {
	switch s {
	case Ok:
		return "Ok"
	case BadCommand:
		return "BadCommand"
	case BadState:
		return "BadState"
	case BankInvalid:
		return "BankInvalid"
	case CrcError:
		return "CrcError"
	default:
		return "Unknown"
	}
}

// BootState is the coarse device mode reported in a Status response.
type BootState byte

const (
	BootStateUpdateMode BootState = iota
	BootStateReceiving
)

func (s BootState) String() string {
	if s == BootStateReceiving {
		return "Receiving"
	}
	return "UpdateMode"
}

// Command is the tagged union of requests the host may send.
type Command struct {
	Tag CommandTag

	// StartUpdate
	Bank    uint8
	Size    uint32
	Crc32   uint32
	Version uint32

	// DataBlock
	Offset uint32
	Data   []byte

	// SetActiveBank reuses Bank above.
}

// Response is the tagged union of replies the device may send.
type Response struct {
	Tag ResponseTag

	// Ack
	Status AckStatus

	// Status (the other variant)
	ActiveBank        uint8
	VersionA          uint32
	VersionB          uint32
	State             BootState
	BootloaderVersion uint32
	HasBootloaderVer  bool
}

var (
	ErrTruncated  = errors.New("wire: truncated payload")
	ErrUnknownTag = errors.New("wire: unknown tag")
	ErrDataTooBig = errors.New("wire: data block exceeds MaxDataBlockSize")
)

// AckResponse is a small convenience constructor used throughout the update
// state machine.
func AckResponse(s AckStatus) Response {
	return Response{Tag: TagAck, Status: s}
}

// EncodeCommand serializes cmd in declaration order into dst, returning the
// number of bytes written.
func EncodeCommand(cmd *Command, dst []byte) (int, error) {
	n := 0
	dst[n] = byte(cmd.Tag)
	n++
	switch cmd.Tag {
	case TagGetStatus, TagFinishUpdate, TagReboot, TagWipeAll:
		// no fields
	case TagStartUpdate:
		dst[n] = cmd.Bank
		n++
		n += putU32(dst[n:], cmd.Size)
		n += putU32(dst[n:], cmd.Crc32)
		n += putU32(dst[n:], cmd.Version)
	case TagDataBlock:
		if len(cmd.Data) > MaxDataBlockSize {
			return 0, ErrDataTooBig
		}
		n += putU32(dst[n:], cmd.Offset)
		m, err := putVarBytes(dst[n:], cmd.Data)
		if err != nil {
			return 0, err
		}
		n += m
	case TagSetActiveBank:
		dst[n] = cmd.Bank
		n++
	default:
		return 0, ErrUnknownTag
	}
	return n, nil
}

// DecodeCommand parses src (a single, already-deframed payload) into a Command.
func DecodeCommand(src []byte) (Command, error) {
	var cmd Command
	if len(src) < 1 {
		return cmd, ErrTruncated
	}
	cmd.Tag = CommandTag(src[0])
	rest := src[1:]
	switch cmd.Tag {
	case TagGetStatus, TagFinishUpdate, TagReboot, TagWipeAll:
		return cmd, nil
	case TagStartUpdate:
		if len(rest) < 1+4+4+4 {
			return cmd, ErrTruncated
		}
		cmd.Bank = rest[0]
		rest = rest[1:]
		cmd.Size, rest = getU32(rest)
		cmd.Crc32, rest = getU32(rest)
		cmd.Version, _ = getU32(rest)
		return cmd, nil
	case TagDataBlock:
		if len(rest) < 4 {
			return cmd, ErrTruncated
		}
		cmd.Offset, rest = getU32(rest)
		data, _, err := getVarBytes(rest)
		if err != nil {
			return cmd, err
		}
		if len(data) > MaxDataBlockSize {
			return cmd, ErrDataTooBig
		}
		cmd.Data = data
		return cmd, nil
	case TagSetActiveBank:
		if len(rest) < 1 {
			return cmd, ErrTruncated
		}
		cmd.Bank = rest[0]
		return cmd, nil
	default:
		return cmd, ErrUnknownTag
	}
}

// EncodeResponse serializes resp in declaration order into dst.
func EncodeResponse(resp *Response, dst []byte) (int, error) {
	n := 0
	dst[n] = byte(resp.Tag)
	n++
	switch resp.Tag {
	case TagAck:
		dst[n] = byte(resp.Status)
		n++
	case TagStatus:
		dst[n] = resp.ActiveBank
		n++
		n += putU32(dst[n:], resp.VersionA)
		n += putU32(dst[n:], resp.VersionB)
		dst[n] = byte(resp.State)
		n++
		if resp.HasBootloaderVer {
			dst[n] = 1
			n++
			n += putU32(dst[n:], resp.BootloaderVersion)
		} else {
			dst[n] = 0
			n++
		}
	default:
		return 0, ErrUnknownTag
	}
	return n, nil
}

// DecodeResponse parses src into a Response.
func DecodeResponse(src []byte) (Response, error) {
	var resp Response
	if len(src) < 1 {
		return resp, ErrTruncated
	}
	resp.Tag = ResponseTag(src[0])
	rest := src[1:]
	switch resp.Tag {
	case TagAck:
		if len(rest) < 1 {
			return resp, ErrTruncated
		}
		resp.Status = AckStatus(rest[0])
		return resp, nil
	case TagStatus:
		if len(rest) < 1+4+4+1+1 {
			return resp, ErrTruncated
		}
		resp.ActiveBank = rest[0]
		rest = rest[1:]
		resp.VersionA, rest = getU32(rest)
		resp.VersionB, rest = getU32(rest)
		resp.State = BootState(rest[0])
		rest = rest[1:]
		has := rest[0]
		rest = rest[1:]
		if has != 0 {
			if len(rest) < 4 {
				return resp, ErrTruncated
			}
			resp.BootloaderVersion, _ = getU32(rest)
			resp.HasBootloaderVer = true
		}
		return resp, nil
	default:
		return resp, ErrUnknownTag
	}
}

func putU32(dst []byte, v uint32) int {
	binary.LittleEndian.PutUint32(dst, v)
	return 4
}

func getU32(src []byte) (uint32, []byte) {
	return binary.LittleEndian.Uint32(src), src[4:]
}

// putVarBytes writes a varint length prefix followed by data.
func putVarBytes(dst []byte, data []byte) (int, error) {
	n := binary.PutUvarint(dst, uint64(len(data)))
	copy(dst[n:], data)
	return n + len(data), nil
}

// getVarBytes reads a varint-length-prefixed byte slice. The returned slice
// aliases src.
func getVarBytes(src []byte) ([]byte, []byte, error) {
	length, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, src, ErrTruncated
	}
	src = src[n:]
	if uint64(len(src)) < length {
		return nil, src, ErrTruncated
	}
	return src[:length], src[length:], nil
}
