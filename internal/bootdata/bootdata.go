// Package bootdata implements the BootData store: the persistent 32-byte
// metadata record describing which bank is active and each bank's
// integrity metadata (spec.md §4.2).
//
// Grounded on flash.rs's read_boot_data/write_boot_data (erase sector, then
// program one 0xFF-padded 256-byte page) and on boot_data_tests.rs for the
// exact invariants a round trip must satisfy.
package bootdata

import (
	"encoding/binary"
	"errors"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
)

var errUnmappedBootData = errors.New("bootdata: BootDataAddr below FlashBase")

// Size is the packed, little-endian, on-flash size of BootData (spec.md §3).
const Size = 32

// BootData is the persistent boot metadata record.
type BootData struct {
	Magic         uint32
	ActiveBank    uint8
	Confirmed     uint8
	BootAttempts  uint8
	PreferredBank uint8 // repurposes the struct's reserved pad byte; see DESIGN.md
	VersionA      uint32
	VersionB      uint32
	CrcA          uint32
	CrcB          uint32
	SizeA         uint32
	SizeB         uint32
}

// Default returns a BootData with a valid magic and every other field
// zeroed, the record `Read` substitutes when the stored magic does not
// match (invariant V-BD1).
func Default() BootData {
	return BootData{Magic: layout.BootDataMagic}
}

// Bytes packs bd into its 32-byte on-flash representation.
func (bd BootData) Bytes() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint32(b[0:4], bd.Magic)
	b[4] = bd.ActiveBank
	b[5] = bd.Confirmed
	b[6] = bd.BootAttempts
	b[7] = bd.PreferredBank // repurposes the reserved pad byte; see DESIGN.md
	binary.LittleEndian.PutUint32(b[8:12], bd.VersionA)
	binary.LittleEndian.PutUint32(b[12:16], bd.VersionB)
	binary.LittleEndian.PutUint32(b[16:20], bd.CrcA)
	binary.LittleEndian.PutUint32(b[20:24], bd.CrcB)
	binary.LittleEndian.PutUint32(b[24:28], bd.SizeA)
	binary.LittleEndian.PutUint32(b[28:32], bd.SizeB)
	return b
}

// fromBytes unpacks a 32-byte on-flash record.
func fromBytes(b [Size]byte) BootData {
	return BootData{
		Magic:         binary.LittleEndian.Uint32(b[0:4]),
		ActiveBank:    b[4],
		Confirmed:     b[5],
		BootAttempts:  b[6],
		PreferredBank: b[7],
		VersionA:      binary.LittleEndian.Uint32(b[8:12]),
		VersionB:      binary.LittleEndian.Uint32(b[12:16]),
		CrcA:          binary.LittleEndian.Uint32(b[16:20]),
		CrcB:          binary.LittleEndian.Uint32(b[20:24]),
		SizeA:         binary.LittleEndian.Uint32(b[24:28]),
		SizeB:         binary.LittleEndian.Uint32(b[28:32]),
	}
}

// BankAddr returns the firmware address of bank 0 (A) or 1 (B).
func (bd BootData) BankAddr(bank uint8) uint32 {
	return layout.BankAddr(bank)
}

// BankSize returns the recorded size of the given bank.
func (bd BootData) BankSize(bank uint8) uint32 {
	if bank == 0 {
		return bd.SizeA
	}
	return bd.SizeB
}

// BankCRC returns the recorded CRC-32 of the given bank.
func (bd BootData) BankCRC(bank uint8) uint32 {
	if bank == 0 {
		return bd.CrcA
	}
	return bd.CrcB
}

// Store reads and writes BootData through a flash.Gateway.
type Store struct {
	gw Gateway
}

// Gateway is the subset of flash.Gateway the BootData store needs.
type Gateway interface {
	Erase(offset, size uint32) error
	Program(offset uint32, src []byte) error
	Read(absAddr uint32, buf []byte) error
}

// NewStore returns a Store backed by gw.
func NewStore(gw flash.Gateway) *Store {
	return &Store{gw: gw}
}

// Read returns the stored BootData, or Default() if the stored magic does
// not match (invariant V-BD1).
func (s *Store) Read() BootData {
	var b [Size]byte
	if err := s.gw.Read(layout.BootDataAddr, b[:]); err != nil {
		return Default()
	}
	bd := fromBytes(b)
	if bd.Magic != layout.BootDataMagic {
		return Default()
	}
	return bd
}

// Write erases the metadata sector and programs one 256-byte page holding
// bd, padded with 0xFF. There is no in-place mutation: every write is a
// single atomic erase+program of the whole sector.
func (s *Store) Write(bd BootData) error {
	offset, ok := flash.AddrToOffset(layout.BootDataAddr, layout.FlashBase)
	if !ok {
		return errUnmappedBootData
	}
	if err := s.gw.Erase(offset, layout.FlashSectorSize); err != nil {
		return err
	}
	var page [layout.FlashPageSize]byte
	for i := range page {
		page[i] = 0xFF
	}
	b := bd.Bytes()
	copy(page[:], b[:])
	return s.gw.Program(offset, page[:])
}
