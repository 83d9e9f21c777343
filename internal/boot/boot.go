// Package boot implements the boot engine: validating a bank's reset
// vector, copying its image into RAM, relocating the vector table, and
// jumping to it (spec.md §4.3).
//
// Grounded directly on crispy-bootloader's boot.rs: VectorTable::read_from,
// is_valid_for_ram_execution/is_in_ram, validate_bank, and load_and_jump's
// copy-then-VTOR-then-stack-then-branch sequence.
package boot

import (
	"encoding/binary"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
)

// VectorTable holds the first two words of a firmware image: the initial
// main stack pointer and the reset vector.
type VectorTable struct {
	InitialSP   uint32
	ResetVector uint32
}

// IsValidForRAMExecution reports whether both words of vt fall inside the
// declared RAM range [RAMStart, RAMEnd) (boot.rs: is_in_ram applied to both
// fields).
func (vt VectorTable) IsValidForRAMExecution() bool {
	return isInRAM(vt.InitialSP) && isInRAM(vt.ResetVector)
}

func isInRAM(addr uint32) bool {
	return addr >= layout.RAMStart && addr < layout.RAMEnd
}

// Reader is the subset of flash.Gateway the boot engine needs to inspect a
// bank's header.
type Reader interface {
	Read(absAddr uint32, buf []byte) error
}

// ReadVectorTable reads the first 8 bytes at addr and decodes them as a
// VectorTable.
func ReadVectorTable(gw Reader, addr uint32) (VectorTable, error) {
	var b [8]byte
	if err := gw.Read(addr, b[:]); err != nil {
		return VectorTable{}, err
	}
	return VectorTable{
		InitialSP:   binary.LittleEndian.Uint32(b[0:4]),
		ResetVector: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ValidateBank reads the vector table at addr and returns it if it is
// loadable (both words point into RAM); ok is false otherwise (spec.md
// §4.3, P2).
func ValidateBank(gw Reader, addr uint32) (vt VectorTable, ok bool) {
	vt, err := ReadVectorTable(gw, addr)
	if err != nil {
		return VectorTable{}, false
	}
	return vt, vt.IsValidForRAMExecution()
}

// SelectBank applies the boot engine's bank selection policy (spec.md
// §4.3): try preferredBank first if present, the other bank second; if no
// preference is recorded, try bank A then bank B. It returns the first bank
// whose vector table validates, or ok=false if neither does.
func SelectBank(gw Reader, preferredBank uint8, havePreference bool) (bank uint8, vt VectorTable, ok bool) {
	order := [2]uint8{0, 1}
	if havePreference && preferredBank == 1 {
		order = [2]uint8{1, 0}
	}
	for _, b := range order {
		if vt, ok := ValidateBank(gw, layout.BankAddr(b)); ok {
			return b, vt, true
		}
	}
	return 0, VectorTable{}, false
}

// Layout carries the addresses LoadAndJump needs, mirroring boot.rs's
// MemoryLayout::from_linker() (spec.md §9: "surface these as opaque integer
// constants fetched once at startup, not as typed pointers").
type Layout struct {
	RAMBase  uint32
	CopySize uint32
	VTORAddr uint32
}

// DefaultLayout returns the Layout built from this board's linker-exported
// addresses.
func DefaultLayout() Layout {
	return Layout{
		RAMBase:  layout.FWRAMBase,
		CopySize: layout.FWCopySize,
		VTORAddr: layout.VTORAddr,
	}
}
