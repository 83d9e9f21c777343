// Package flash implements the flash gateway: guarded read/program/erase of
// XIP flash plus a streaming CRC-32 over flash ranges (spec.md §4.1).
//
// Grounded on flash.rs (ROM helper lookup by two-character code, RAM-resident
// critical sections for erase/program) and on the teacher's ota/ota.go, which
// already wraps the same RP2xxx ROM routines via cgo. This package
// generalizes that wrapper from ota.go's hardcoded two-partition offsets to
// addressable erase(offset, size) / program(offset, src) / read(addr, buf)
// operations over arbitrary ranges, as spec.md requires.
package flash

import "hash/crc32"

// Gateway is the flash-access contract used by the BootData store and the
// update state machine. Implementations differ by build tag: the tinygo
// build talks to vendor ROM routines; the host build is an in-memory fake
// used by tests.
type Gateway interface {
	// Erase erases size bytes starting at the flash-relative offset.
	// offset and size must be FlashSectorSize-aligned.
	Erase(offset uint32, size uint32) error

	// Program writes src to flash starting at the flash-relative offset.
	// offset must be FlashPageSize-aligned; len(src) need not be, callers
	// are responsible for 0xFF-padding partial trailing pages per
	// spec.md §4.5 step 5.
	Program(offset uint32, src []byte) error

	// Read copies len(buf) bytes starting at the absolute XIP address addr
	// into buf.
	Read(absAddr uint32, buf []byte) error
}

// ComputeCRC32 streams size bytes starting at absAddr through gw.Read in
// 256-byte chunks and returns the CRC-32/ISO-HDLC checksum (spec.md §4.1).
//
// hash/crc32's IEEE table is bit-identical to CRC-32/ISO-HDLC (polynomial
// 0xEDB88320 reflected, init/xorout 0xFFFFFFFF); see DESIGN.md for why this
// is the one stdlib-only piece of the flash gateway rather than an imported
// streaming CRC.
func ComputeCRC32(gw Gateway, absAddr uint32, size uint32) (uint32, error) {
	const chunk = 256
	h := crc32.NewIEEE()
	var buf [chunk]byte
	var done uint32
	for done < size {
		n := chunk
		if remaining := size - done; remaining < chunk {
			n = int(remaining)
		}
		if err := gw.Read(absAddr+done, buf[:n]); err != nil {
			return 0, err
		}
		h.Write(buf[:n])
		done += uint32(n)
	}
	return h.Sum32(), nil
}

// AddrToOffset converts an absolute XIP address to a flash-relative offset.
func AddrToOffset(absAddr, flashBase uint32) (uint32, bool) {
	if absAddr < flashBase {
		return 0, false
	}
	return absAddr - flashBase, true
}

// CeilToSector rounds size up to the next FlashSectorSize multiple.
func CeilToSector(size, sectorSize uint32) uint32 {
	if size == 0 {
		return 0
	}
	return ((size + sectorSize - 1) / sectorSize) * sectorSize
}
