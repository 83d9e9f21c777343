//go:build !tinygo

package flash

import (
	"errors"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
)

// This file provides a non-tinygo stand-in for the flash Gateway so the
// rest of the module builds and tests under the regular Go toolchain.
// The real implementation talks to vendor ROM routines (flash_tinygo.go,
// tinygo-only).

var ErrUnaligned = errors.New("flash: offset/size not sector/page aligned")

// MemGateway is an in-memory flash Gateway used by tests. It models the flash array as a byte slice pre-filled
// with 0xFF (the erased state), the same convention real NOR flash uses.
type MemGateway struct {
	mem []byte
}

// NewMemGateway returns a MemGateway sized to cover FlashBase..FlashBase+size.
func NewMemGateway(size uint32) *MemGateway {
	m := make([]byte, size)
	for i := range m {
		m[i] = 0xFF
	}
	return &MemGateway{mem: m}
}

func (g *MemGateway) Erase(offset uint32, size uint32) error {
	if offset%layout.FlashSectorSize != 0 || size%layout.FlashSectorSize != 0 {
		return ErrUnaligned
	}
	for i := offset; i < offset+size; i++ {
		g.mem[i] = 0xFF
	}
	return nil
}

func (g *MemGateway) Program(offset uint32, src []byte) error {
	if offset%layout.FlashPageSize != 0 {
		return ErrUnaligned
	}
	copy(g.mem[offset:], src)
	return nil
}

func (g *MemGateway) Read(absAddr uint32, buf []byte) error {
	offset, ok := AddrToOffset(absAddr, layout.FlashBase)
	if !ok {
		return errors.New("flash: address below FlashBase")
	}
	copy(buf, g.mem[offset:offset+uint32(len(buf))])
	return nil
}

// NewGateway is unavailable outside tinygo builds; host tooling constructs
// a MemGateway directly.
