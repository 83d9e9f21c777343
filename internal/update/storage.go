package update

import (
	"errors"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
)

var (
	errBankUnmapped = errors.New("update: bank address below FlashBase")
	errRAMReadOnly  = errors.New("update: RAM staging reader is read-only")
)

// ramBuffer is the fixed-size RAM staging buffer firmware data is copied
// into during ReceivingData, overlaid on the same region the boot engine
// later copies a validated bank into (spec.md §5: "unused while the
// bootloader runs"). Grounded on storage.rs's fw_ram_buffer_ptr/size.
type ramBuffer struct {
	buf [layout.FWRAMBufferSize]byte
}

func (r *ramBuffer) copyChunk(offset uint32, data []byte) {
	copy(r.buf[offset:], data)
}

// computeCRC32 streams size bytes out of the RAM buffer through the same
// CRC-32/ISO-HDLC routine the flash gateway uses, so RAM and flash
// verification agree bit-for-bit (spec.md §4.5 steps 3 and 6).
func (r *ramBuffer) computeCRC32(size uint32) uint32 {
	gw := ramReader{r}
	crc, _ := flash.ComputeCRC32(gw, 0, size)
	return crc
}

// ramReader adapts ramBuffer to flash.Gateway's Read so ComputeCRC32 can be
// reused verbatim for both RAM and flash ranges. Erase and Program complete
// the flash.Gateway method set and always fail.
type ramReader struct{ r *ramBuffer }

func (rr ramReader) Read(absAddr uint32, buf []byte) error {
	copy(buf, rr.r.buf[absAddr:])
	return nil
}

func (ramReader) Erase(offset uint32, size uint32) error { return errRAMReadOnly }

func (ramReader) Program(offset uint32, src []byte) error { return errRAMReadOnly }

// persistToFlash erases the target bank and programs the first size bytes
// of the RAM buffer into it, batching whole pages and 0xFF-padding a
// trailing partial page so no stale RAM bytes beyond the firmware's actual
// length leak into flash (spec.md §4.5 steps 4-5; storage.rs:
// persist_ram_to_flash).
func (r *ramBuffer) persistToFlash(gw flash.Gateway, bankAddr uint32, size uint32) error {
	offset, ok := flash.AddrToOffset(bankAddr, layout.FlashBase)
	if !ok {
		return errBankUnmapped
	}

	eraseSize := flash.CeilToSector(size, layout.FlashSectorSize)
	if err := gw.Erase(offset, eraseSize); err != nil {
		return err
	}

	fullPages := size / layout.FlashPageSize
	var pageOffset uint32
	for ; pageOffset < fullPages*layout.FlashPageSize; pageOffset += layout.FlashPageSize {
		if err := gw.Program(offset+pageOffset, r.buf[pageOffset:pageOffset+layout.FlashPageSize]); err != nil {
			return err
		}
	}

	if trailing := size - pageOffset; trailing > 0 {
		var page [layout.FlashPageSize]byte
		for i := range page {
			page[i] = 0xFF
		}
		copy(page[:], r.buf[pageOffset:size])
		if err := gw.Program(offset+pageOffset, page[:]); err != nil {
			return err
		}
	}

	return nil
}
