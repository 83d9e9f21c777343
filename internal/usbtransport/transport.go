// Package usbtransport implements the device-side USB CDC transport:
// polling the USB device, decoding COBS-framed commands, and encoding
// COBS-framed responses (spec.md §4.4).
//
// Grounded on usb_transport.rs: identical RX_BUF_SIZE/TX_BUF_SIZE (2048),
// identical process_byte state machine (delimiter-triggered decode,
// overflow discards the in-progress frame), and identical write_all
// behavior (poll-until-drained on WouldBlock, bounded by MAX_POLLS).
package usbtransport

import (
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

const (
	RXBufSize = 2048
	TXBufSize = 2048

	// MaxPolls bounds write_all's would-block retry loop (spec.md §4.4, P7).
	MaxPolls = 100

	// usbReadBufSize is the size of one best-effort USB bulk read.
	usbReadBufSize = 64
)

// Device is the minimal USB CDC peripheral surface the transport polls.
// The tinygo build backs this with the real USB CDC endpoint; host tests
// back it with an in-memory fake.
type Device interface {
	// Poll services pending USB IRQs/enumeration work. Returns true if any
	// work was done.
	Poll() bool

	// Read performs one best-effort, non-blocking read into buf, returning
	// the number of bytes read (0 if nothing is pending).
	Read(buf []byte) (int, error)

	// Write performs one best-effort, non-blocking write, returning the
	// number of bytes accepted. ErrWouldBlock indicates the caller should
	// Poll and retry.
	Write(buf []byte) (int, error)
}

// ErrWouldBlock is returned by Device.Write when the USB endpoint's TX FIFO
// is full.
var ErrWouldBlock = wouldBlockError{}

type wouldBlockError struct{}

func (wouldBlockError) Error() string { return "usbtransport: would block" }

// Transport owns the RX accumulation buffer and drives frame decode/encode
// over a Device.
type Transport struct {
	dev   Device
	rxBuf [RXBufSize]byte
	rxPos int

	// pending holds a command decoded while draining RX during a Send's
	// would-block retry loop, delivered by the next TryReceive call
	// (spec.md §4.4: "any decoded command is queued as a pending one-slot
	// buffer delivered by the next try_receive").
	pending    wire.Command
	hasPending bool
}

// New returns a Transport driving dev.
func New(dev Device) *Transport {
	return &Transport{dev: dev}
}

// Poll services the USB peripheral.
func (t *Transport) Poll() bool {
	return t.dev.Poll()
}

// TryReceive attempts to decode one complete command from newly read USB
// bytes (or from a frame queued during a prior Send's drain). It returns
// ok=false if no complete frame is available yet.
func (t *Transport) TryReceive() (wire.Command, bool) {
	if t.hasPending {
		cmd := t.pending
		t.hasPending = false
		return cmd, true
	}

	var tmp [usbReadBufSize]byte
	n, err := t.dev.Read(tmp[:])
	if err != nil || n == 0 {
		return wire.Command{}, false
	}

	for _, b := range tmp[:n] {
		if cmd, ok := t.processByte(b); ok {
			return cmd, true
		}
	}
	return wire.Command{}, false
}

// processByte implements the IDLE/ACCUMULATING/DECODE/DISCARD state
// machine described in spec.md §4.4.
func (t *Transport) processByte(b byte) (wire.Command, bool) {
	if b == 0x00 {
		return t.tryDecodeFrame()
	}
	t.appendByte(b)
	return wire.Command{}, false
}

func (t *Transport) appendByte(b byte) {
	if t.rxPos < RXBufSize {
		t.rxBuf[t.rxPos] = b
		t.rxPos++
		return
	}
	// Buffer overflow: discard the current frame and resynchronize at the
	// next delimiter (spec.md §4.4, P6).
	t.rxPos = 0
}

func (t *Transport) tryDecodeFrame() (wire.Command, bool) {
	if t.rxPos == 0 {
		return wire.Command{}, false
	}
	var decoded [RXBufSize]byte
	n, err := wire.CobsDecode(t.rxBuf[:t.rxPos], decoded[:])
	t.rxPos = 0
	if err != nil {
		return wire.Command{}, false
	}
	cmd, err := wire.DecodeCommand(decoded[:n])
	if err != nil {
		return wire.Command{}, false
	}
	return cmd, true
}

// Send encodes resp as a COBS frame and writes it to the device, polling
// and draining RX on would-block, per spec.md §4.4.
func (t *Transport) Send(resp *wire.Response) bool {
	var payload [TXBufSize]byte
	n, err := wire.EncodeResponse(resp, payload[:])
	if err != nil {
		return false
	}

	var frame [wireMaxFrame]byte
	frameLen := wire.CobsEncode(payload[:n], frame[:])
	return t.writeAll(frame[:frameLen])
}

const wireMaxFrame = TXBufSize + TXBufSize/254 + 2

func (t *Transport) writeAll(data []byte) bool {
	offset := 0
	unproductive := 0
	for offset < len(data) {
		n, err := t.dev.Write(data[offset:])
		if err == nil {
			offset += n
			unproductive = 0
			continue
		}
		if err != ErrWouldBlock {
			return false
		}
		unproductive++
		if unproductive > MaxPolls {
			return false
		}
		t.Poll()
		t.drainDuringWrite()
	}
	return true
}

// drainDuringWrite services one inbound read while Send is blocked,
// queuing any decoded command for the next TryReceive (spec.md §4.4
// rationale: "the host may pipeline the next command while the device is
// still writing a response").
func (t *Transport) drainDuringWrite() {
	if t.hasPending {
		return
	}
	var tmp [usbReadBufSize]byte
	n, err := t.dev.Read(tmp[:])
	if err != nil || n == 0 {
		return
	}
	for _, b := range tmp[:n] {
		if cmd, ok := t.processByte(b); ok {
			t.pending = cmd
			t.hasPending = true
			return
		}
	}
}
