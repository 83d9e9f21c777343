// Package hostserial is the host side of the COBS-framed command/response
// transport (spec.md §5): it opens a serial port with go.bug.st/serial,
// frames outgoing Commands and deframes incoming Responses, and applies a
// read deadline per exchange.
//
// Grounded on mbrukner-FoenixMgrGo/pkg/connection/serial.go: same
// open-with-Mode/SetReadTimeout/retry-once-on-open-failure shape. The wire
// codec itself (COBS + postcard-style fields) is internal/wire, shared with
// the device side.
package hostserial

import (
	"bufio"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

// DefaultBaud matches the USB-CDC virtual COM port; go.bug.st/serial still
// requires a nominal baud rate even though CDC-ACM ignores it.
const DefaultBaud = 115200

// StartUpdateTimeout is the read timeout the uploader applies to the
// StartUpdate and FinishUpdate exchanges; during FinishUpdate the device
// erases and programs the target bank, which can take noticeably longer
// than other commands.
const StartUpdateTimeout = 60 * time.Second

// DefaultTimeout bounds the other exchanges.
const DefaultTimeout = 5 * time.Second

// Port wraps an open serial.Port and frames Command/Response exchanges
// over it.
type Port struct {
	port   serial.Port
	reader *bufio.Reader
}

// Open opens portName at DefaultBaud with an 8N1 frame and the given read
// timeout, retrying once on the initial open failure as the teacher's
// SerialConnection.Open does ("matching Python behavior").
func Open(portName string, timeout time.Duration) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		if p != nil {
			p.Close()
		}
		p, err = serial.Open(portName, mode)
		if err != nil {
			return nil, fmt.Errorf("hostserial: open %s: %w", portName, err)
		}
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("hostserial: set read timeout: %w", err)
	}
	return &Port{port: p, reader: bufio.NewReaderSize(p, wire.MaxDataBlockSize*2)}, nil
}

// Close closes the underlying serial port.
func (p *Port) Close() error {
	return p.port.Close()
}

// SetTimeout updates the read timeout for subsequent exchanges, e.g. to
// widen it to StartUpdateTimeout before sending StartUpdate.
func (p *Port) SetTimeout(d time.Duration) error {
	return p.port.SetReadTimeout(d)
}

// SendCommand encodes cmd, COBS-frames it with a trailing zero delimiter,
// and writes it to the port.
func (p *Port) SendCommand(cmd *wire.Command) error {
	var payload [wire.MaxDataBlockSize + 32]byte
	n, err := wire.EncodeCommand(cmd, payload[:])
	if err != nil {
		return fmt.Errorf("hostserial: encode command: %w", err)
	}

	encoded := make([]byte, wire.CobsMaxEncodedLen(n))
	encLen := wire.CobsEncode(payload[:n], encoded) // includes the trailing 0x00 delimiter
	frame := encoded[:encLen]

	total := 0
	for total < len(frame) {
		written, err := p.port.Write(frame[total:])
		if err != nil {
			return fmt.Errorf("hostserial: write: %w", err)
		}
		total += written
	}
	return nil
}

// ReceiveResponse reads one zero-delimited COBS frame and decodes it into a
// Response. It blocks until a frame arrives or the port's read timeout
// elapses.
func (p *Port) ReceiveResponse() (wire.Response, error) {
	framed, err := p.reader.ReadBytes(0)
	if err != nil {
		return wire.Response{}, fmt.Errorf("hostserial: read frame: %w", err)
	}
	framed = framed[:len(framed)-1] // drop trailing delimiter

	var decoded [wire.MaxDataBlockSize + 32]byte
	n, err := wire.CobsDecode(framed, decoded[:])
	if err != nil {
		return wire.Response{}, fmt.Errorf("hostserial: cobs decode: %w", err)
	}
	resp, err := wire.DecodeResponse(decoded[:n])
	if err != nil {
		return wire.Response{}, fmt.Errorf("hostserial: decode response: %w", err)
	}
	return resp, nil
}

// Exchange sends cmd and waits for the matching response.
func (p *Port) Exchange(cmd *wire.Command) (wire.Response, error) {
	if err := p.SendCommand(cmd); err != nil {
		return wire.Response{}, err
	}
	return p.ReceiveResponse()
}
