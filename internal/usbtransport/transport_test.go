package usbtransport

import (
	"testing"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

// fakeDevice is an in-memory USB CDC stand-in: Write appends to an
// outbound buffer (optionally capped to force WouldBlock), Read drains a
// preloaded inbound buffer.
type fakeDevice struct {
	inbound  []byte
	inPos    int
	outbound []byte

	maxWritePerCall int // 0 = unlimited
	blockAfterBytes int // once outbound reaches this length, Write blocks once
	blockedOnce     bool
	polls           int
}

func (d *fakeDevice) Poll() bool {
	d.polls++
	return true
}

func (d *fakeDevice) Read(buf []byte) (int, error) {
	if d.inPos >= len(d.inbound) {
		return 0, nil
	}
	n := copy(buf, d.inbound[d.inPos:])
	if d.maxWritePerCall > 0 && n > d.maxWritePerCall {
		n = d.maxWritePerCall
	}
	d.inPos += n
	return n, nil
}

func (d *fakeDevice) Write(buf []byte) (int, error) {
	if d.blockAfterBytes > 0 && !d.blockedOnce && len(d.outbound) >= d.blockAfterBytes {
		d.blockedOnce = true
		return 0, ErrWouldBlock
	}
	n := len(buf)
	if d.maxWritePerCall > 0 && n > d.maxWritePerCall {
		n = d.maxWritePerCall
	}
	d.outbound = append(d.outbound, buf[:n]...)
	return n, nil
}

func frameCommand(t *testing.T, cmd wire.Command) []byte {
	t.Helper()
	var payload [256]byte
	n, err := wire.EncodeCommand(&cmd, payload[:])
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	var frame [512]byte
	fn := wire.CobsEncode(payload[:n], frame[:])
	return append([]byte{}, frame[:fn]...)
}

func TestTryReceiveDecodesFramedCommand(t *testing.T) {
	frame := frameCommand(t, wire.Command{Tag: wire.TagGetStatus})
	dev := &fakeDevice{inbound: frame}
	tr := New(dev)

	cmd, ok := tr.TryReceive()
	if !ok {
		t.Fatal("expected a decoded command")
	}
	if cmd.Tag != wire.TagGetStatus {
		t.Fatalf("Tag = %v, want GetStatus", cmd.Tag)
	}
}

// P6: a corrupted frame followed by a valid one resynchronizes at the next
// delimiter rather than bleeding into the following frame.
func TestFrameResyncAfterCorruption(t *testing.T) {
	good := frameCommand(t, wire.Command{Tag: wire.TagReboot})
	// Garbage frame: a lone 0xFF code byte then a delimiter - the code byte
	// announces 254 data bytes that never arrive, so CobsDecode rejects the
	// frame as truncated.
	garbage := []byte{0xFF, 0x00}
	stream := append(append([]byte{}, garbage...), good...)

	dev := &fakeDevice{inbound: stream}
	tr := New(dev)

	cmd, ok := tr.TryReceive()
	for !ok {
		var more bool
		cmd, more = tr.TryReceive()
		if !more {
			t.Fatal("never recovered a valid frame after corruption")
		}
		ok = more
	}
	if cmd.Tag != wire.TagReboot {
		t.Fatalf("Tag = %v, want Reboot", cmd.Tag)
	}
}

func TestSendEncodesFrame(t *testing.T) {
	dev := &fakeDevice{}
	tr := New(dev)
	resp := wire.AckResponse(wire.Ok)
	if !tr.Send(&resp) {
		t.Fatal("Send returned false")
	}
	if len(dev.outbound) == 0 || dev.outbound[len(dev.outbound)-1] != 0x00 {
		t.Fatal("expected a COBS frame terminated by 0x00")
	}
}

// P7: write_all returns in at most MaxPolls iterations of would-block.
func TestWriteAllGivesUpAfterMaxPolls(t *testing.T) {
	alwaysBlock := &alwaysBlockDevice{}
	tr := New(alwaysBlock)
	resp := wire.AckResponse(wire.Ok)
	if tr.Send(&resp) {
		t.Fatal("expected Send to fail when every write would-block forever")
	}
	if alwaysBlock.polls > MaxPolls+1 {
		t.Fatalf("polls = %d, exceeds MaxPolls bound", alwaysBlock.polls)
	}
}

type alwaysBlockDevice struct {
	polls int
}

func (d *alwaysBlockDevice) Poll() bool { d.polls++; return true }
func (d *alwaysBlockDevice) Read(buf []byte) (int, error) {
	return 0, nil
}
func (d *alwaysBlockDevice) Write(buf []byte) (int, error) {
	return 0, ErrWouldBlock
}
