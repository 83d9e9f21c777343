package update

import (
	"hash/crc32"
	"testing"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/bootdata"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

// recordingSender captures every Response handed to Send, mirroring the
// "exactly one response per dispatched command" contract (spec.md §4.5).
type recordingSender struct {
	sent []wire.Response
}

func (s *recordingSender) Send(resp *wire.Response) bool {
	s.sent = append(s.sent, *resp)
	return true
}

func (s *recordingSender) last() wire.Response {
	return s.sent[len(s.sent)-1]
}

func newReadyMachine(t *testing.T) (*Machine, *bootdata.Store) {
	t.Helper()
	gw := flash.NewMemGateway(2 * 1024 * 1024)
	store := bootdata.NewStore(gw)
	m := New(gw, store)
	m.state = State{Kind: Ready}
	return m, store
}

func chunks(data []byte, size int) [][]byte {
	var out [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}

// S2: upload to bank A, full happy path. crc is computed with the same
// crc32.ChecksumIEEE (CRC-32/ISO-HDLC) the host uploader uses, so this also
// exercises the host-encoder -> device-verifier path: a host CRC algorithm
// that disagreed with the device's would turn this into an always-CrcError.
func TestFullUploadCommitsBootData(t *testing.T) {
	m, store := newReadyMachine(t)
	s := &recordingSender{}

	firmware := make([]byte, 4096)
	for i := range firmware {
		firmware[i] = byte(i)
	}
	crc := crc32.ChecksumIEEE(firmware)

	m.Dispatch(s, wire.Command{Tag: wire.TagStartUpdate, Bank: 0, Size: uint32(len(firmware)), Crc32: crc, Version: 7})
	if s.last().Status != wire.Ok {
		t.Fatalf("StartUpdate = %v, want Ok", s.last().Status)
	}

	offset := uint32(0)
	for _, c := range chunks(firmware, 1024) {
		m.Dispatch(s, wire.Command{Tag: wire.TagDataBlock, Offset: offset, Data: c})
		if s.last().Status != wire.Ok {
			t.Fatalf("DataBlock at %d = %v, want Ok", offset, s.last().Status)
		}
		offset += uint32(len(c))
	}

	m.Dispatch(s, wire.Command{Tag: wire.TagFinishUpdate})
	if s.last().Status != wire.Ok {
		t.Fatalf("FinishUpdate = %v, want Ok", s.last().Status)
	}

	bd := store.Read()
	if bd.ActiveBank != 0 || bd.VersionA != 7 || bd.CrcA != crc || bd.SizeA != uint32(len(firmware)) {
		t.Fatalf("BootData after commit = %+v", bd)
	}
	if bd.Confirmed != 0 || bd.BootAttempts != 0 {
		t.Fatalf("Confirmed/BootAttempts not reset: %+v", bd)
	}

	// P5: recomputing CRC over the committed bank matches.
	gotCRC, err := flash.ComputeCRC32(flashGatewayOf(m), layout.FWAAddr, bd.SizeA)
	if err != nil || gotCRC != crc {
		t.Fatalf("flash CRC after commit = %#x, %v, want %#x", gotCRC, err, crc)
	}
}

func flashGatewayOf(m *Machine) flash.Gateway { return m.gw }

// S3/P4: a CRC mismatch on FinishUpdate leaves BootData untouched.
func TestFinishUpdateCrcMismatchLeavesBootDataUnchanged(t *testing.T) {
	m, store := newReadyMachine(t)
	s := &recordingSender{}

	baseline := bootdata.Default()
	if err := store.Write(baseline); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	firmware := make([]byte, 1024)
	m.Dispatch(s, wire.Command{Tag: wire.TagStartUpdate, Bank: 0, Size: uint32(len(firmware)), Crc32: 0xDEADBEEF, Version: 1})
	m.Dispatch(s, wire.Command{Tag: wire.TagDataBlock, Offset: 0, Data: firmware})
	m.Dispatch(s, wire.Command{Tag: wire.TagFinishUpdate})

	if s.last().Status != wire.CrcError {
		t.Fatalf("FinishUpdate = %v, want CrcError", s.last().Status)
	}
	if got := store.Read(); got != baseline {
		t.Fatalf("BootData changed after CrcError: got %+v, want %+v", got, baseline)
	}
	if m.State().Kind != Ready {
		t.Fatalf("state after CrcError = %v, want Ready", m.State().Kind)
	}
}

// P3/S4: out-of-order DataBlock is rejected and does not advance progress.
func TestDataBlockRejectsOutOfOrderOffset(t *testing.T) {
	m, _ := newReadyMachine(t)
	s := &recordingSender{}

	m.Dispatch(s, wire.Command{Tag: wire.TagStartUpdate, Bank: 0, Size: 2048, Crc32: 0, Version: 1})
	m.Dispatch(s, wire.Command{Tag: wire.TagDataBlock, Offset: 0, Data: make([]byte, 1024)})
	if s.last().Status != wire.Ok {
		t.Fatalf("first DataBlock = %v, want Ok", s.last().Status)
	}

	m.Dispatch(s, wire.Command{Tag: wire.TagDataBlock, Offset: 2048, Data: nil})
	if s.last().Status != wire.BadCommand {
		t.Fatalf("out-of-order DataBlock = %v, want BadCommand", s.last().Status)
	}
	if m.State().BytesReceived != 1024 {
		t.Fatalf("BytesReceived = %d, want 1024 unchanged", m.State().BytesReceived)
	}
}

// S5: SetActiveBank on an empty bank is rejected.
func TestSetActiveBankRejectsEmptyBank(t *testing.T) {
	m, store := newReadyMachine(t)
	s := &recordingSender{}

	bd := bootdata.Default()
	bd.ActiveBank = 0
	bd.SizeA = 4096
	bd.CrcA = 0x12345678
	if err := store.Write(bd); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	m.Dispatch(s, wire.Command{Tag: wire.TagSetActiveBank, Bank: 1})
	if s.last().Status != wire.BankInvalid {
		t.Fatalf("SetActiveBank(empty bank) = %v, want BankInvalid", s.last().Status)
	}
	if got := store.Read().ActiveBank; got != 0 {
		t.Fatalf("ActiveBank = %d, want unchanged 0", got)
	}
}

func TestDispatchOnlyOneResponsePerCommand(t *testing.T) {
	m, _ := newReadyMachine(t)
	s := &recordingSender{}
	m.Dispatch(s, wire.Command{Tag: wire.TagGetStatus})
	if len(s.sent) != 1 {
		t.Fatalf("expected exactly 1 response, got %d", len(s.sent))
	}
}

func TestWipeAllRequiresReady(t *testing.T) {
	gw := flash.NewMemGateway(2 * 1024 * 1024)
	store := bootdata.NewStore(gw)
	m := New(gw, store)
	s := &recordingSender{}

	m.Dispatch(s, wire.Command{Tag: wire.TagWipeAll})
	if s.last().Status != wire.BadState {
		t.Fatalf("WipeAll from Standby = %v, want BadState", s.last().Status)
	}
}
