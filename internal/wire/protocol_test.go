package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	cases := []Command{
		{Tag: TagGetStatus},
		{Tag: TagStartUpdate, Bank: 1, Size: 4096, Crc32: 0xDEADBEEF, Version: 0x010203},
		{Tag: TagDataBlock, Offset: 256, Data: []byte{1, 2, 3, 4, 5}},
		{Tag: TagFinishUpdate},
		{Tag: TagReboot},
		{Tag: TagSetActiveBank, Bank: 0},
		{Tag: TagWipeAll},
	}
	for _, cmd := range cases {
		var buf [MaxDataBlockSize + 32]byte
		n, err := EncodeCommand(&cmd, buf[:])
		if err != nil {
			t.Fatalf("EncodeCommand(%v): %v", cmd.Tag, err)
		}
		got, err := DecodeCommand(buf[:n])
		if err != nil {
			t.Fatalf("DecodeCommand(%v): %v", cmd.Tag, err)
		}
		if got.Tag != cmd.Tag || got.Bank != cmd.Bank || got.Size != cmd.Size ||
			got.Crc32 != cmd.Crc32 || got.Version != cmd.Version || got.Offset != cmd.Offset ||
			!bytes.Equal(got.Data, cmd.Data) {
			t.Fatalf("round trip mismatch for %v: got %+v, want %+v", cmd.Tag, got, cmd)
		}
	}
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	cases := []Response{
		{Tag: TagAck, Status: Ok},
		{Tag: TagAck, Status: CrcError},
		{Tag: TagStatus, ActiveBank: 1, VersionA: 0x010000, VersionB: 0x010100, State: BootStateReceiving},
		{Tag: TagStatus, ActiveBank: 0, State: BootStateUpdateMode, BootloaderVersion: 0x020000, HasBootloaderVer: true},
	}
	for _, resp := range cases {
		var buf [64]byte
		n, err := EncodeResponse(&resp, buf[:])
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		got, err := DecodeResponse(buf[:n])
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		if got != resp {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, resp)
		}
	}
}

func TestDecodeCommandTruncated(t *testing.T) {
	if _, err := DecodeCommand(nil); err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestEncodeCommandRejectsOversizedData(t *testing.T) {
	cmd := Command{Tag: TagDataBlock, Data: make([]byte, MaxDataBlockSize+1)}
	var buf [MaxDataBlockSize + 64]byte
	if _, err := EncodeCommand(&cmd, buf[:]); err != ErrDataTooBig {
		t.Fatalf("err = %v, want ErrDataTooBig", err)
	}
}

func TestCobsRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0x00},
		{0x00, 0x01, 0x00, 0x00},
		bytes.Repeat([]byte{0x07}, 300), // exercises the 254-byte block boundary
	}
	for _, src := range cases {
		enc := make([]byte, CobsMaxEncodedLen(len(src)))
		n := CobsEncode(src, enc)
		if enc[n-1] != 0x00 {
			t.Fatalf("CobsEncode(%v): missing trailing delimiter", src)
		}
		dec := make([]byte, n)
		m, err := CobsDecode(enc[:n-1], dec)
		if err != nil {
			t.Fatalf("CobsDecode: %v", err)
		}
		if !bytes.Equal(dec[:m], src) {
			t.Fatalf("round trip mismatch: got %v, want %v", dec[:m], src)
		}
	}
}

func TestCobsEncodedFrameNeverContainsZero(t *testing.T) {
	src := []byte{0x00, 0x01, 0x00, 0x02, 0x00}
	enc := make([]byte, CobsMaxEncodedLen(len(src)))
	n := CobsEncode(src, enc)
	for _, b := range enc[:n-1] {
		if b == 0x00 {
			t.Fatalf("encoded frame contains 0x00 before the delimiter: %v", enc[:n])
		}
	}
}
