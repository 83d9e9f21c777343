package events

import (
	"testing"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/bootdata"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/update"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/usbtransport"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

// nullDevice never has data and never blocks, just enough for
// usbtransport.New to have something to poll.
type nullDevice struct{ polls int }

func (d *nullDevice) Poll() bool                    { d.polls++; return false }
func (d *nullDevice) Read(buf []byte) (int, error)  { return 0, nil }
func (d *nullDevice) Write(buf []byte) (int, error) { return len(buf), nil }

func newTestMachine() *update.Machine {
	gw := flash.NewMemGateway(2 * 1024 * 1024)
	store := bootdata.NewStore(gw)
	return update.New(gw, store)
}

// V-US2: UpdateService only hands ownership of the transport to the slot
// once, on the tick after RequestUpdate moves the machine into
// InitializingUsb, and immediately advances to Ready.
func TestUpdateServiceBringsUpTransportOnce(t *testing.T) {
	var bus Bus
	var queue CommandQueue
	var slot TransportSlot
	ctx := &Context{Bus: &bus, Queue: &queue, Transport: &slot}

	bringupCalls := 0
	m := newTestMachine()
	svc := &UpdateService{
		Machine: m,
		Bringup: func() *usbtransport.Transport {
			bringupCalls++
			return usbtransport.New(&nullDevice{})
		},
	}

	bus.Publish(RequestUpdate)
	svc.Tick(ctx) // consumes RequestUpdate -> InitializingUsb
	if bringupCalls != 0 {
		t.Fatalf("bringupCalls after RequestUpdate tick = %d, want 0", bringupCalls)
	}
	if m.State().Kind != update.InitializingUsb {
		t.Fatalf("state = %v, want InitializingUsb", m.State().Kind)
	}

	svc.Tick(ctx) // InitializingUsb -> bringup -> Ready
	if bringupCalls != 1 {
		t.Fatalf("bringupCalls = %d, want 1", bringupCalls)
	}
	if m.State().Kind != update.Ready {
		t.Fatalf("state = %v, want Ready", m.State().Kind)
	}

	svc.Tick(ctx) // should not bring the transport up again
	if bringupCalls != 1 {
		t.Fatalf("bringupCalls after extra tick = %d, want 1", bringupCalls)
	}
}

// UsbTransportService polls the device and enqueues any decoded command.
func TestUsbTransportServiceEnqueuesDecodedCommand(t *testing.T) {
	var bus Bus
	var queue CommandQueue
	var slot TransportSlot
	ctx := &Context{Bus: &bus, Queue: &queue, Transport: &slot}

	var cmd wire.Command
	cmd.Tag = wire.TagGetStatus
	var payload [32]byte
	n, err := wire.EncodeCommand(&cmd, payload[:])
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	var frame [64]byte
	fn := wire.CobsEncode(payload[:n], frame[:])

	dev := &framedInboundDevice{inbound: append([]byte{}, frame[:fn]...)}
	slot.Set(usbtransport.New(dev))

	svc := UsbTransportService{}
	svc.Tick(ctx)

	got, ok := queue.Pop()
	if !ok {
		t.Fatal("expected a command to be enqueued")
	}
	if got.Tag != wire.TagGetStatus {
		t.Fatalf("Tag = %v, want GetStatus", got.Tag)
	}
}

type framedInboundDevice struct {
	inbound []byte
	pos     int
}

func (d *framedInboundDevice) Poll() bool { return false }
func (d *framedInboundDevice) Read(buf []byte) (int, error) {
	if d.pos >= len(d.inbound) {
		return 0, nil
	}
	n := copy(buf, d.inbound[d.pos:])
	d.pos += n
	return n, nil
}
func (d *framedInboundDevice) Write(buf []byte) (int, error) { return len(buf), nil }

// LedBlinkService toggles only after ledBlinkIntervalMicros has elapsed,
// and not on its very first (arming) tick.
func TestLedBlinkServiceTogglesOnInterval(t *testing.T) {
	var bus Bus
	var queue CommandQueue
	var slot TransportSlot
	ctx := &Context{Bus: &bus, Queue: &queue, Transport: &slot}

	now := uint64(0)
	var state []bool
	svc := &LedBlinkService{
		Now: func() uint64 { return now },
		Set: func(on bool) { state = append(state, on) },
	}

	svc.Tick(ctx) // arms, does not toggle
	if len(state) != 0 {
		t.Fatalf("arming tick set LED %d times, want 0", len(state))
	}

	now += ledBlinkIntervalMicros - 1
	svc.Tick(ctx) // not yet due
	if len(state) != 0 {
		t.Fatalf("premature tick set LED %d times, want 0", len(state))
	}

	now += 1
	svc.Tick(ctx) // exactly due
	if len(state) != 1 || state[0] != true {
		t.Fatalf("state = %v, want a single true toggle", state)
	}
}
