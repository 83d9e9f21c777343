package events

import (
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/update"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/usbtransport"
)

// Service is processed once per service-loop tick. The loop iterates a
// fixed, build-time-known array of services in order (spec.md §9: "prefer
// a closed tagged variant... the set of services is known at build time"),
// rather than a dynamically registered collection.
type Service interface {
	Tick(ctx *Context)
}

// TransportSlot is the process-wide single-slot location the USB
// peripheral's Transport is moved into exactly once, at InitializingUsb ->
// Ready. UsbTransportService and UpdateService both reach it through With,
// a scoped-closure helper standing in for usb_transport.rs's
// with_transport(f) (spec.md §4.6).
type TransportSlot struct {
	tr *usbtransport.Transport
}

// Set installs the transport. Called exactly once.
func (s *TransportSlot) Set(tr *usbtransport.Transport) {
	s.tr = tr
}

// With invokes f with the transport if one has been installed.
func (s *TransportSlot) With(f func(*usbtransport.Transport)) {
	if s.tr != nil {
		f(s.tr)
	}
}

// Context bundles the shared, process-wide objects every service's Tick
// needs: the event bus and the command queue (spec.md §9: "model them as
// explicit top-level objects... not implicit globals").
type Context struct {
	Bus       *Bus
	Queue     *CommandQueue
	Transport *TransportSlot
}

// UsbTransportService polls the USB peripheral and enqueues any decoded
// command (spec.md §4.6 service 1).
type UsbTransportService struct{}

func (UsbTransportService) Tick(ctx *Context) {
	ctx.Transport.With(func(tr *usbtransport.Transport) {
		tr.Poll()
		if cmd, ok := tr.TryReceive(); ok {
			ctx.Queue.Push(cmd)
		}
	})
}

// TriggerSampler reads the board's update-request trigger input (spec.md
// §4.6 service 2: "a dedicated GPIO input").
type TriggerSampler func() bool

// TriggerCheckService samples the trigger exactly once, on its first tick,
// and publishes RequestBoot or RequestUpdate accordingly.
type TriggerCheckService struct {
	Sample  TriggerSampler
	checked bool
}

func (s *TriggerCheckService) Tick(ctx *Context) {
	if s.checked {
		return
	}
	s.checked = true
	if s.Sample != nil && s.Sample() {
		ctx.Bus.Publish(RequestUpdate)
		return
	}
	ctx.Bus.Publish(RequestBoot)
}

// USBBringup constructs the USB CDC transport once ownership of the
// peripheral is handed over; it stands in for usb_transport.rs's
// UsbTransport::new, a one-shot operation run on entering InitializingUsb.
type USBBringup func() *usbtransport.Transport

// UpdateService drives the update protocol state machine (spec.md §4.6
// service 3).
type UpdateService struct {
	Machine *update.Machine
	Bringup USBBringup

	bringupDone bool
}

func (s *UpdateService) Tick(ctx *Context) {
	if ctx.Bus.Consume(RequestUpdate) && s.Machine.State().Kind == update.Standby {
		s.Machine.EnterInitializingUsb()
		return
	}

	if s.Machine.State().Kind == update.InitializingUsb && !s.bringupDone {
		s.bringupDone = true
		if s.Bringup != nil {
			ctx.Transport.Set(s.Bringup())
		}
		s.Machine.EnterReady()
		return
	}

	if cmd, ok := ctx.Queue.Pop(); ok {
		ctx.Transport.With(func(tr *usbtransport.Transport) {
			s.Machine.Dispatch(tr, cmd)
		})
	}
}

// NowMicros is a free-running microsecond clock source (spec.md §4.6
// service 4: "the free-running microsecond timer").
type NowMicros func() uint64

// SetLED drives the board's status LED.
type SetLED func(on bool)

// LedBlinkService toggles the status LED every 500ms.
type LedBlinkService struct {
	Now   NowMicros
	Set   SetLED
	phase bool
	last  uint64
	armed bool
}

const ledBlinkIntervalMicros = 500_000

func (s *LedBlinkService) Tick(ctx *Context) {
	if s.Now == nil || s.Set == nil {
		return
	}
	now := s.Now()
	if !s.armed {
		s.armed = true
		s.last = now
		return
	}
	if now-s.last >= ledBlinkIntervalMicros {
		s.phase = !s.phase
		s.Set(s.phase)
		s.last = now
	}
}
