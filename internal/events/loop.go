package events

// BootFn selects a bank and runs the boot engine on it. It does not return on
// success (spec.md §4.3); it returns only when no bank validated, in which
// case the loop falls back to update mode.
type BootFn func()

// Loop is the single-threaded cooperative service loop (spec.md §4.6).
type Loop struct {
	Services []Service
	Ctx      *Context
	Boot     BootFn
}

// NewLoop wires together a Loop from explicit, process-wide objects,
// matching spec.md §9's instruction to avoid implicit globals.
func NewLoop(services []Service, bus *Bus, queue *CommandQueue, slot *TransportSlot, boot BootFn) *Loop {
	return &Loop{
		Services: services,
		Ctx:      &Context{Bus: bus, Queue: queue, Transport: slot},
		Boot:     boot,
	}
}

// Tick runs every service once, in order, then checks for a pending
// RequestBoot (spec.md §4.6: "After the services run, the loop checks for
// RequestBoot").
func (l *Loop) Tick() {
	for _, svc := range l.Services {
		svc.Tick(l.Ctx)
	}

	if l.Ctx.Bus.Consume(RequestBoot) {
		if l.Boot != nil {
			l.Boot()
		}
		// Boot returned: no bank validated. Fall back to update mode.
		l.Ctx.Bus.Publish(RequestUpdate)
	}
}

// Run calls Tick in an unbounded loop. The device main entry point calls
// Tick in its own loop so it can feed the watchdog between ticks; tests
// drive Tick directly for deterministic step-by-step control.
func (l *Loop) Run() {
	for {
		l.Tick()
	}
}
