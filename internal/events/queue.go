package events

import "github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"

// CommandQueueDepth is the command queue's fixed capacity (spec.md §4.6).
const CommandQueueDepth = 8

// CommandQueue is a bounded, single-producer/single-consumer ring buffer of
// decoded commands: UsbTransportService pushes, UpdateService pops.
// Grounded on crispy-common's heapless::spsc::Queue<Command,8> +
// push_command/pop_command.
type CommandQueue struct {
	buf   [CommandQueueDepth]wire.Command
	head  int
	count int
}

// Push enqueues cmd, reporting false (and dropping it) if the queue is full
// (spec.md §4.6: "overflow drops with a warning").
func (q *CommandQueue) Push(cmd wire.Command) bool {
	if q.count == CommandQueueDepth {
		return false
	}
	tail := (q.head + q.count) % CommandQueueDepth
	q.buf[tail] = cmd
	q.count++
	return true
}

// Pop dequeues the oldest pending command, if any.
func (q *CommandQueue) Pop() (wire.Command, bool) {
	if q.count == 0 {
		return wire.Command{}, false
	}
	cmd := q.buf[q.head]
	q.head = (q.head + 1) % CommandQueueDepth
	q.count--
	return cmd, true
}

// Len reports the number of pending commands.
func (q *CommandQueue) Len() int { return q.count }
