// Package diag provides the device-side structured logging handler: a
// slog.Handler that writes to a console writer and additionally keeps the
// last few records in a fixed-capacity ring buffer so they survive a
// RequestBoot/RequestUpdate cycle.
//
// Grounded on the teacher's telemetry.SlogHandler (telemetry/slog.go):
// same wrap-a-TextHandler-and-also-queue-the-record shape. The
// teacher's OTLP/TCP export half of that package is not carried over here
// (see SPEC_FULL.md §2.1 / DESIGN.md): there is no radio on this board to
// export telemetry over, so the ring buffer is kept and the network sink
// is dropped.
package diag

import (
	"context"
	"io"
	"log/slog"
)

// RingCapacity bounds the number of retained log entries.
const RingCapacity = 32

// Entry is one retained, truncated log record.
type Entry struct {
	Level slog.Level
	Body  [96]byte
	Len   uint8
}

// Handler is a slog.Handler bridging console output and the ring buffer.
type Handler struct {
	text  slog.Handler
	level slog.Leveler
	ring  [RingCapacity]Entry
	head  int
	count int
}

// NewHandler returns a Handler writing text-formatted records to w and
// retaining a copy of every INFO-and-above record in its ring buffer.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		text:  slog.NewTextHandler(w, opts),
		level: opts.Level,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)
	if r.Level >= slog.LevelInfo {
		h.remember(r)
	}
	return err
}

func (h *Handler) remember(r slog.Record) {
	var e Entry
	e.Level = r.Level
	n := copy(e.Body[:], r.Message)
	e.Len = uint8(n)

	idx := (h.head + h.count) % RingCapacity
	if h.count < RingCapacity {
		h.count++
	} else {
		h.head = (h.head + 1) % RingCapacity
	}
	h.ring[idx] = e
}

// Recent returns up to n of the most recently retained entries, oldest
// first.
func (h *Handler) Recent(n int) []Entry {
	if n > h.count {
		n = h.count
	}
	out := make([]Entry, 0, n)
	start := h.count - n
	for i := start; i < h.count; i++ {
		out = append(out, h.ring[(h.head+i)%RingCapacity])
	}
	return out
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{text: h.text.WithAttrs(attrs), level: h.level, ring: h.ring, head: h.head, count: h.count}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{text: h.text.WithGroup(name), level: h.level, ring: h.ring, head: h.head, count: h.count}
}
