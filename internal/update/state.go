// Package update implements the firmware-update protocol state machine:
// dispatch, RAM staging buffer, CRC verification, and commit (spec.md
// §4.5).
//
// Grounded on the later/final original_source draft (update/state.rs,
// update/storage.rs, update/commands.rs) per spec.md §9's resolution of
// the two-draft Open Question: Standby/InitializingUsb/Ready/ReceivingData,
// with FinishUpdate's commit folded synchronously into one command handler
// rather than a separate Persisting state.
package update

import "github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"

// Kind identifies which UpdateState variant is active.
type Kind uint8

const (
	Standby Kind = iota
	InitializingUsb
	Ready
	ReceivingData
)

// State is the tagged UpdateState (spec.md §3). Only the fields relevant
// to ReceivingData are meaningful outside that variant.
type State struct {
	Kind Kind

	Bank          uint8
	BankAddr      uint32
	ExpectedSize  uint32
	ExpectedCRC   uint32
	Version       uint32
	BytesReceived uint32
}

// AsBootState maps the update state onto the coarse BootState reported in
// a Status response (spec.md §3).
func (s State) AsBootState() wire.BootState {
	if s.Kind == ReceivingData {
		return wire.BootStateReceiving
	}
	return wire.BootStateUpdateMode
}
