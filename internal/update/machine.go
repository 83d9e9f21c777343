package update

import (
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/bootdata"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

// Sender is the subset of usbtransport.Transport the state machine needs
// to emit exactly one response per dispatched command.
type Sender interface {
	Send(resp *wire.Response) bool
}

// Machine runs the update protocol dispatch loop (spec.md §4.5). It owns
// the RAM staging buffer and the persistent BootData handle; one Machine
// exists per device.
type Machine struct {
	state State
	gw    flash.Gateway
	store *bootdata.Store
	ram   ramBuffer

	// BootloaderVersion is the packed-semver value reported in Status
	// responses (spec.md §6), or 0/absent if unset.
	BootloaderVersion    uint32
	HasBootloaderVersion bool

	// ResetFn triggers a system reset. It does not return on success; it
	// is a field (not a direct syscall) so host tests can observe Reboot
	// without actually restarting the process.
	ResetFn func()
}

// New returns a Machine in the Standby state.
func New(gw flash.Gateway, store *bootdata.Store) *Machine {
	return &Machine{gw: gw, store: store, state: State{Kind: Standby}}
}

// State returns the current UpdateState.
func (m *Machine) State() State { return m.state }

// EnterInitializingUsb transitions Standby -> InitializingUsb, called by
// UpdateService when RequestUpdate is published (spec.md §4.6).
func (m *Machine) EnterInitializingUsb() {
	if m.state.Kind == Standby {
		m.state = State{Kind: InitializingUsb}
	}
}

// EnterReady transitions InitializingUsb -> Ready, called once USB
// enumeration completes and the transport has been constructed (spec.md
// §4.6, V-US2).
func (m *Machine) EnterReady() {
	if m.state.Kind == InitializingUsb {
		m.state = State{Kind: Ready}
	}
}

// Dispatch processes one command, emits exactly one response via sender,
// and updates the internal state (spec.md §4.5).
func (m *Machine) Dispatch(sender Sender, cmd wire.Command) {
	var resp wire.Response
	switch cmd.Tag {
	case wire.TagGetStatus:
		resp = m.handleGetStatus()
	case wire.TagStartUpdate:
		resp = m.handleStartUpdate(cmd)
	case wire.TagDataBlock:
		resp = m.handleDataBlock(cmd)
	case wire.TagFinishUpdate:
		resp = m.handleFinishUpdate()
	case wire.TagSetActiveBank:
		resp = m.handleSetActiveBank(cmd)
	case wire.TagWipeAll:
		resp = m.handleWipeAll()
	case wire.TagReboot:
		resp = wire.AckResponse(wire.Ok)
		sender.Send(&resp)
		if m.ResetFn != nil {
			m.ResetFn()
		}
		return
	default:
		resp = wire.AckResponse(wire.BadCommand)
	}
	sender.Send(&resp)
}

func (m *Machine) handleGetStatus() wire.Response {
	bd := m.store.Read()
	return wire.Response{
		Tag:                  wire.TagStatus,
		ActiveBank:           bd.ActiveBank,
		VersionA:             bd.VersionA,
		VersionB:             bd.VersionB,
		State:                m.state.AsBootState(),
		BootloaderVersion:    m.BootloaderVersion,
		HasBootloaderVer:     m.HasBootloaderVersion,
	}
}

func (m *Machine) handleStartUpdate(cmd wire.Command) wire.Response {
	if m.state.Kind != Ready {
		return wire.AckResponse(wire.BadState)
	}
	if cmd.Bank != 0 && cmd.Bank != 1 {
		return wire.AckResponse(wire.BankInvalid)
	}
	if cmd.Size == 0 || cmd.Size > layout.FWRAMBufferSize || cmd.Size > layout.FWBankSize {
		return wire.AckResponse(wire.BankInvalid)
	}

	m.state = State{
		Kind:         ReceivingData,
		Bank:         cmd.Bank,
		BankAddr:     layout.BankAddr(cmd.Bank),
		ExpectedSize: cmd.Size,
		ExpectedCRC:  cmd.Crc32,
		Version:      cmd.Version,
	}
	return wire.AckResponse(wire.Ok)
}

func (m *Machine) handleDataBlock(cmd wire.Command) wire.Response {
	if m.state.Kind != ReceivingData {
		return wire.AckResponse(wire.BadState)
	}
	if cmd.Offset != m.state.BytesReceived {
		return wire.AckResponse(wire.BadCommand)
	}
	if m.state.BytesReceived+uint32(len(cmd.Data)) > m.state.ExpectedSize {
		return wire.AckResponse(wire.BadCommand)
	}

	m.ram.copyChunk(m.state.BytesReceived, cmd.Data)
	m.state.BytesReceived += uint32(len(cmd.Data))
	return wire.AckResponse(wire.Ok)
}

// handleFinishUpdate implements the seven-step commit algorithm verbatim
// from spec.md §4.5 / storage.rs's persist_ram_to_flash +
// commands.rs's handle_finish_update.
func (m *Machine) handleFinishUpdate() wire.Response {
	// Step 1.
	if m.state.Kind != ReceivingData {
		return wire.AckResponse(wire.BadState)
	}
	st := m.state

	// Step 2.
	if st.BytesReceived != st.ExpectedSize {
		return wire.AckResponse(wire.BadCommand)
	}

	// Step 3.
	ramCRC := m.ram.computeCRC32(st.ExpectedSize)
	if ramCRC != st.ExpectedCRC {
		m.state = State{Kind: Ready}
		return wire.AckResponse(wire.CrcError)
	}

	// Steps 4-5.
	if err := m.ram.persistToFlash(m.gw, st.BankAddr, st.ExpectedSize); err != nil {
		m.state = State{Kind: Ready}
		return wire.AckResponse(wire.CrcError)
	}

	// Step 6.
	flashCRC, err := flash.ComputeCRC32(m.gw, st.BankAddr, st.ExpectedSize)
	if err != nil || flashCRC != st.ExpectedCRC {
		m.state = State{Kind: Ready}
		return wire.AckResponse(wire.CrcError)
	}

	// Step 7.
	bd := m.store.Read()
	bd.ActiveBank = st.Bank
	bd.Confirmed = 0
	bd.BootAttempts = 0
	if st.Bank == 0 {
		bd.VersionA, bd.CrcA, bd.SizeA = st.Version, st.ExpectedCRC, st.ExpectedSize
	} else {
		bd.VersionB, bd.CrcB, bd.SizeB = st.Version, st.ExpectedCRC, st.ExpectedSize
	}
	bd.Magic = layout.BootDataMagic
	if err := m.store.Write(bd); err != nil {
		m.state = State{Kind: Ready}
		return wire.AckResponse(wire.CrcError)
	}

	m.state = State{Kind: Ready}
	return wire.AckResponse(wire.Ok)
}

func (m *Machine) handleSetActiveBank(cmd wire.Command) wire.Response {
	if m.state.Kind != Ready {
		return wire.AckResponse(wire.BadState)
	}
	if cmd.Bank != 0 && cmd.Bank != 1 {
		return wire.AckResponse(wire.BankInvalid)
	}

	bd := m.store.Read()
	size := bd.BankSize(cmd.Bank)
	if size == 0 {
		return wire.AckResponse(wire.BankInvalid)
	}
	crc, err := flash.ComputeCRC32(m.gw, layout.BankAddr(cmd.Bank), size)
	if err != nil || crc != bd.BankCRC(cmd.Bank) {
		return wire.AckResponse(wire.CrcError)
	}

	bd.ActiveBank = cmd.Bank
	bd.Confirmed = 0
	bd.BootAttempts = 0
	if err := m.store.Write(bd); err != nil {
		return wire.AckResponse(wire.CrcError)
	}
	return wire.AckResponse(wire.Ok)
}

func (m *Machine) handleWipeAll() wire.Response {
	if m.state.Kind != Ready {
		return wire.AckResponse(wire.BadState)
	}
	if err := m.store.Write(bootdata.Default()); err != nil {
		return wire.AckResponse(wire.BadCommand)
	}
	return wire.AckResponse(wire.Ok)
}
