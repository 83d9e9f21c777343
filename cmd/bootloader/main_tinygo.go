//go:build tinygo

// Command bootloader is the device-side entry point: it wires the flash
// gateway, boot-data store, bank validator, USB transport, update state
// machine, and service loop together and hands control to the cooperative
// loop (spec.md §9).
//
// Grounded on the teacher's top-level main.go: same version banner /
// structured-logger / watchdog-configure shape, generalized from the
// WiFi/MQTT wake-cycle loop to the bootloader's event-driven service loop.
package main

import (
	"log/slog"
	"machine"
	"time"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/boot"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/bootdata"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/diag"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/events"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/flash"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/update"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/usbtransport"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/version"
)

// triggerPin is pulled low to request update mode; left floating (pulled
// high by its internal pull-up) to request a normal boot.
var triggerPin = machine.GPIO15

func main() {
	time.Sleep(2 * time.Second) // let USB enumerate before the first log line

	logger := slog.New(diag.NewHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	println("========================================")
	println("  Dual-Bank Bootloader")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("  Built:  ", version.BuildDate)
	println("========================================")

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 8000})
	machine.Watchdog.Start()
	logger.Info("init:watchdog-started")

	triggerPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	gw := flash.NewGateway()
	store := bootdata.NewStore(gw)
	machineUpdate := update.New(gw, store)
	machineUpdate.BootloaderVersion, machineUpdate.HasBootloaderVersion = version.Packed()

	var bus events.Bus
	var queue events.CommandQueue
	var slot events.TransportSlot

	bootFn := func() {
		// Read() already validates the magic (falling back to Default()),
		// so PreferredBank is always meaningful here; a fresh/wiped record
		// carries PreferredBank 0, which SelectBank treats the same as "no
		// preference".
		bd := store.Read()
		bank, vt, ok := boot.SelectBank(gw, bd.PreferredBank, true)
		if !ok {
			logger.Warn("boot:no-valid-bank")
			return
		}
		logger.Info("boot:jumping", "bank", bank, "sp", vt.InitialSP, "reset", vt.ResetVector)
		machine.Watchdog.Update()
		boot.LoadAndJump(layout.BankAddr(bank), boot.DefaultLayout())
	}

	bringup := func() *usbtransport.Transport {
		logger.Info("usb:bringup")
		return usbtransport.New(newCdcDevice())
	}
	machineUpdate.ResetFn = func() {
		logger.Info("update:reboot-requested")
		machine.CPUReset()
	}

	services := []events.Service{
		&events.UsbTransportService{},
		&events.TriggerCheckService{Sample: func() bool { return !triggerPin.Get() }},
		&events.UpdateService{Machine: machineUpdate, Bringup: bringup},
		&events.LedBlinkService{
			Now: func() uint64 { return uint64(time.Now().UnixMicro()) },
			Set: func(on bool) { machine.LED.Set(on) },
		},
	}

	loop := events.NewLoop(services, &bus, &queue, &slot, bootFn)
	for {
		loop.Tick()
		machine.Watchdog.Update()
	}
}
