//go:build tinygo

package main

import (
	"machine"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/usbtransport"
)

// cdcDevice adapts TinyGo's USB CDC virtual serial port to the
// usbtransport.Device interface.
type cdcDevice struct{}

func newCdcDevice() *cdcDevice {
	return &cdcDevice{}
}

func (d *cdcDevice) Poll() bool {
	// TinyGo services the USB peripheral via interrupts; there is no
	// separate polling step to drive here.
	return false
}

func (d *cdcDevice) Read(buf []byte) (int, error) {
	n := machine.Serial.Buffered()
	if n == 0 {
		return 0, nil
	}
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return i, nil
		}
		buf[i] = b
	}
	return n, nil
}

func (d *cdcDevice) Write(buf []byte) (int, error) {
	n, err := machine.Serial.Write(buf)
	if err != nil && n == 0 {
		return 0, usbtransport.ErrWouldBlock
	}
	return n, nil
}
