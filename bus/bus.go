// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus implements a simulated SMBus host dispatching framed
// transactions to simulated devices.
package bus // import "github.com/go-lpc/xhdmi/bus"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/go-lpc/xhdmi/hdmi"
)

var (
	// ErrNoDevice is returned when no device answers at an address.
	ErrNoDevice = errors.New("bus: no device")

	// ErrAddrInUse is returned when attaching a device at an already
	// used address.
	ErrAddrInUse = errors.New("bus: address already in use")

	// ErrInvalidAddr is returned for addresses outside the 7-bit range.
	ErrInvalidAddr = errors.New("bus: invalid address")
)

// Bus is a simulated SMBus.
// Transactions are serialized: a transaction is always serviced to
// completion before the next one starts.
type Bus struct {
	mu   sync.Mutex
	msg  *log.Logger
	devs map[uint8]hdmi.Device
}

// New creates a new, empty, bus.
func New(msg *log.Logger) *Bus {
	if msg == nil {
		msg = log.New(io.Discard, "", 0)
	}
	return &Bus{
		msg:  msg,
		devs: make(map[uint8]hdmi.Device),
	}
}

// Attach connects dev to the bus at dev.Addr().
func (bus *Bus) Attach(dev hdmi.Device) error {
	addr := dev.Addr()
	if addr > 0x7f {
		return fmt.Errorf("%w (addr=0x%02x)", ErrInvalidAddr, addr)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, dup := bus.devs[addr]; dup {
		return fmt.Errorf("%w (addr=0x%02x)", ErrAddrInUse, addr)
	}
	bus.devs[addr] = dev
	bus.msg.Printf("attached device at 0x%02x", addr)
	return nil
}

// Detach disconnects the device at addr.
func (bus *Bus) Detach(addr uint8) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, ok := bus.devs[addr]; !ok {
		return fmt.Errorf("%w (addr=0x%02x)", ErrNoDevice, addr)
	}
	delete(bus.devs, addr)
	bus.msg.Printf("detached device at 0x%02x", addr)
	return nil
}

// Devices returns the sorted list of used addresses.
func (bus *Bus) Devices() []uint8 {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.sorted()
}

// Reset resets all the attached devices.
func (bus *Bus) Reset() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for _, addr := range bus.sorted() {
		bus.devs[addr].Reset()
	}
}

// sorted returns the used addresses. bus.mu must be held.
func (bus *Bus) sorted() []uint8 {
	addrs := make([]uint8, 0, len(bus.devs))
	for addr := range bus.devs {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i] < addrs[j]
	})
	return addrs
}

// Transact runs f as a single bus transaction against the device at addr.
func (bus *Bus) Transact(addr uint8, f func(dev hdmi.Device) error) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	dev, ok := bus.devs[addr]
	if !ok {
		return fmt.Errorf("%w (addr=0x%02x)", ErrNoDevice, addr)
	}
	return f(dev)
}

// Quick issues a quick command.
func (bus *Bus) Quick(addr uint8, read bool) error {
	return bus.Transact(addr, func(dev hdmi.Device) error {
		dev.QuickCmd(read)
		return nil
	})
}

// WriteBlock writes p starting at register cmd.
// An empty p only moves the device command pointer.
func (bus *Bus) WriteBlock(addr, cmd uint8, p []byte) error {
	buf := make([]byte, 1+len(p))
	buf[0] = cmd
	copy(buf[1:], p)
	return bus.Transact(addr, func(dev hdmi.Device) error {
		dev.WriteData(buf)
		return nil
	})
}

// WriteReg writes v to register reg.
func (bus *Bus) WriteReg(addr, reg, v uint8) error {
	return bus.WriteBlock(addr, reg, []byte{v})
}

// WriteWord writes the little-endian word v to register reg.
func (bus *Bus) WriteWord(addr, reg uint8, v uint16) error {
	return bus.WriteBlock(addr, reg, []byte{uint8(v), uint8(v >> 8)})
}

// ReceiveByte reads the next byte from the device at addr.
func (bus *Bus) ReceiveByte(addr uint8) (uint8, error) {
	var v uint8
	err := bus.Transact(addr, func(dev hdmi.Device) error {
		v = dev.ReceiveByte()
		return nil
	})
	return v, err
}

// ReadBlock reads len(p) bytes starting at register reg.
func (bus *Bus) ReadBlock(addr, reg uint8, p []byte) error {
	return bus.Transact(addr, func(dev hdmi.Device) error {
		dev.WriteData([]byte{reg})
		for i := range p {
			p[i] = dev.ReceiveByte()
		}
		return nil
	})
}

// ReadReg reads register reg.
func (bus *Bus) ReadReg(addr, reg uint8) (uint8, error) {
	var p [1]byte
	err := bus.ReadBlock(addr, reg, p[:])
	return p[0], err
}

// ReadWord reads the little-endian word at register reg.
func (bus *Bus) ReadWord(addr, reg uint8) (uint16, error) {
	var p [2]byte
	err := bus.ReadBlock(addr, reg, p[:])
	return uint16(p[0]) | uint16(p[1])<<8, err
}

// Close detaches all devices.
func (bus *Bus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.devs = make(map[uint8]hdmi.Device)
	return nil
}
