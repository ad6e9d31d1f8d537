// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client talks to XboxHDMI peripherals, simulated or real.
package client // import "github.com/go-lpc/xhdmi/client"

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-daq/smbus"
	"github.com/go-lpc/xhdmi/bus"
	"github.com/go-lpc/xhdmi/hdmi"
)

// Conn is a connection to an SMBus.
type Conn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	Close() error
}

var (
	_ Conn = (*bus.Bus)(nil)
	_ Conn = (*smbus.Conn)(nil)
)

var (
	smbusOpen = smbusOpenImpl
)

func smbusOpenImpl(busID int, addr uint8) (Conn, error) {
	return smbus.Open(busID, addr)
}

// OpenI2C opens a connection to the Linux i2c-dev bus busID,
// with the XboxHDMI register file at addr.
func OpenI2C(busID int, addr uint8) (Conn, error) {
	conn, err := smbusOpen(busID, addr)
	if err != nil {
		return nil, fmt.Errorf("client: could not open i2c bus %d (addr=0x%02x): %w", busID, addr, err)
	}
	return conn, nil
}

// Client exposes the XboxHDMI registers and timing window.
type Client struct {
	conn Conn
	regs uint8 // bus address of the register file
	tim  uint8 // bus address of the timing window
}

// New creates a new client over conn.
func New(conn Conn, regs, tim uint8) *Client {
	return &Client{conn: conn, regs: regs, tim: tim}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) read(addr, reg uint8, p []byte) error {
	for i := range p {
		v, err := c.conn.ReadReg(addr, reg+uint8(i))
		if err != nil {
			return fmt.Errorf("client: could not read register 0x%02x of device 0x%02x: %w",
				reg+uint8(i), addr, err,
			)
		}
		p[i] = v
	}
	return nil
}

// write writes p one byte at a time, least significant byte first.
func (c *Client) write(addr, reg uint8, p []byte) error {
	for i, v := range p {
		err := c.conn.WriteReg(addr, reg+uint8(i), v)
		if err != nil {
			return fmt.Errorf("client: could not write register 0x%02x of device 0x%02x: %w",
				reg+uint8(i), addr, err,
			)
		}
	}
	return nil
}

// Field reads the named register.
func (c *Client) Field(name string) ([]byte, error) {
	f, err := hdmi.FieldByName(name)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	p := make([]byte, f.Size)
	err = c.read(c.regs, f.Offset, p)
	return p, err
}

// SetField writes the named register.
func (c *Client) SetField(name string, v []byte) error {
	f, err := hdmi.FieldByName(name)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if len(v) != f.Size {
		return fmt.Errorf("client: invalid size for register %q (got=%d, want=%d)",
			name, len(v), f.Size,
		)
	}
	return c.write(c.regs, f.Offset, v)
}

// FirmwareVersion returns the firmware version reported by the device.
func (c *Client) FirmwareVersion() ([3]byte, error) {
	var v [3]byte
	err := c.read(c.regs, hdmi.RegFirmwareVersion, v[:])
	return v, err
}

// VideoMode returns the video_mode_pre, video_mode_post and
// video_mode_rev registers.
func (c *Client) VideoMode() (pre, post, rev uint32, err error) {
	var p [12]byte
	err = c.read(c.regs, hdmi.RegVideoModePre, p[:])
	if err != nil {
		return 0, 0, 0, err
	}
	pre = binary.LittleEndian.Uint32(p[0:4])
	post = binary.LittleEndian.Uint32(p[4:8])
	rev = binary.LittleEndian.Uint32(p[8:12])
	return pre, post, rev, nil
}

// SetVideoMode writes the video_mode_post register, which selects the
// presets exposed by the timing window.
func (c *Client) SetVideoMode(post uint32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], post)
	return c.write(c.regs, hdmi.RegVideoModePost, p[:])
}

// TimingWindow reads the whole timing window.
func (c *Client) TimingWindow() ([hdmi.WindowSize]byte, error) {
	var win [hdmi.WindowSize]byte
	err := c.read(c.tim, 0, win[:])
	return win, err
}

// Registers reads the whole register file.
func (c *Client) Registers() ([256]byte, error) {
	var mem [256]byte
	for _, f := range hdmi.Fields {
		err := c.read(c.regs, f.Offset, mem[f.Offset:int(f.Offset)+f.Size])
		if err != nil {
			return mem, err
		}
	}
	return mem, nil
}

// Dump writes a description of the device state to w.
func (c *Client) Dump(w io.Writer) error {
	mem, err := c.Registers()
	if err != nil {
		return err
	}
	win, err := c.TimingWindow()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "registers (addr=0x%02x):\n", c.regs)
	for _, f := range hdmi.Fields {
		if f.Access == hdmi.Unused {
			continue
		}
		o := int(f.Offset)
		fmt.Fprintf(w, "  0x%02x %-20s %-2s % x\n", f.Offset, f.Name, f.Access, mem[o:o+f.Size])
	}

	fmt.Fprintf(w, "timing (addr=0x%02x):\n", c.tim)
	for _, sec := range []struct {
		name string
		beg  int
		end  int
	}{
		{"avp", hdmi.WindowAVP, hdmi.WindowCRTC},
		{"crtc", hdmi.WindowCRTC, hdmi.WindowFpDebug0},
		{"fpdebug0", hdmi.WindowFpDebug0, hdmi.WindowSize},
	} {
		fmt.Fprintf(w, "  %s:\n", sec.name)
		for i := sec.beg; i < sec.end; i += 16 {
			end := i + 16
			if end > sec.end {
				end = sec.end
			}
			fmt.Fprintf(w, "    0x%02x: % x\n", i, win[i:end])
		}
	}
	return nil
}
