// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hdmi

import (
	"fmt"
	"log"
)

// Handler is invoked after a byte of the register file at index i
// has been written.
type Handler func(regs *Registers, i uint8)

// Registers is the main XboxHDMI peripheral: a 256-byte register file
// accessed through an auto-incrementing command pointer.
type Registers struct {
	addr    uint8
	msg     *log.Logger
	verbose bool

	mem [nRegs]byte
	cmd uint8

	redir    *Redirect
	handlers map[uint8]Handler
}

// NewRegisters creates a register file at the provided bus address.
// Unless WithoutRedirect is passed, completing a write of video_mode_post
// updates redir.
func NewRegisters(addr uint8, redir *Redirect, opts ...Option) *Registers {
	cfg := newConfig(opts)
	regs := &Registers{
		addr:     addr,
		msg:      cfg.msg,
		verbose:  cfg.verbose,
		redir:    redir,
		handlers: make(map[uint8]Handler),
	}

	if cfg.redirect && redir != nil {
		regs.Handle(RegVideoModePost+3, (*Registers).redirectVideoMode)
	}

	regs.Reset()
	return regs
}

// Handle registers h to be run after each write of the byte at index i.
// A nil handler removes any previously registered one.
func (regs *Registers) Handle(i uint8, h Handler) {
	if h == nil {
		delete(regs.handlers, i)
		return
	}
	regs.handlers[i] = h
}

func (regs *Registers) Addr() uint8 { return regs.addr }

// Pointer returns the current value of the command pointer.
func (regs *Registers) Pointer() uint8 { return regs.cmd }

// Reset clears the register file, sets the firmware version and
// rewinds the command pointer.
// The redirect state is left untouched.
func (regs *Registers) Reset() {
	regs.mem = [nRegs]byte{}
	copy(regs.mem[RegFirmwareVersion:], FirmwareVersion[:])
	regs.cmd = 0
}

func (regs *Registers) QuickCmd(read bool) {
	if regs.verbose {
		regs.msg.Printf("quick-cmd: addr=0x%02x read=%v", regs.addr, read)
	}
}

// WriteData sets the command pointer to p[0] and stores the rest of p
// from there, wrapping around past the last register.
func (regs *Registers) WriteData(p []byte) {
	if len(p) == 0 {
		return
	}

	regs.cmd = p[0]
	p = p[1:]
	if len(p) == 0 {
		return
	}

	if regs.verbose {
		regs.msg.Printf("write-data: addr=0x%02x cmd=0x%02x val=0x%02x n=%d",
			regs.addr, regs.cmd, p[0], len(p),
		)
	}

	for k, v := range p {
		i := regs.cmd + uint8(k)
		regs.mem[i] = v
		if h, ok := regs.handlers[i]; ok {
			h(regs, i)
		}
	}
}

// ReceiveByte returns the register under the command pointer and
// advances the pointer.
func (regs *Registers) ReceiveByte() byte {
	v := regs.mem[regs.cmd]
	if regs.verbose {
		regs.msg.Printf("receive-byte: addr=0x%02x cmd=0x%02x val=0x%02x",
			regs.addr, regs.cmd, v,
		)
	}
	regs.cmd++
	return v
}

// Snapshot returns a copy of the register file.
func (regs *Registers) Snapshot() [nRegs]byte {
	return regs.mem
}

// Field returns a copy of the content of the named register.
func (regs *Registers) Field(name string) ([]byte, error) {
	f, err := FieldByName(name)
	if err != nil {
		return nil, err
	}
	o := int(f.Offset)
	return append([]byte(nil), regs.mem[o:o+f.Size]...), nil
}

// SetField writes v to the named register, as a single write transaction.
func (regs *Registers) SetField(name string, v []byte) error {
	f, err := FieldByName(name)
	if err != nil {
		return err
	}
	if len(v) != f.Size {
		return fmt.Errorf("hdmi: invalid size for register %q (got=%d, want=%d)",
			name, len(v), f.Size,
		)
	}
	p := make([]byte, 1+len(v))
	p[0] = f.Offset
	copy(p[1:], v)
	regs.WriteData(p)
	return nil
}
