// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hdmi

import (
	"log"

	"github.com/go-lpc/xhdmi/timing"
)

// Layout of the timing window.
const (
	WindowAVP      = 0
	WindowCRTC     = WindowAVP + timing.AVPWidth           // 104
	WindowFpDebug0 = WindowCRTC + timing.CRTCWidth         // 138
	WindowSize     = WindowFpDebug0 + timing.FpDebug0Width // 142
)

// Timing is the XboxHDMI timing peripheral.
// It exposes a read-only window over the presets of the timing tables
// selected by the shared redirect state.
type Timing struct {
	addr    uint8
	msg     *log.Logger
	verbose bool

	cmd   uint8
	redir *Redirect
	tbl   timing.Tables
}

// NewTiming creates a timing window at the provided bus address.
// Creating a timing window resets redir to its default origins.
func NewTiming(addr uint8, redir *Redirect, tbl timing.Tables, opts ...Option) *Timing {
	cfg := newConfig(opts)
	if redir == nil {
		redir = NewRedirect()
	}
	tim := &Timing{
		addr:    addr,
		msg:     cfg.msg,
		verbose: cfg.verbose,
		redir:   redir,
		tbl:     tbl,
	}
	tim.Reset()
	return tim
}

func (tim *Timing) Addr() uint8 { return tim.addr }

// Pointer returns the current value of the command pointer.
func (tim *Timing) Pointer() uint8 { return tim.cmd }

// Origins returns the presets currently exposed.
func (tim *Timing) Origins() Origins { return tim.redir.Load() }

// Reset restores the default origins and rewinds the command pointer.
func (tim *Timing) Reset() {
	tim.redir.Reset()
	tim.cmd = 0
}

func (tim *Timing) QuickCmd(read bool) {
	if tim.verbose {
		tim.msg.Printf("quick-cmd: addr=0x%02x read=%v", tim.addr, read)
	}
}

// WriteData sets the command pointer to p[0].
// The timing window is not writable: any payload is discarded.
func (tim *Timing) WriteData(p []byte) {
	if len(p) == 0 {
		return
	}
	tim.cmd = p[0]
	if tim.verbose && len(p) > 1 {
		tim.msg.Printf("write-data: addr=0x%02x cmd=0x%02x val=0x%02x n=%d (discarded)",
			tim.addr, tim.cmd, p[1], len(p)-1,
		)
	}
}

// ReceiveByte returns the window byte under the command pointer and
// advances the pointer. Bytes past the window read as zero.
func (tim *Timing) ReceiveByte() byte {
	v := tim.byteAt(tim.redir.Load(), int(tim.cmd))
	if tim.verbose {
		tim.msg.Printf("receive-byte: addr=0x%02x cmd=0x%02x val=0x%02x",
			tim.addr, tim.cmd, v,
		)
	}
	tim.cmd++
	return v
}

// Window returns the whole timing window at the current origins.
func (tim *Timing) Window() [WindowSize]byte {
	var (
		o   = tim.redir.Load()
		win [WindowSize]byte
	)
	for i := range win {
		win[i] = tim.byteAt(o, i)
	}
	return win
}

func (tim *Timing) byteAt(o Origins, i int) byte {
	switch {
	case i < WindowCRTC:
		return tim.tbl.AVP.ByteAt(o.Register, i-WindowAVP)
	case i < WindowFpDebug0:
		return tim.tbl.CRTC.ByteAt(o.CRTC, i-WindowCRTC)
	case i < WindowSize:
		return tim.tbl.FpDebug0.ByteAt(o.Debug, i-WindowFpDebug0)
	}
	return 0
}
