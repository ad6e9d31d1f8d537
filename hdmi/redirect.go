// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hdmi

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// Origins holds the presets currently exposed by the timing window,
// as row indices into the AVP, CRTC and FpDebug0 tables.
//
// Origins are stored verbatim: they may be negative or past the end
// of their table.
type Origins struct {
	Register int
	CRTC     int
	Debug    int
}

// DefaultOrigins are the origins of a freshly initialized timing window.
var DefaultOrigins = Origins{Register: 0, CRTC: 7, Debug: 0}

func (o Origins) String() string {
	return fmt.Sprintf("origins{avp=%d, crtc=%d, fpdebug0=%d}", o.Register, o.CRTC, o.Debug)
}

// DecodeVideoMode decodes a video_mode_post value into table origins.
// Bits 8-15 hold the 1-based CRTC selector and bits 16-23 the 1-based
// AVP/FpDebug0 selector.
func DecodeVideoMode(v uint32) Origins {
	var (
		crtc = int((v >> 8) & 0xff)
		reg  = int((v >> 16) & 0xff)
	)
	return Origins{
		Register: reg - 1,
		CRTC:     crtc - 1,
		Debug:    reg - 1,
	}
}

// Redirect is the redirect state shared between a register file
// and a timing window.
// Origins are always replaced as a whole.
type Redirect struct {
	cur atomic.Pointer[Origins]
}

// NewRedirect returns a redirect state set to DefaultOrigins.
func NewRedirect() *Redirect {
	var r Redirect
	r.Reset()
	return &r
}

// Load returns the current origins.
func (r *Redirect) Load() Origins {
	return *r.cur.Load()
}

// Store replaces the current origins.
func (r *Redirect) Store(o Origins) {
	r.cur.Store(&o)
}

// Reset restores the default origins.
func (r *Redirect) Reset() {
	r.Store(DefaultOrigins)
}

func (regs *Registers) redirectVideoMode(i uint8) {
	v := binary.LittleEndian.Uint32(regs.mem[RegVideoModePost:])
	o := DecodeVideoMode(v)
	regs.redir.Store(o)
	regs.msg.Printf("video_mode_post=0x%08x: redirect timing window to %v", v, o)
}
