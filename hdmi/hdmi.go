// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hdmi simulates the two SMBus peripherals of an XboxHDMI board:
// the main register file and the timing window.
//
// Writing the most significant byte of the video_mode_post register
// retargets the timing window onto other presets of the timing tables.
package hdmi // import "github.com/go-lpc/xhdmi/hdmi"

import (
	"io"
	"log"
	"os"

	"github.com/go-lpc/xhdmi/timing"
)

// Default SMBus addresses of the XboxHDMI peripherals.
const (
	DefaultRegistersAddr = 0x69
	DefaultTimingAddr    = 0x6A
)

// Device is a simulated SMBus responder.
type Device interface {
	// Addr returns the 7-bit bus address of the device.
	Addr() uint8

	// WriteData handles a write transaction.
	// p[0] is the command byte, the rest is the payload.
	WriteData(p []byte)

	// ReceiveByte returns the byte under the command pointer
	// and advances it.
	ReceiveByte() byte

	QuickCmd(read bool)
	Reset()
}

var (
	_ Device = (*Registers)(nil)
	_ Device = (*Timing)(nil)
)

type config struct {
	msg      *log.Logger
	verbose  bool
	redirect bool
}

func newConfig(opts []Option) config {
	cfg := config{
		msg:      log.New(os.Stdout, "xhdmi: ", 0),
		redirect: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a simulated device.
type Option func(*config)

// WithLogger sets the logger used by a device.
// A nil logger discards all messages.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		if msg == nil {
			msg = log.New(io.Discard, "", 0)
		}
		cfg.msg = msg
	}
}

// WithVerbose enables per-transaction traces.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithoutRedirect disables the video_mode_post side effect.
// The register file then behaves as a flat 256-byte memory.
func WithoutRedirect() Option {
	return func(cfg *config) {
		cfg.redirect = false
	}
}

// NewPair creates a register file and a timing window sharing
// the same redirect state, at their default bus addresses.
func NewPair(tbl timing.Tables, opts ...Option) (*Registers, *Timing) {
	redir := NewRedirect()
	regs := NewRegisters(DefaultRegistersAddr, redir, opts...)
	tim := NewTiming(DefaultTimingAddr, redir, tbl, opts...)
	return regs, tim
}
