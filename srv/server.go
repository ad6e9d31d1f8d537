// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package srv exposes simulated XboxHDMI peripherals as a TDAQ process.
package srv // import "github.com/go-lpc/xhdmi/srv"

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/xhdmi/bus"
	"github.com/go-lpc/xhdmi/hdmi"
	"github.com/go-lpc/xhdmi/timing"
	"github.com/go-lpc/xhdmi/timingdb"
	"golang.org/x/xerrors"
)

type presetsDB interface {
	LastPreset(ctx context.Context) (string, error)
	Presets(ctx context.Context, name string) (timing.Tables, error)
	Close() error
}

var (
	openDB = openTimingDB
)

func openTimingDB(name string) (presetsDB, error) {
	return timingdb.Open(name)
}

type config struct {
	tables  string        // YAML presets file
	db      string        // presets database
	preset  string        // preset set to load from db
	freq    time.Duration // timing snapshots period
	verbose bool
}

// Option configures a Server.
type Option func(*config)

// WithTables loads the timing tables from the named YAML file.
func WithTables(fname string) Option {
	return func(cfg *config) {
		cfg.tables = fname
	}
}

// WithDB loads the timing tables from the presets database dbname.
// An empty preset name selects the last registered preset set.
func WithDB(dbname, preset string) Option {
	return func(cfg *config) {
		cfg.db = dbname
		cfg.preset = preset
	}
}

// WithFreq sets the period of the timing window snapshots.
func WithFreq(freq time.Duration) Option {
	return func(cfg *config) {
		cfg.freq = freq
	}
}

// WithVerbose enables per-transaction traces of the simulated devices.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// Server is a TDAQ process hosting a simulated XboxHDMI board.
//
// Write transactions are received on an input stream, timing window
// snapshots are published on an output stream while the run is started.
type Server struct {
	name string
	cfg  config

	mu   sync.Mutex
	tbl  timing.Tables
	bus  *bus.Bus
	regs *hdmi.Registers
	tim  *hdmi.Timing

	running bool
	seq     uint32
	data    chan []byte
}

// New creates a new XboxHDMI TDAQ process.
func New(name string, opts ...Option) *Server {
	cfg := config{
		freq: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		name: name,
		cfg:  cfg,
		tbl:  timing.Default(),
		data: make(chan []byte, 1024),
	}
}

func (srv *Server) loadTables(ctx tdaq.Context) (timing.Tables, error) {
	switch {
	case srv.cfg.tables != "":
		ctx.Msg.Infof("loading timing tables from %q...", srv.cfg.tables)
		return timing.Open(srv.cfg.tables)

	case srv.cfg.db != "":
		db, err := openDB(srv.cfg.db)
		if err != nil {
			return timing.Tables{}, xerrors.Errorf("could not open presets db %q: %w", srv.cfg.db, err)
		}
		defer db.Close()

		preset := srv.cfg.preset
		if preset == "" {
			preset, err = db.LastPreset(ctx.Ctx)
			if err != nil {
				return timing.Tables{}, xerrors.Errorf("could not find last preset: %w", err)
			}
		}
		ctx.Msg.Infof("loading timing tables from preset %q of db %q...", preset, srv.cfg.db)
		return db.Presets(ctx.Ctx, preset)
	}

	ctx.Msg.Infof("loading default timing tables...")
	return timing.Default(), nil
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	tbl, err := srv.loadTables(ctx)
	if err != nil {
		ctx.Msg.Errorf("could not load timing tables: %+v", err)
		return xerrors.Errorf("could not load timing tables: %w", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.tbl = tbl
	ctx.Msg.Infof("timing tables: avp=%d, crtc=%d, fpdebug0=%d presets",
		tbl.AVP.Len(), tbl.CRTC.Len(), tbl.FpDebug0.Len(),
	)
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bus != nil {
		_ = srv.bus.Close()
	}

	msg := log.New(msgWriter{ctx.Msg}, "", 0)
	srv.regs, srv.tim = hdmi.NewPair(
		srv.tbl,
		hdmi.WithLogger(msg),
		hdmi.WithVerbose(srv.cfg.verbose),
	)
	srv.bus = bus.New(msg)
	for _, dev := range []hdmi.Device{srv.regs, srv.tim} {
		err := srv.bus.Attach(dev)
		if err != nil {
			ctx.Msg.Errorf("could not attach device 0x%02x: %+v", dev.Addr(), err)
			return xerrors.Errorf("could not attach device 0x%02x: %w", dev.Addr(), err)
		}
	}
	srv.reset()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bus == nil {
		return xerrors.Errorf("could not reset: board not initialized")
	}
	srv.bus.Reset()
	srv.reset()
	return nil
}

// reset drains pending snapshots. srv.mu must be held.
func (srv *Server) reset() {
	srv.running = false
	srv.seq = 0
	for {
		select {
		case <-srv.data:
		default:
			return
		}
	}
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bus == nil {
		return xerrors.Errorf("could not start: board not initialized")
	}
	srv.running = true
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d", srv.seq)
	srv.running = false
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.running = false
	if srv.bus != nil {
		_ = srv.bus.Close()
		srv.bus = nil
	}
	return nil
}

// Transaction is an SMBus write transaction, as received on the
// input stream.
type Transaction struct {
	Addr uint8
	Data []byte // command byte, then payload
}

// EncodeTransaction encodes tx into a frame body.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(uint32(tx.Addr))
	enc.WriteStr(string(tx.Data))
	if err := enc.Err(); err != nil {
		return nil, xerrors.Errorf("could not encode transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTransaction decodes a frame body into a transaction.
func DecodeTransaction(p []byte) (Transaction, error) {
	dec := tdaq.NewDecoder(bytes.NewReader(p))
	addr := dec.ReadU32()
	data := dec.ReadStr()
	if err := dec.Err(); err != nil {
		return Transaction{}, xerrors.Errorf("could not decode transaction: %w", err)
	}
	if addr > 0x7f {
		return Transaction{}, xerrors.Errorf("invalid transaction address 0x%x", addr)
	}
	if len(data) == 0 {
		return Transaction{}, xerrors.Errorf("empty transaction for device 0x%02x", addr)
	}
	return Transaction{Addr: uint8(addr), Data: []byte(data)}, nil
}

// OnTransaction applies a write transaction received on the input stream.
func (srv *Server) OnTransaction(ctx tdaq.Context, src tdaq.Frame) error {
	tx, err := DecodeTransaction(src.Body)
	if err != nil {
		ctx.Msg.Errorf("could not decode transaction: %+v", err)
		return err
	}

	srv.mu.Lock()
	b := srv.bus
	srv.mu.Unlock()

	if b == nil {
		return xerrors.Errorf("could not apply transaction: board not initialized")
	}

	err = b.WriteBlock(tx.Addr, tx.Data[0], tx.Data[1:])
	if err != nil {
		ctx.Msg.Errorf("could not apply transaction: %+v", err)
		return xerrors.Errorf("could not apply transaction: %w", err)
	}
	return nil
}

// Snapshot is a timing window snapshot, as published on the output stream.
type Snapshot struct {
	Seq     uint32
	Origins hdmi.Origins
	Window  [hdmi.WindowSize]byte
}

// EncodeSnapshot encodes a snapshot into a frame body.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(s.Seq)
	enc.WriteU32(uint32(int32(s.Origins.Register)))
	enc.WriteU32(uint32(int32(s.Origins.CRTC)))
	enc.WriteU32(uint32(int32(s.Origins.Debug)))
	enc.WriteStr(string(s.Window[:]))
	if err := enc.Err(); err != nil {
		return nil, xerrors.Errorf("could not encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot decodes a frame body into a snapshot.
func DecodeSnapshot(p []byte) (Snapshot, error) {
	var (
		s   Snapshot
		dec = tdaq.NewDecoder(bytes.NewReader(p))
	)
	s.Seq = dec.ReadU32()
	s.Origins.Register = int(int32(dec.ReadU32()))
	s.Origins.CRTC = int(int32(dec.ReadU32()))
	s.Origins.Debug = int(int32(dec.ReadU32()))
	win := dec.ReadStr()
	if err := dec.Err(); err != nil {
		return s, xerrors.Errorf("could not decode snapshot: %w", err)
	}
	if len(win) != hdmi.WindowSize {
		return s, xerrors.Errorf("invalid snapshot window size (got=%d, want=%d)", len(win), hdmi.WindowSize)
	}
	copy(s.Window[:], win)
	return s, nil
}

func (srv *Server) snapshot() ([]byte, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running || srv.tim == nil {
		return nil, nil
	}

	s := Snapshot{
		Seq:     srv.seq,
		Origins: srv.tim.Origins(),
		Window:  srv.tim.Window(),
	}
	raw, err := EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	srv.seq++
	return raw, nil
}

// Timing publishes timing window snapshots on the output stream.
func (srv *Server) Timing(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Run takes timing window snapshots while the run is started.
func (srv *Server) Run(ctx tdaq.Context) error {
	tck := time.NewTicker(srv.cfg.freq)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tck.C:
			raw, err := srv.snapshot()
			if err != nil {
				ctx.Msg.Errorf("could not take timing snapshot: %+v", err)
				continue
			}
			if raw == nil {
				continue
			}
			select {
			case srv.data <- raw:
			default:
				ctx.Msg.Warnf("dropping timing snapshot: output queue full")
			}
		}
	}
}

// msgWriter forwards log lines of the simulated devices to a TDAQ
// message stream.
type msgWriter struct {
	msg tlog.MsgStream
}

func (w msgWriter) Write(p []byte) (int, error) {
	w.msg.Infof("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
