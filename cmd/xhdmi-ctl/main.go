// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xhdmi-ctl is an interactive shell to inspect and drive
// XboxHDMI peripherals, either simulated or over a Linux i2c-dev bus.
//
// Usage: xhdmi-ctl [OPTIONS]
//
// Example:
//
//	$> xhdmi-ctl
//	xhdmi> mode 0x00020300
//	xhdmi> r 0x6a 0x68 4
//	xhdmi> dump
//	xhdmi> quit
//
//	$> xhdmi-ctl -i2c 1
package main // import "github.com/go-lpc/xhdmi/cmd/xhdmi-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/xhdmi/bus"
	"github.com/go-lpc/xhdmi/client"
	"github.com/go-lpc/xhdmi/hdmi"
	"github.com/go-lpc/xhdmi/timing"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("xhdmi-ctl: ")
	log.SetFlags(0)

	var (
		i2c     = flag.Int("i2c", -1, "i2c-dev bus number (default: simulated bus)")
		regs    = flag.Uint("regs", hdmi.DefaultRegistersAddr, "bus address of the register file")
		tim     = flag.Uint("timing", hdmi.DefaultTimingAddr, "bus address of the timing window")
		tables  = flag.String("tables", "", "path to a YAML timing tables file (simulated bus)")
		verbose = flag.Bool("v", false, "enable verbose SMBus traces (simulated bus)")
	)

	flag.Parse()

	sh, err := newShell(*i2c, uint8(*regs), uint8(*tim), *tables, *verbose)
	if err != nil {
		log.Fatalf("could not create shell: %+v", err)
	}
	defer sh.Close()

	err = run(sh)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(sh *shell) error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("xhdmi> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(os.Stdout, line)
		if err != nil {
			log.Printf("%+v", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

type shell struct {
	cli  *client.Client
	conn client.Conn
	sim  *bus.Bus // nil when connected to a real bus
	regs uint8
	tim  uint8
}

func newShell(i2c int, regs, tim uint8, tables string, verbose bool) (*shell, error) {
	if i2c >= 0 {
		conn, err := client.OpenI2C(i2c, regs)
		if err != nil {
			return nil, err
		}
		return &shell{
			cli:  client.New(conn, regs, tim),
			conn: conn,
			regs: regs,
			tim:  tim,
		}, nil
	}

	tbl := timing.Default()
	if tables != "" {
		var err error
		tbl, err = timing.Open(tables)
		if err != nil {
			return nil, fmt.Errorf("could not load timing tables: %w", err)
		}
	}

	var (
		msg   = log.New(os.Stdout, "xhdmi: ", 0)
		redir = hdmi.NewRedirect()
		opts  = []hdmi.Option{hdmi.WithLogger(msg), hdmi.WithVerbose(verbose)}
		sim   = bus.New(msg)
	)
	for _, dev := range []hdmi.Device{
		hdmi.NewRegisters(regs, redir, opts...),
		hdmi.NewTiming(tim, redir, tbl, opts...),
	} {
		err := sim.Attach(dev)
		if err != nil {
			return nil, fmt.Errorf("could not attach device: %w", err)
		}
	}

	return &shell{
		cli:  client.New(sim, regs, tim),
		conn: sim,
		sim:  sim,
		regs: regs,
		tim:  tim,
	}, nil
}

func (sh *shell) Close() error {
	return sh.cli.Close()
}

const help = `commands:
  w ADDR REG BYTE...  write bytes starting at register REG of device ADDR
  r ADDR REG [N]      read N bytes starting at register REG of device ADDR
  get NAME            read the named register
  set NAME BYTE...    write the named register
  mode [POST]         read video modes, or write video_mode_post
  fw                  print the firmware version
  timing              print the timing window
  dump                print registers and timing window
  reset               reset the simulated devices
  help                print this help message
  quit                exit the shell
`

func (sh *shell) exec(w io.Writer, line string) (quit bool, err error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}

	cmd, args := toks[0], toks[1:]
	switch cmd {
	case "w", "write":
		err = sh.cmdWrite(args)
	case "r", "read":
		err = sh.cmdRead(w, args)
	case "get":
		err = sh.cmdGet(w, args)
	case "set":
		err = sh.cmdSet(args)
	case "mode":
		err = sh.cmdMode(w, args)
	case "fw":
		var v [3]byte
		v, err = sh.cli.FirmwareVersion()
		if err == nil {
			fmt.Fprintf(w, "firmware: v%d.%d.%d\n", v[0], v[1], v[2])
		}
	case "timing":
		err = sh.cmdTiming(w)
	case "dump":
		err = sh.cli.Dump(w)
	case "reset":
		if sh.sim == nil {
			return false, fmt.Errorf("reset: not supported on a real bus")
		}
		sh.sim.Reset()
	case "help", "?":
		fmt.Fprint(w, help)
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", cmd)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", cmd, err)
	}
	return false, nil
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q: %w", s, err)
	}
	return uint8(v), nil
}

func parseBytes(args []string) ([]byte, error) {
	p := make([]byte, len(args))
	for i, arg := range args {
		v, err := parseU8(arg)
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	return p, nil
}

func (sh *shell) cmdWrite(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: w ADDR REG BYTE...")
	}
	p, err := parseBytes(args)
	if err != nil {
		return err
	}
	addr, reg := p[0], p[1]
	for i, v := range p[2:] {
		err = sh.conn.WriteReg(addr, reg+uint8(i), v)
		if err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) cmdRead(w io.Writer, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: r ADDR REG [N]")
	}
	p, err := parseBytes(args[:2])
	if err != nil {
		return err
	}
	n := 1
	if len(args) == 3 {
		n, err = strconv.Atoi(args[2])
		if err != nil || n <= 0 || n > 256 {
			return fmt.Errorf("invalid number of bytes %q", args[2])
		}
	}

	addr, reg := p[0], p[1]
	buf := make([]byte, n)
	for i := range buf {
		buf[i], err = sh.conn.ReadReg(addr, reg+uint8(i))
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "0x%02x: % x\n", reg, buf)
	return nil
}

func (sh *shell) cmdGet(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get NAME")
	}
	v, err := sh.cli.Field(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: % x\n", args[0], v)
	return nil
}

func (sh *shell) cmdSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set NAME BYTE...")
	}
	v, err := parseBytes(args[1:])
	if err != nil {
		return err
	}
	return sh.cli.SetField(args[0], v)
}

func (sh *shell) cmdMode(w io.Writer, args []string) error {
	switch len(args) {
	case 0:
		pre, post, rev, err := sh.cli.VideoMode()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "video_mode_pre=0x%08x video_mode_post=0x%08x video_mode_rev=0x%08x\n", pre, post, rev)
		fmt.Fprintf(w, "%v\n", hdmi.DecodeVideoMode(post))
		return nil
	case 1:
		post, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid video mode %q: %w", args[0], err)
		}
		return sh.cli.SetVideoMode(uint32(post))
	default:
		return fmt.Errorf("usage: mode [POST]")
	}
}

func (sh *shell) cmdTiming(w io.Writer) error {
	win, err := sh.cli.TimingWindow()
	if err != nil {
		return err
	}
	for i := 0; i < len(win); i += 16 {
		end := i + 16
		if end > len(win) {
			end = len(win)
		}
		fmt.Fprintf(w, "0x%02x: % x\n", i, win[i:end])
	}
	return nil
}
