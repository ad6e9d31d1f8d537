// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xhdmi-srv starts a TDAQ server hosting a simulated XboxHDMI board.
//
// Write transactions are consumed from the /smbus input stream and
// timing window snapshots are published on the /timing output stream.
package main // import "github.com/go-lpc/xhdmi/cmd/xhdmi-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/xhdmi/srv"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	tables  = flag.String("tables", "", "path to a YAML timing tables file")
	dbname  = flag.String("db", "", "name of the timing presets database")
	preset  = flag.String("preset", "", "timing preset to load from the database (default: last)")
	period  = flag.Duration("period", 100*time.Millisecond, "timing snapshots period")
	verbose = flag.Bool("v", false, "enable verbose SMBus traces")

	doMon  = flag.String("pmon", "", "path to a pmon log file (empty: no monitoring)")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
)

func main() {
	cmd := flags.New()

	dev := srv.New(
		cmd.Name,
		srv.WithTables(*tables),
		srv.WithDB(*dbname, *preset),
		srv.WithFreq(*period),
		srv.WithVerbose(*verbose),
	)

	proc := tdaq.New(cmd, os.Stdout)
	proc.CmdHandle("/config", dev.OnConfig)
	proc.CmdHandle("/init", dev.OnInit)
	proc.CmdHandle("/reset", dev.OnReset)
	proc.CmdHandle("/start", dev.OnStart)
	proc.CmdHandle("/stop", dev.OnStop)
	proc.CmdHandle("/quit", dev.OnQuit)

	proc.InputHandle("/smbus", dev.OnTransaction)
	proc.OutputHandle("/timing", dev.Timing)

	proc.RunHandle(dev.Run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var grp errgroup.Group
	if *doMon != "" {
		grp.Go(func() error {
			return monitor(ctx, os.Getpid(), *doMon, *doFreq)
		})
	}
	grp.Go(func() error {
		defer cancel()
		return proc.Run(ctx)
	})

	err := grp.Wait()
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

// monitor records the resources usage of process pid into fname,
// until ctx is done.
func monitor(ctx context.Context, pid int, fname string, freq time.Duration) error {
	p, err := pmon.Monitor(pid)
	if err != nil {
		return fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create pmon log file: %w", err)
	}
	defer f.Close()

	p.W = f
	p.Freq = freq

	errch := make(chan error, 1)
	go func() {
		errch <- p.Run()
	}()

	select {
	case <-ctx.Done():
	case err := <-errch:
		if err != nil {
			return fmt.Errorf("could not run pmon (pid=%d): %w", pid, err)
		}
		return nil
	}

	err = p.Kill()
	if err != nil {
		return fmt.Errorf("could not stop monitoring (pid=%d): %w", pid, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close pmon log file: %w", err)
	}
	return nil
}
