// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xhdmi-sql inspects the XboxHDMI timing presets database.
//
// Example:
//
//	$> xhdmi-sql -db xhdmi
//	$> xhdmi-sql -db xhdmi -preset xbox-hdmi-v1.0.2 -o presets.yaml
package main // import "github.com/go-lpc/xhdmi/cmd/xhdmi-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/xhdmi/timing"
	"github.com/go-lpc/xhdmi/timingdb"
)

type presetsDB interface {
	LastPreset(ctx context.Context) (string, error)
	Presets(ctx context.Context, name string) (timing.Tables, error)
}

func main() {
	log.SetPrefix("xhdmi-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "xhdmi", "name of the timing presets database")
		preset = flag.String("preset", "", "timing preset to inspect (default: last)")
		oname  = flag.String("o", "", "path to output YAML tables file (default: stdout)")
	)

	flag.Parse()

	db, err := timingdb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open presets db: %+v", err)
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if *oname != "" {
		f, err := os.Create(*oname)
		if err != nil {
			log.Fatalf("could not create output file: %+v", err)
		}
		defer f.Close()
		w = f
	}

	err = doQuery(w, db, *preset)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(w io.Writer, db presetsDB, preset string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if preset == "" {
		v, err := db.LastPreset(ctx)
		if err != nil {
			return fmt.Errorf("could not get last preset: %w", err)
		}
		preset = v
	}
	log.Printf("preset: %q", preset)

	tbl, err := db.Presets(ctx, preset)
	if err != nil {
		return fmt.Errorf("could not get presets %q: %w", preset, err)
	}
	log.Printf("avp: %d, crtc: %d, fpdebug0: %d",
		tbl.AVP.Len(), tbl.CRTC.Len(), tbl.FpDebug0.Len(),
	)

	err = timing.Save(w, tbl)
	if err != nil {
		return fmt.Errorf("could not write presets %q: %w", preset, err)
	}
	return nil
}
