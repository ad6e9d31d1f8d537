// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timing holds the video timing lookup tables exposed by the
// XboxHDMI timing peripheral.
package timing // import "github.com/go-lpc/xhdmi/timing"

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Widths of the rows of the three timing tables.
const (
	AVPWidth      = 104 // 26 AVP registers, 32b each
	CRTCWidth     = 34
	FpDebug0Width = 4 // one 32b word
)

// Table is a read-only sequence of fixed-width presets.
type Table struct {
	Name  string
	Width int
	Rows  [][]byte
}

// NewTable creates a table from the provided rows.
// All rows must be exactly width bytes long.
func NewTable(name string, width int, rows [][]byte) (Table, error) {
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("timing: table %q has no rows", name)
	}
	tbl := Table{
		Name:  name,
		Width: width,
		Rows:  make([][]byte, len(rows)),
	}
	for i, row := range rows {
		if len(row) != width {
			return Table{}, fmt.Errorf(
				"timing: table %q row %d has invalid width (got=%d, want=%d)",
				name, i, len(row), width,
			)
		}
		tbl.Rows[i] = append([]byte(nil), row...)
	}
	return tbl, nil
}

// Len returns the number of presets in the table.
func (tbl Table) Len() int { return len(tbl.Rows) }

// ByteAt returns byte i of the preset at origin.
// Origins or indices outside of the table read as zero.
func (tbl Table) ByteAt(origin, i int) byte {
	if origin < 0 || origin >= len(tbl.Rows) {
		return 0
	}
	row := tbl.Rows[origin]
	if i < 0 || i >= len(row) {
		return 0
	}
	return row[i]
}

// Tables is the set of lookup tables a timing peripheral is built from.
type Tables struct {
	AVP      Table
	CRTC     Table
	FpDebug0 Table
}

//go:embed presets.yaml
var defaultPresets []byte

var defaultTables = func() Tables {
	tbl, err := Load(bytes.NewReader(defaultPresets))
	if err != nil {
		panic(fmt.Errorf("timing: invalid embedded presets: %w", err))
	}
	return tbl
}()

// Default returns the built-in set of timing presets.
func Default() Tables {
	return defaultTables
}

type yamlTables struct {
	AVP      []string `yaml:"avp"`
	CRTC     []string `yaml:"crtc"`
	FpDebug0 []string `yaml:"fpdebug0"`
}

// Open loads timing tables from the named YAML file.
func Open(fname string) (Tables, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Tables{}, fmt.Errorf("timing: could not open %q: %w", fname, err)
	}
	defer f.Close()

	tbl, err := Load(f)
	if err != nil {
		return tbl, fmt.Errorf("timing: could not load %q: %w", fname, err)
	}
	return tbl, nil
}

// Load decodes timing tables from a YAML stream.
// Each table is a list of hex-encoded rows.
func Load(r io.Reader) (Tables, error) {
	var (
		raw yamlTables
		tbl Tables
		err error
	)

	err = yaml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return tbl, fmt.Errorf("timing: could not decode tables: %w", err)
	}

	tbl.AVP, err = decodeTable("avp", AVPWidth, raw.AVP)
	if err != nil {
		return tbl, err
	}
	tbl.CRTC, err = decodeTable("crtc", CRTCWidth, raw.CRTC)
	if err != nil {
		return tbl, err
	}
	tbl.FpDebug0, err = decodeTable("fpdebug0", FpDebug0Width, raw.FpDebug0)
	if err != nil {
		return tbl, err
	}

	return tbl, nil
}

// Save encodes timing tables into a YAML stream, in the format
// understood by Load.
func Save(w io.Writer, tbl Tables) error {
	raw := yamlTables{
		AVP:      encodeTable(tbl.AVP),
		CRTC:     encodeTable(tbl.CRTC),
		FpDebug0: encodeTable(tbl.FpDebug0),
	}

	enc := yaml.NewEncoder(w)
	err := enc.Encode(raw)
	if err != nil {
		return fmt.Errorf("timing: could not encode tables: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return fmt.Errorf("timing: could not flush tables: %w", err)
	}
	return nil
}

func encodeTable(tbl Table) []string {
	rows := make([]string, len(tbl.Rows))
	for i, row := range tbl.Rows {
		rows[i] = hex.EncodeToString(row)
	}
	return rows
}

func decodeTable(name string, width int, rows []string) (Table, error) {
	raw := make([][]byte, len(rows))
	for i, row := range rows {
		v, err := DecodeRow(row)
		if err != nil {
			return Table{}, fmt.Errorf("timing: could not decode %s row %d: %w", name, i, err)
		}
		raw[i] = v
	}
	return NewTable(name, width, raw)
}

// DecodeRow decodes a hex-encoded preset row. Whitespace is ignored.
func DecodeRow(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}
