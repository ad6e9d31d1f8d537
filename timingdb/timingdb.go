// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timingdb retrieves XboxHDMI timing presets from a MySQL database.
package timingdb // import "github.com/go-lpc/xhdmi/timingdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/xhdmi/timing"
	_ "github.com/go-sql-driver/mysql"
)

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve timing presets
// from the presets database.
type DB struct {
	db   *sql.DB
	name string // name of the presets database
}

// Open opens a connection to the presets database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("timingdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("timingdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// LastPreset returns the name of the most recently registered preset set.
func (db *DB) LastPreset(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM presets ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("timingdb: could not query last preset: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("timingdb: could not get last preset name: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("timingdb: could not scan db for last preset: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("timingdb: context error while retrieving last preset: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("timingdb: no preset in %q db", db.name)
	}

	return name, nil
}

// Presets returns the timing tables of the named preset set.
func (db *DB) Presets(ctx context.Context, name string) (timing.Tables, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var tbl timing.Tables
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT kind, idx, data FROM timing_presets
WHERE preset=?
ORDER BY kind, idx
`,
		name,
	)
	if err != nil {
		return tbl, fmt.Errorf("timingdb: could not run presets query: %w", err)
	}
	defer rows.Close()

	raw := make(map[string][][]byte)
	i := 0
	for rows.Next() {
		var (
			kind string
			idx  int
			data string
		)
		err = rows.Scan(&kind, &idx, &data)
		if err != nil {
			return tbl, fmt.Errorf("timingdb: could not scan row %d of preset %q: %w", i, name, err)
		}
		i++

		if idx != len(raw[kind]) {
			return tbl, fmt.Errorf(
				"timingdb: preset %q: invalid %s row index (got=%d, want=%d)",
				name, kind, idx, len(raw[kind]),
			)
		}

		row, err := timing.DecodeRow(data)
		if err != nil {
			return tbl, fmt.Errorf("timingdb: preset %q: could not decode %s row %d: %w", name, kind, idx, err)
		}
		raw[kind] = append(raw[kind], row)
	}

	if err := rows.Err(); err != nil {
		return tbl, fmt.Errorf("timingdb: could not scan db for preset %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return tbl, fmt.Errorf("timingdb: context error while retrieving preset %q: %w", name, err)
	}

	for _, v := range []struct {
		dst   *timing.Table
		kind  string
		width int
	}{
		{&tbl.AVP, "avp", timing.AVPWidth},
		{&tbl.CRTC, "crtc", timing.CRTCWidth},
		{&tbl.FpDebug0, "fpdebug0", timing.FpDebug0Width},
	} {
		*v.dst, err = timing.NewTable(v.kind, v.width, raw[v.kind])
		if err != nil {
			return tbl, fmt.Errorf("timingdb: preset %q: %w", name, err)
		}
	}

	return tbl, nil
}
