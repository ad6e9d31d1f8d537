// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timingdb

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/xhdmi/internal/fakedb"
	"github.com/go-lpc/xhdmi/timing"
)

func init() {
	drvName = "fakedb"
}

func TestDSN(t *testing.T) {
	if got, want := dsn("xhdmi"), "username:s3cr3t@tcp(localhost)/xhdmi"; got != want {
		t.Fatalf("invalid dsn: got=%q, want=%q", got, want)
	}
}

func TestLastPreset(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open timingdb: %+v", err)
	}
	defer db.Close()

	qs, err := fakedb.Run(context.Background(), func(ctx context.Context) error {
		name, err := db.LastPreset(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last preset: %+v", err)
		}
		if got, want := name, "xbox-hdmi-v1.0.2"; got != want {
			t.Fatalf("invalid last preset: got=%q, want=%q", got, want)
		}
		return nil
	}, fakedb.Rows{
		Names:  []string{"name"},
		Values: [][]driver.Value{{"xbox-hdmi-v1.0.2"}},
	})
	if err != nil {
		t.Fatalf("could not run query: %+v", err)
	}
	if len(qs) != 1 || !strings.Contains(qs[0].SQL, "FROM presets") {
		t.Fatalf("invalid queries: %+v", qs)
	}

	_, err = fakedb.Run(context.Background(), func(ctx context.Context) error {
		_, err := db.LastPreset(ctx)
		return err
	}, fakedb.Rows{Names: []string{"name"}})
	if err == nil {
		t.Fatalf("expected an error for an empty db")
	}
}

func presetRows(tbl timing.Tables) [][]driver.Value {
	var vs [][]driver.Value
	for _, t := range []timing.Table{tbl.AVP, tbl.CRTC, tbl.FpDebug0} {
		for i, row := range t.Rows {
			vs = append(vs, []driver.Value{t.Name, int64(i), hex.EncodeToString(row)})
		}
	}
	return vs
}

func TestPresets(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open timingdb: %+v", err)
	}
	defer db.Close()

	want := timing.Default()
	qs, err := fakedb.Run(context.Background(), func(ctx context.Context) error {
		got, err := db.Presets(ctx, "xbox-hdmi-v1.0.2")
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid presets")
		}
		return nil
	}, fakedb.Rows{
		Names:  []string{"kind", "idx", "data"},
		Values: presetRows(want),
	})
	if err != nil {
		t.Fatalf("could not retrieve presets: %+v", err)
	}
	if got, want := qs[0].Args, []driver.Value{"xbox-hdmi-v1.0.2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid query args: got=%v, want=%v", got, want)
	}
}

func TestPresetsErrors(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open timingdb: %+v", err)
	}
	defer db.Close()

	var (
		names = []string{"kind", "idx", "data"}
		avp   = strings.Repeat("00", timing.AVPWidth)
		crtc  = strings.Repeat("00", timing.CRTCWidth)
	)

	for _, tc := range []struct {
		name string
		rows [][]driver.Value
		want string
	}{
		{
			name: "missing-table",
			rows: [][]driver.Value{
				{"avp", int64(0), avp},
				{"crtc", int64(0), crtc},
			},
			want: `timingdb: preset "p": timing: table "fpdebug0" has no rows`,
		},
		{
			name: "gap",
			rows: [][]driver.Value{
				{"avp", int64(0), avp},
				{"avp", int64(2), avp},
			},
			want: `timingdb: preset "p": invalid avp row index (got=2, want=1)`,
		},
		{
			name: "bad-width",
			rows: [][]driver.Value{
				{"avp", int64(0), avp},
				{"crtc", int64(0), crtc + "00"},
				{"fpdebug0", int64(0), "00000000"},
			},
			want: `timingdb: preset "p": timing: table "crtc" row 0 has invalid width (got=35, want=34)`,
		},
		{
			name: "bad-hex",
			rows: [][]driver.Value{
				{"avp", int64(0), "xyz"},
			},
			want: `timingdb: preset "p": could not decode avp row 0: encoding/hex: invalid byte: U+0078 'x'`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fakedb.Run(context.Background(), func(ctx context.Context) error {
				_, err := db.Presets(ctx, "p")
				return err
			}, fakedb.Rows{Names: names, Values: tc.rows})
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
			}
		})
	}
}
