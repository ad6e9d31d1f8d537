// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hdmi

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/xhdmi/timing"
)

func quiet() Option { return WithLogger(nil) }

// testTables returns tables where every byte encodes its own position:
// row r, byte i of table t holds t<<6 | r<<3 ^ i.
func testTables(t *testing.T) timing.Tables {
	t.Helper()
	mk := func(name string, id, width, n int) timing.Table {
		rows := make([][]byte, n)
		for r := range rows {
			rows[r] = make([]byte, width)
			for i := range rows[r] {
				rows[r][i] = byte(id<<6 | (r<<3 ^ i))
			}
		}
		tbl, err := timing.NewTable(name, width, rows)
		if err != nil {
			t.Fatalf("could not create table %q: %+v", name, err)
		}
		return tbl
	}
	return timing.Tables{
		AVP:      mk("avp", 1, timing.AVPWidth, 4),
		CRTC:     mk("crtc", 2, timing.CRTCWidth, 12),
		FpDebug0: mk("fpdebug0", 3, timing.FpDebug0Width, 4),
	}
}

func TestLayout(t *testing.T) {
	off := 0
	for _, f := range Fields {
		if int(f.Offset) != off {
			t.Fatalf("register %q: invalid offset: got=0x%x, want=0x%x", f.Name, f.Offset, off)
		}
		if f.Size <= 0 {
			t.Fatalf("register %q: invalid size %d", f.Name, f.Size)
		}
		off += f.Size
	}
	if off != nRegs {
		t.Fatalf("invalid register file size: got=%d, want=%d", off, nRegs)
	}

	f, err := FieldByName("video_mode_post")
	if err != nil {
		t.Fatalf("could not find video_mode_post: %+v", err)
	}
	if got, want := f.Offset, uint8(0x42); got != want {
		t.Fatalf("invalid video_mode_post offset: got=0x%x, want=0x%x", got, want)
	}

	_, err = FieldByName("not-there")
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrUnknownField)
	}
}

func TestRegistersReset(t *testing.T) {
	regs := NewRegisters(DefaultRegistersAddr, NewRedirect(), quiet())

	var want [nRegs]byte
	copy(want[RegFirmwareVersion:], []byte{1, 0, 2})

	if got := regs.Snapshot(); got != want {
		t.Fatalf("invalid register file after creation:\ngot= %v\nwant=%v", got, want)
	}

	regs.WriteData([]byte{0x00, 0xde, 0xad, 0xbe, 0xef})
	regs.WriteData([]byte{RegFirmwareVersion, 9, 9, 9})
	regs.WriteData([]byte{0x10})
	regs.Reset()

	if got := regs.Snapshot(); got != want {
		t.Fatalf("invalid register file after reset:\ngot= %v\nwant=%v", got, want)
	}
	if got, want := regs.Pointer(), uint8(0); got != want {
		t.Fatalf("invalid command pointer: got=%d, want=%d", got, want)
	}
}

func TestRegistersWriteRead(t *testing.T) {
	regs := NewRegisters(DefaultRegistersAddr, NewRedirect(), quiet())

	for k := 0; k < nRegs; k++ {
		v := byte(k*7 + 3)
		regs.WriteData([]byte{byte(k), v})
		if got, want := regs.Pointer(), byte(k); got != want {
			t.Fatalf("invalid command pointer after write: got=%d, want=%d", got, want)
		}
		regs.WriteData([]byte{byte(k)})
		if got := regs.ReceiveByte(); got != v {
			t.Fatalf("reg[0x%02x]: got=0x%02x, want=0x%02x", k, got, v)
		}
	}
}

func TestRegistersAutoIncrement(t *testing.T) {
	regs := NewRegisters(DefaultRegistersAddr, NewRedirect(), quiet(), WithoutRedirect())

	p := make([]byte, 1+nRegs)
	for i := range p[1:] {
		p[1+i] = byte(i)
	}
	regs.WriteData(p)

	for _, k := range []int{0, 1, 0x42, 0xfe, 0xff} {
		regs.WriteData([]byte{byte(k)})
		for n := 0; n < 300; n++ {
			want := byte((k + n) % nRegs)
			if got := regs.ReceiveByte(); got != want {
				t.Fatalf("read #%d from 0x%02x: got=0x%02x, want=0x%02x", n, k, got, want)
			}
		}
	}
}

func TestRegistersWrapAround(t *testing.T) {
	regs := NewRegisters(DefaultRegistersAddr, NewRedirect(), quiet())
	regs.WriteData([]byte{0xfe, 1, 2, 3, 4})

	mem := regs.Snapshot()
	if got, want := mem[0xfe:], []byte{1, 2}; !bytes.Equal(got, want) {
		t.Fatalf("invalid tail: got=%v, want=%v", got, want)
	}
	if got, want := mem[:2], []byte{3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("invalid head: got=%v, want=%v", got, want)
	}
	if got, want := regs.Pointer(), uint8(0xfe); got != want {
		t.Fatalf("invalid command pointer: got=0x%x, want=0x%x", got, want)
	}
}

func TestRegistersSeek(t *testing.T) {
	redir := NewRedirect()
	regs := NewRegisters(DefaultRegistersAddr, redir, quiet())
	before := regs.Snapshot()

	regs.WriteData([]byte{RegVideoModePost + 3})
	if got, want := regs.Pointer(), uint8(RegVideoModePost+3); got != want {
		t.Fatalf("invalid command pointer: got=0x%x, want=0x%x", got, want)
	}
	if regs.Snapshot() != before {
		t.Fatalf("seek modified the register file")
	}
	if got, want := redir.Load(), DefaultOrigins; got != want {
		t.Fatalf("seek triggered a redirect: got=%v, want=%v", got, want)
	}

	regs.WriteData(nil)
	if got, want := regs.Pointer(), uint8(RegVideoModePost+3); got != want {
		t.Fatalf("empty write moved the command pointer: got=0x%x, want=0x%x", got, want)
	}
}

func TestDecodeVideoMode(t *testing.T) {
	for _, tc := range []struct {
		v    uint32
		want Origins
	}{
		{0x00AABB00, Origins{Register: 0xAA - 1, CRTC: 0xBB - 1, Debug: 0xAA - 1}},
		{0x00010800, Origins{Register: 0, CRTC: 7, Debug: 0}},
		{0xFF0203FF, Origins{Register: 1, CRTC: 2, Debug: 1}},
		{0x00000000, Origins{Register: -1, CRTC: -1, Debug: -1}},
		{0x00FFFF00, Origins{Register: 254, CRTC: 254, Debug: 254}},
	} {
		if got := DecodeVideoMode(tc.v); got != tc.want {
			t.Errorf("decode(0x%08x): got=%v, want=%v", tc.v, got, tc.want)
		}
	}
}

func TestRedirectTrigger(t *testing.T) {
	redir := NewRedirect()
	regs := NewRegisters(DefaultRegistersAddr, redir, quiet())

	var n int
	regs.Handle(RegVideoModePost+3, func(regs *Registers, i uint8) {
		n++
		regs.redirectVideoMode(i)
	})

	// first three bytes of video_mode_post: no redirect.
	for i, v := range []byte{0x00, 0xBB, 0xAA} {
		regs.WriteData([]byte{RegVideoModePost + byte(i), v})
		if n != 0 {
			t.Fatalf("redirect triggered by byte %d", i)
		}
		if got, want := redir.Load(), DefaultOrigins; got != want {
			t.Fatalf("origins changed by byte %d: got=%v, want=%v", i, got, want)
		}
	}

	regs.WriteData([]byte{RegVideoModePost + 3, 0x00})
	if n != 1 {
		t.Fatalf("invalid number of redirects: got=%d, want=1", n)
	}
	want := Origins{Register: 0xAA - 1, CRTC: 0xBB - 1, Debug: 0xAA - 1}
	if got := redir.Load(); got != want {
		t.Fatalf("invalid origins: got=%v, want=%v", got, want)
	}

	// a single transaction spanning the whole register fires once.
	regs.WriteData([]byte{RegVideoModePre, 0, 0, 0, 0, 0x00, 0x03, 0x02, 0x00, 0, 0, 0, 0})
	if n != 2 {
		t.Fatalf("invalid number of redirects: got=%d, want=2", n)
	}
	want = Origins{Register: 1, CRTC: 2, Debug: 1}
	if got := redir.Load(); got != want {
		t.Fatalf("invalid origins: got=%v, want=%v", got, want)
	}

	// transactions that wrap around through the trigger byte fire too.
	p := make([]byte, 1+nRegs)
	p[0] = RegVideoModePost + 4
	p[len(p)-3] = 0x05 // crtc selector: lands on RegVideoModePost+1
	p[len(p)-2] = 0x04 // avp selector
	regs.WriteData(p)
	if n != 3 {
		t.Fatalf("invalid number of redirects: got=%d, want=3", n)
	}
	want = Origins{Register: 3, CRTC: 4, Debug: 3}
	if got := redir.Load(); got != want {
		t.Fatalf("invalid origins: got=%v, want=%v", got, want)
	}
}

func TestRedirectIdempotent(t *testing.T) {
	tx := []byte{RegVideoModePost, 0x00, 0x09, 0x02, 0x00}

	redir := NewRedirect()
	regs := NewRegisters(DefaultRegistersAddr, redir, quiet())
	regs.WriteData(tx)
	var (
		mem = regs.Snapshot()
		org = redir.Load()
	)

	regs.WriteData(tx)
	if got := regs.Snapshot(); got != mem {
		t.Fatalf("register file differs after replay")
	}
	if got := redir.Load(); got != org {
		t.Fatalf("origins differ after replay: got=%v, want=%v", got, org)
	}
}

func TestWithoutRedirect(t *testing.T) {
	redir := NewRedirect()
	regs := NewRegisters(DefaultRegistersAddr, redir, quiet(), WithoutRedirect())
	regs.WriteData([]byte{RegVideoModePost, 0x00, 0x09, 0x02, 0x00})
	if got, want := redir.Load(), DefaultOrigins; got != want {
		t.Fatalf("flat register file triggered a redirect: got=%v, want=%v", got, want)
	}
}

func TestRegistersField(t *testing.T) {
	regs := NewRegisters(DefaultRegistersAddr, NewRedirect(), quiet())

	v, err := regs.Field("firmware_version")
	if err != nil {
		t.Fatalf("could not read firmware version: %+v", err)
	}
	if got, want := v, FirmwareVersion[:]; !bytes.Equal(got, want) {
		t.Fatalf("invalid firmware version: got=%v, want=%v", got, want)
	}

	err = regs.SetField("game_title_id", []byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("could not set title id: %+v", err)
	}
	v, _ = regs.Field("game_title_id")
	if got, want := v, []byte{1, 2, 3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("invalid title id: got=%v, want=%v", got, want)
	}

	err = regs.SetField("region", []byte{1, 2})
	if err == nil {
		t.Fatalf("expected an error")
	}
	_, err = regs.Field("nope")
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrUnknownField)
	}
}

func TestTimingWindow(t *testing.T) {
	tbl := testTables(t)
	regs, tim := NewPair(tbl, quiet())

	check := func(o Origins) {
		t.Helper()
		tim.WriteData([]byte{0})
		for i := 0; i < nRegs; i++ {
			var want byte
			switch {
			case i < 104:
				want = tbl.AVP.ByteAt(o.Register, i)
			case i < 138:
				want = tbl.CRTC.ByteAt(o.CRTC, i-104)
			case i < 142:
				want = tbl.FpDebug0.ByteAt(o.Debug, i-138)
			}
			if got := tim.ReceiveByte(); got != want {
				t.Fatalf("window[%d] at %v: got=0x%02x, want=0x%02x", i, o, got, want)
			}
		}
	}

	if got, want := tim.Origins(), DefaultOrigins; got != want {
		t.Fatalf("invalid default origins: got=%v, want=%v", got, want)
	}
	check(DefaultOrigins)

	// CRTC row 7 starts at window byte 104.
	tim.WriteData([]byte{104})
	if got, want := tim.ReceiveByte(), tbl.CRTC.Rows[7][0]; got != want {
		t.Fatalf("invalid crtc[7][0]: got=0x%x, want=0x%x", got, want)
	}

	regs.WriteData([]byte{RegVideoModePost, 0x00, 0x03, 0x02, 0x00})
	check(Origins{Register: 1, CRTC: 2, Debug: 1})

	win := tim.Window()
	if got, want := win[0], tbl.AVP.Rows[1][0]; got != want {
		t.Fatalf("invalid window[0]: got=0x%x, want=0x%x", got, want)
	}
	if got, want := win[141], tbl.FpDebug0.Rows[1][3]; got != want {
		t.Fatalf("invalid window[141]: got=0x%x, want=0x%x", got, want)
	}
}

func TestTimingOutOfRange(t *testing.T) {
	tbl := testTables(t)
	regs, tim := NewPair(tbl, quiet())

	// selector 0 and selectors past the end of the tables.
	for _, v := range []uint32{0x00000000, 0x00FFFF00, 0x00050D00} {
		regs.WriteData([]byte{RegVideoModePost, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
		if got, want := tim.Origins(), DecodeVideoMode(v); got != want {
			t.Fatalf("origins not stored verbatim: got=%v, want=%v", got, want)
		}
		if got, want := tim.Window(), [WindowSize]byte{}; got != want {
			t.Fatalf("out-of-range origins should read as zero: got=%v", got)
		}
	}
}

func TestTimingPointer(t *testing.T) {
	_, tim := NewPair(testTables(t), quiet())

	tim.WriteData([]byte{140, 0xde, 0xad})
	if got, want := tim.Pointer(), uint8(140); got != want {
		t.Fatalf("invalid command pointer: got=%d, want=%d", got, want)
	}
	_ = tim.ReceiveByte()
	_ = tim.ReceiveByte()
	for i := 142; i < nRegs; i++ {
		if got := tim.ReceiveByte(); got != 0 {
			t.Fatalf("window[%d]: got=0x%x, want=0", i, got)
		}
	}
	if got, want := tim.Pointer(), uint8(0); got != want {
		t.Fatalf("command pointer did not wrap: got=%d, want=%d", got, want)
	}

	// payloads never move the origins.
	tim.WriteData([]byte{0, 1, 2, 3, 4, 5})
	if got, want := tim.Origins(), DefaultOrigins; got != want {
		t.Fatalf("timing write moved the origins: got=%v, want=%v", got, want)
	}
}

func TestTimingReset(t *testing.T) {
	regs, tim := NewPair(testTables(t), quiet())
	regs.WriteData([]byte{RegVideoModePost, 0x00, 0x03, 0x02, 0x00})
	tim.WriteData([]byte{42})

	regs.Reset()
	if got, want := tim.Origins(), (Origins{Register: 1, CRTC: 2, Debug: 1}); got != want {
		t.Fatalf("register reset moved the origins: got=%v, want=%v", got, want)
	}

	tim.Reset()
	if got, want := tim.Origins(), DefaultOrigins; got != want {
		t.Fatalf("invalid origins after reset: got=%v, want=%v", got, want)
	}
	if got, want := tim.Pointer(), uint8(0); got != want {
		t.Fatalf("invalid command pointer after reset: got=%d, want=%d", got, want)
	}
}

func TestVerbose(t *testing.T) {
	var (
		buf  = new(strings.Builder)
		msg  = log.New(buf, "", 0)
		regs = NewRegisters(0x10, NewRedirect(), WithLogger(msg), WithVerbose(true))
	)

	regs.QuickCmd(true)
	regs.WriteData([]byte{RegVideoModePost, 0x00, 0x01, 0x01, 0x00})
	regs.WriteData([]byte{RegVideoModePost})
	_ = regs.ReceiveByte()

	for _, want := range []string{
		"quick-cmd: addr=0x10 read=true\n",
		"write-data: addr=0x10 cmd=0x42 val=0x00 n=4\n",
		"video_mode_post=0x00010100: redirect timing window to origins{avp=0, crtc=0, fpdebug0=0}\n",
		"receive-byte: addr=0x10 cmd=0x42 val=0x00\n",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("missing log line %q in:\n%s", want, buf.String())
		}
	}
}
