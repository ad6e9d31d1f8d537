// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hdmi

import (
	"errors"
	"fmt"
)

// Register offsets of the XboxHDMI register file.
// Multi-byte registers are little-endian.
const (
	RegScratch           = 0x00
	RegBootMode          = 0x20
	RegBootFlag          = 0x21
	RegCompileTime       = 0x25
	RegLoadApp           = 0x29
	RegProgMode          = 0x2D
	RegProgWrite         = 0x2E // page number for programming
	RegProgData          = 0x2F // data for programming
	RegProgPage          = 0x33 // current flash page
	RegProgPos           = 0x34
	RegProgFull          = 0x36
	RegProgBusy          = 0x37
	RegProgCRC           = 0x38
	RegProgError         = 0x3C
	RegReserved          = 0x3D
	RegVideoModePre      = 0x3E
	RegVideoModePost     = 0x42
	RegVideoModeRev      = 0x46
	RegEEPROMSave        = 0x4A
	RegEEPROMWidescreen  = 0x4B
	RegEEPROMModeOut     = 0x4C
	RegEEPROMAdjustLuma  = 0x4D
	RegEEPROMAdjustCb    = 0x4E
	RegEEPROMAdjustCr    = 0x4F
	RegEncoderBusAddress = 0x50
	RegRegion            = 0x51
	RegGameTitleID       = 0x52
	RegVideoTablePage    = 0x56
	RegFirmwareVersion   = 0x57
	RegScratch2          = 0x5A

	nRegs = 256
)

// FirmwareVersion is the build identifier reported by the register file
// after a reset.
var FirmwareVersion = [3]byte{1, 0, 2}

// Access describes how the XboxHDMI firmware treats a register.
type Access uint8

const (
	RW Access = iota
	RO
	Unused
)

func (a Access) String() string {
	switch a {
	case RW:
		return "rw"
	case RO:
		return "ro"
	case Unused:
		return "unused"
	}
	return fmt.Sprintf("Access(%d)", uint8(a))
}

// Field describes a named register of the register file.
type Field struct {
	Name   string
	Offset uint8
	Size   int
	Access Access
	Signed bool
}

// Fields lists all the registers of the register file, by offset.
var Fields = []Field{
	{Name: "scratch", Offset: RegScratch, Size: 0x20},
	{Name: "boot_mode", Offset: RegBootMode, Size: 1},
	{Name: "boot_flag", Offset: RegBootFlag, Size: 4},
	{Name: "compile_time", Offset: RegCompileTime, Size: 4},
	{Name: "load_app", Offset: RegLoadApp, Size: 4},
	{Name: "prog_mode", Offset: RegProgMode, Size: 1},
	{Name: "prog_write", Offset: RegProgWrite, Size: 1},
	{Name: "prog_data", Offset: RegProgData, Size: 4},
	{Name: "prog_page", Offset: RegProgPage, Size: 1},
	{Name: "prog_pos", Offset: RegProgPos, Size: 2, Access: RO},
	{Name: "prog_full", Offset: RegProgFull, Size: 1, Access: RO},
	{Name: "prog_busy", Offset: RegProgBusy, Size: 1, Access: RO},
	{Name: "prog_crc", Offset: RegProgCRC, Size: 4, Access: RO},
	{Name: "prog_error", Offset: RegProgError, Size: 1, Access: RO},
	{Name: "reserved", Offset: RegReserved, Size: 1, Access: Unused},
	{Name: "video_mode_pre", Offset: RegVideoModePre, Size: 4},
	{Name: "video_mode_post", Offset: RegVideoModePost, Size: 4},
	{Name: "video_mode_rev", Offset: RegVideoModeRev, Size: 4},
	{Name: "eeprom_save", Offset: RegEEPROMSave, Size: 1},
	{Name: "eeprom_widescreen", Offset: RegEEPROMWidescreen, Size: 1},
	{Name: "eeprom_mode_out", Offset: RegEEPROMModeOut, Size: 1},
	{Name: "eeprom_adjust_luma", Offset: RegEEPROMAdjustLuma, Size: 1, Signed: true},
	{Name: "eeprom_adjust_cb", Offset: RegEEPROMAdjustCb, Size: 1, Signed: true},
	{Name: "eeprom_adjust_cr", Offset: RegEEPROMAdjustCr, Size: 1},
	{Name: "encoder_bus_address", Offset: RegEncoderBusAddress, Size: 1},
	{Name: "region", Offset: RegRegion, Size: 1},
	{Name: "game_title_id", Offset: RegGameTitleID, Size: 4},
	{Name: "video_table_page", Offset: RegVideoTablePage, Size: 1},
	{Name: "firmware_version", Offset: RegFirmwareVersion, Size: 3},
	{Name: "scratch2", Offset: RegScratch2, Size: nRegs - RegScratch2, Access: Unused},
}

// ErrUnknownField is returned when looking up a register by an invalid name.
var ErrUnknownField = errors.New("hdmi: unknown register")

// FieldByName returns the register named name.
func FieldByName(name string) (Field, error) {
	for _, f := range Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w %q", ErrUnknownField, name)
}
