package protocol

import (
	"fmt"
	"time"
)

// Command identifiers and modes used across both device families.
const (
	cmdLight byte = 0x5A
	cmdPump  byte = 0xA5

	modeSetTime        byte = 0x09
	modeManualSetting  byte = 0x07
	modeAutoProgram    byte = 0x19
	modeAutoToggle     byte = 0x05
	modeStatusRequest  byte = 0x04
	modePumpPrepare    byte = 0x04
	modeHeadSelect     byte = 0x20
	modeHeadDose1Byte  byte = 0x1B
	modeHeadDose2Byte  byte = 0x1C
	modeHeadSchedule   byte = 0x15
)

// EncodeTimestamp renders a time.Time into the device's timestamp byte
// sequence: year-2000, month, ISO weekday (Mon=1..Sun=7), hour, minute,
// second.
func EncodeTimestamp(ts time.Time) []byte {
	weekday := int(ts.Weekday())
	if weekday == 0 {
		weekday = 7 // time.Sunday == 0; device wants ISO (Sunday == 7)
	}
	return []byte{
		byte(ts.Year() - 2000),
		byte(ts.Month()),
		byte(weekday),
		byte(ts.Hour()),
		byte(ts.Minute()),
		byte(ts.Second()),
	}
}

// CreateSetTimeCommand builds the set-time frame (cmd 0x5A, mode 0x09).
func CreateSetTimeCommand(id MsgID, now time.Time) ([]byte, error) {
	return EncodeFrame(cmdLight, modeSetTime, id, EncodeTimestamp(now))
}

// CreateManualSettingCommand builds a manual color/brightness frame
// (cmd 0x5A, mode 0x07). brightness is 0..=100.
func CreateManualSettingCommand(id MsgID, colorIndex, brightness byte) ([]byte, error) {
	return EncodeFrame(cmdLight, modeManualSetting, id, []byte{colorIndex, brightness})
}

// RGB is an (r, g, b) brightness triple, each 0..=100 (or 0xFF as the
// delete-auto-setting sentinel).
type RGB struct{ R, G, B byte }

// CreateAddAutoSettingCommand builds an add-auto-program frame (cmd 0xA5,
// mode 0x19).
func CreateAddAutoSettingCommand(id MsgID, sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes byte, weekdayMask byte, brightness RGB) ([]byte, error) {
	params := []byte{
		sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes, weekdayMask,
		brightness.R, brightness.G, brightness.B,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	return EncodeFrame(cmdPump, modeAutoProgram, id, params)
}

// CreateDeleteAutoSettingCommand encodes a delete as an add with an
// all-0xFF brightness triple.
func CreateDeleteAutoSettingCommand(id MsgID, sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes byte, weekdayMask byte) ([]byte, error) {
	return CreateAddAutoSettingCommand(id, sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes, weekdayMask, RGB{0xFF, 0xFF, 0xFF})
}

// CreateResetAutoSettingsCommand builds the reset-auto-settings frame
// (cmd 0x5A, mode 0x05, params [5, 0xFF, 0xFF]).
func CreateResetAutoSettingsCommand(id MsgID) ([]byte, error) {
	return EncodeFrame(cmdLight, modeAutoToggle, id, []byte{5, 0xFF, 0xFF})
}

// CreateSwitchToAutoModeCommand builds the switch-to-auto frame (cmd 0x5A,
// mode 0x05, params [18, 0xFF, 0xFF]).
func CreateSwitchToAutoModeCommand(id MsgID) ([]byte, error) {
	return EncodeFrame(cmdLight, modeAutoToggle, id, []byte{18, 0xFF, 0xFF})
}

// CreateStatusRequestCommand builds the status-request frame (cmd 0x5A,
// mode 0x04, params [0x01]).
func CreateStatusRequestCommand(id MsgID) ([]byte, error) {
	return EncodeFrame(cmdLight, modeStatusRequest, id, []byte{0x01})
}

// CreatePrepareCommand builds the pump prepare frame (cmd 0xA5, mode
// 0x04). stage must be 0x04 or 0x05.
func CreatePrepareCommand(id MsgID, stage byte) ([]byte, error) {
	if stage != 0x04 && stage != 0x05 {
		return nil, fmt.Errorf("protocol: prepare stage must be 0x04 or 0x05, got 0x%02X", stage)
	}
	return EncodeFrame(cmdPump, modePumpPrepare, id, []byte{stage})
}

// CreateHeadSelectCommand builds the head-select frame (cmd 0xA5, mode
// 0x20). headIndex must be in 0..=3.
func CreateHeadSelectCommand(id MsgID, headIndex byte) ([]byte, error) {
	if headIndex > 3 {
		return nil, fmt.Errorf("protocol: head index must be 0-3, got %d", headIndex)
	}
	return EncodeFrame(cmdPump, modeHeadSelect, id, []byte{headIndex, 0x00, 0x01})
}

// CreateHeadDoseCommand builds the head-dose frame (cmd 0xA5). Volumes
// <= 255 tenths-mL use the legacy 1-byte mode 0x1B; larger volumes use the
// 2-byte mode 0x1C, big-endian.
func CreateHeadDoseCommand(id MsgID, headIndex byte, volumeTenthsML uint16, weekdayMask byte) ([]byte, error) {
	if weekdayMask > 0x7F {
		return nil, fmt.Errorf("protocol: weekday mask must be 7 bits, got 0x%02X", weekdayMask)
	}
	const scheduleMode, repeatFlag, reserved byte = 0x01, 0x01, 0x00
	if volumeTenthsML <= 0xFF {
		params := []byte{headIndex, weekdayMask, scheduleMode, repeatFlag, reserved, byte(volumeTenthsML)}
		return EncodeFrame(cmdPump, modeHeadDose1Byte, id, params)
	}
	hi := byte(volumeTenthsML >> 8)
	lo := byte(volumeTenthsML & 0xFF)
	params := []byte{headIndex, weekdayMask, scheduleMode, repeatFlag, reserved, hi, lo}
	return EncodeFrame(cmdPump, modeHeadDose2Byte, id, params)
}

// CreateHeadScheduleCommand builds the head-schedule frame (cmd 0xA5,
// mode 0x15).
func CreateHeadScheduleCommand(id MsgID, headIndex, hour, minute byte) ([]byte, error) {
	if hour > 23 {
		return nil, fmt.Errorf("protocol: hour must be 0-23, got %d", hour)
	}
	if minute > 59 {
		return nil, fmt.Errorf("protocol: minute must be 0-59, got %d", minute)
	}
	params := []byte{headIndex, 0x00, hour, minute, 0x00, 0x00}
	return EncodeFrame(cmdPump, modeHeadSchedule, id, params)
}
