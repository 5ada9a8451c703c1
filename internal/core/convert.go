package core

// convert.go provides type conversion for spreadsheet cell values.
//
// These functions handle the messy reality of hand-filled visit sheets:
//   - Excel serial dates and day-fraction times (raw cell values)
//   - ISO, slash, dot and Chinese (2024年1月5日) date spellings
//   - Clock times with or without seconds, or embedded in a datetime
//   - Thousands separators and unit suffixes in numbers
//   - Excel formula prefixes (="value")
//
// All Parse* functions report ok=false for empty or invalid input.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var (
	dateLayouts = []string{
		"2006-01-02", "2006-1-2", "2006/01/02", "2006/1/2", "2006.01.02", "2006.1.2",
		"2006年1月2日", "2006年01月02日", "20060102",
	}
	dateTimeLayouts = []string{
		"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-1-2 15:04:05", "2006-1-2 15:04",
		"2006/01/02 15:04:05", "2006/01/02 15:04", "2006/1/2 15:04:05", "2006/1/2 15:04",
		"2006-01-02T15:04:05", "2006年1月2日 15:04",
	}
	clockLayouts = []string{
		"15:04", "15:04:05", "3:04 PM", "3:04PM", "15点04分", "15时04分",
	}
)

const (
	// minutesPerDay converts Excel day fractions to clock minutes.
	minutesPerDay = 24 * 60

	// maxExcelSerial is 9999-12-31; larger bare numbers are yyyymmdd spellings.
	maxExcelSerial = 2958465
)

// ParseDate parses a calendar date. Datetime spellings are accepted and
// truncated to the date. Excel serial numbers are converted.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, ok := excelSerial(s); ok && serial <= maxExcelSerial {
		if serial < 1 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return truncateDay(t), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// ParseDateTime parses a date with an optional time of day.
func ParseDateTime(s string) (time.Time, bool) {
	t, _, ok := parseDateTime(s)
	return t, ok
}

// parseDateTime also reports whether the value carried a time of day. Whole
// Excel serials and date-only spellings do not.
func parseDateTime(s string) (t time.Time, hasClock, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}

	if serial, isSerial := excelSerial(s); isSerial && serial <= maxExcelSerial {
		if serial < 1 {
			return time.Time{}, false, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false, false
		}
		_, frac := math.Modf(serial)
		return t.Round(time.Minute), frac != 0, true
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

// ParseClock parses a time of day and returns it on the zero date.
// Day fractions (Excel time cells) and full datetimes are accepted; only
// the clock part is kept.
func ParseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, ok := excelSerial(s); ok {
		if serial < 0 || serial > maxExcelSerial {
			return time.Time{}, false
		}
		_, frac := math.Modf(serial)
		minutes := int(math.Round(frac * minutesPerDay))
		if minutes >= minutesPerDay {
			minutes = 0
		}
		return clockAt(minutes), true
	}

	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return clockAt(t.Hour()*60 + t.Minute()), true
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return clockAt(t.Hour()*60 + t.Minute()), true
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a number, tolerating thousands separators and a
// trailing unit such as 分钟 or min.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "，", "")
	for _, unit := range []string{"分钟", "分", "mins", "min", "元"} {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit))
			break
		}
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseClockBound parses a template bound written "HH:MM".
func ParseClockBound(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// ClockMinutes returns minutes since midnight of t.
func ClockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return clockAt(minutes).Format("15:04")
}

// parseValue converts a cleaned cell into a typed Value for a field spec.
func parseValue(raw string, spec FieldSpec) Value {
	v := Value{Raw: raw}
	if raw == "" {
		return v
	}

	switch spec.Type {
	case FieldDate:
		v.Time, v.Parsed = ParseDate(raw)
	case FieldDateTime:
		var hasClock bool
		v.Time, hasClock, v.Parsed = parseDateTime(raw)
		v.DateOnly = v.Parsed && !hasClock
	case FieldTime:
		v.Time, v.Parsed = ParseClock(raw)
	case FieldNumeric:
		v.Num, v.Parsed = ParseNumber(raw)
	default:
		v.Parsed = true
	}
	return v
}

// excelSerial reports whether s is a bare number (a raw serial date/time).
func excelSerial(s string) (float64, bool) {
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clockAt(minutes int) time.Time {
	return time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(truncateDay(b).Sub(truncateDay(a)).Hours() / 24)
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including full-width spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.Trim(s, "　"))

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
