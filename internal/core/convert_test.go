package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input  string
		wantOK bool
	}{
		{"2024-03-05", true},
		{"2024-3-5", true},
		{"2024/03/05", true},
		{"2024.3.5", true},
		{"2024年3月5日", true},
		{"20240305", true},
		{"2024-03-05 14:30", true},
		{"45356", true},
		{"", false},
		{"not a date", false},
		{"0", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input    string
		want     time.Time
		hasClock bool
	}{
		{"2024-03-05 09:30", time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), true},
		{"2024/3/5 18:05:00", time.Date(2024, 3, 5, 18, 5, 0, 0, time.UTC), true},
		{"45356.5", time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), true},
		{"45356", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), false},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDateTime(tt.input)
			if !ok {
				t.Fatalf("ParseDateTime(%q) failed", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDateTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if _, hasClock, _ := parseDateTime(tt.input); hasClock != tt.hasClock {
				t.Errorf("parseDateTime(%q) hasClock = %v, want %v", tt.input, hasClock, tt.hasClock)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"09:30", 9*60 + 30, true},
		{"9:30", 9*60 + 30, true},
		{"18:05:59", 18*60 + 5, true},
		{"2:15 PM", 14*60 + 15, true},
		{"15点04分", 15*60 + 4, true},
		{"0.375", 9 * 60, true},
		{"45356.75", 18 * 60, true},
		{"2024-03-05 07:00", 7 * 60, true},
		{"noon", 0, false},
		{"-0.5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseClock(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseClock(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && ClockMinutes(got) != tt.want {
				t.Errorf("ParseClock(%q) = %s, want %s", tt.input, FormatClock(ClockMinutes(got)), FormatClock(tt.want))
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"60", 60, true},
		{"1,234.5", 1234.5, true},
		{"45分钟", 45, true},
		{"30 min", 30, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 8, 8, 0, 0, 0, time.UTC)
	if got := daysBetween(a, b); got != 7 {
		t.Errorf("daysBetween() = %d, want 7 calendar days", got)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  张三  ", "张三"},
		{"　张三　", "张三"},
		{`="00123"`, "00123"},
		{"'abc'", "abc"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
