package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultOrdinals(t *testing.T) {
	cal := Default()
	cases := []struct {
		time    string
		ordinal int
		ok      bool
	}{
		{"09:00", 1, true},
		{"09:30", 2, true},
		{"11:30", 6, true},
		{"12:30", 7, true},
		{"14:00", 8, true},
		{"16:00", 12, true},
		{"12:00", 0, false},
		{"13:00", 0, false},
		{"16:30", 0, false},
		{"09:15", 0, false},
	}

	for _, tt := range cases {
		tod, err := ParseTimeOfDay(tt.time)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", tt.time, err)
		}
		ordinal, ok := cal.ResolveOrdinal(tod)
		if ok != tt.ok || ordinal != tt.ordinal {
			t.Fatalf("ResolveOrdinal(%s)=(%d,%v), want (%d,%v)", tt.time, ordinal, ok, tt.ordinal, tt.ok)
		}
	}
}

func TestDisplayOrdinalFallback(t *testing.T) {
	cal := Default()
	if got := cal.DisplayOrdinal(NewTimeOfDay(13, 0)); got != FallbackOrdinal {
		t.Fatalf("expected fallback ordinal, got %d", got)
	}
	if got := cal.DisplayOrdinal(NewTimeOfDay(15, 30)); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestParseTimeOfDayFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"09:00", "09:00"},
		{"9:00", "09:00"},
		{"14:30:00", "14:30"},
		{"02:30PM", "14:30"},
		{"02:30 pm", "14:30"},
		{"12:30 PM", "12:30"},
		{"09:00 AM", "09:00"},
	}
	for _, tt := range cases {
		tod, err := ParseTimeOfDay(tt.raw)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", tt.raw, err)
		}
		if tod.String() != tt.want {
			t.Fatalf("ParseTimeOfDay(%q)=%s, want %s", tt.raw, tod, tt.want)
		}
	}

	for _, raw := range []string{"", "noon", "25:00", "10:61"} {
		if _, err := ParseTimeOfDay(raw); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("ParseTimeOfDay(%q) expected ErrInvalidTime, got %v", raw, err)
		}
	}
}

func TestNewRejectsUnorderedTimes(t *testing.T) {
	if _, err := New([]string{"10:00", "09:00"}); err == nil {
		t.Fatalf("expected error for unordered slots")
	}
	if _, err := New([]string{"10:00", "10:00"}); err == nil {
		t.Fatalf("expected error for duplicate slots")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestCustomTable(t *testing.T) {
	cal, err := New([]string{"08:00", "08:20", "08:40"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ordinal, ok := cal.ResolveOrdinal(NewTimeOfDay(8, 40)); !ok || ordinal != 3 {
		t.Fatalf("expected ordinal 3, got %d %v", ordinal, ok)
	}
	slots := cal.Slots()
	slots[0].Ordinal = 99
	if cal.Slots()[0].Ordinal != 1 {
		t.Fatalf("Slots must return a copy")
	}
}

func TestMinuteOf(t *testing.T) {
	zone := time.FixedZone("MYT", 8*3600)
	now := time.Date(2024, 5, 10, 13, 45, 59, 0, zone)
	if got := MinuteOf(now); got != NewTimeOfDay(13, 45) {
		t.Fatalf("MinuteOf=%s", got)
	}
}

func TestLoadZone(t *testing.T) {
	loc, err := LoadZone("")
	if err != nil {
		t.Fatalf("default zone: %v", err)
	}
	_, offset := time.Date(2024, 5, 10, 12, 0, 0, 0, loc).Zone()
	if offset != 8*3600 {
		t.Fatalf("expected UTC+8, got offset %d", offset)
	}
	if _, err := LoadZone("Nowhere/Imaginary"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
