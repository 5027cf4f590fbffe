// Package calendar holds a branch's fixed daily slot table.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time of day")

// FallbackOrdinal is shown for times outside the table. It is never used to
// accept a booking.
const FallbackOrdinal = 1

// TimeOfDay is a wall-clock time in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// MinuteOf truncates t to its minute of day in t's location.
func MinuteOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

var timeLayouts = []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"}

// ParseTimeOfDay accepts 24-hour "15:04" and "15:04:05" and 12-hour "03:04 PM"
// forms. Seconds are dropped.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return 0, ErrInvalidTime
	}
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return MinuteOf(parsed), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}

type Slot struct {
	Time    TimeOfDay `json:"-"`
	Label   string    `json:"time"`
	Ordinal int       `json:"ordinal"`
}

type Calendar struct {
	slots []Slot
	index map[TimeOfDay]int
}

// New builds a calendar from slot start times. Ordinals follow the given
// order starting at 1, so times must be strictly increasing.
func New(times []string) (*Calendar, error) {
	if len(times) == 0 {
		return nil, errors.New("calendar needs at least one slot")
	}
	c := &Calendar{index: make(map[TimeOfDay]int, len(times))}
	for i, raw := range times {
		tod, err := ParseTimeOfDay(raw)
		if err != nil {
			return nil, err
		}
		if i > 0 && tod <= c.slots[i-1].Time {
			return nil, fmt.Errorf("slot %s is not after %s", tod, c.slots[i-1].Time)
		}
		ordinal := i + 1
		c.slots = append(c.slots, Slot{Time: tod, Label: tod.String(), Ordinal: ordinal})
		c.index[tod] = ordinal
	}
	return c, nil
}

// DefaultTimes is the Bangi branch table. 12:00 and the 13:00 hour are lunch.
var DefaultTimes = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"12:30",
	"14:00", "14:30", "15:00", "15:30", "16:00",
}

func Default() *Calendar {
	c, err := New(DefaultTimes)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calendar) ResolveOrdinal(t TimeOfDay) (int, bool) {
	ordinal, ok := c.index[t]
	return ordinal, ok
}

// DisplayOrdinal is ResolveOrdinal with the fallback applied.
func (c *Calendar) DisplayOrdinal(t TimeOfDay) int {
	if ordinal, ok := c.index[t]; ok {
		return ordinal
	}
	return FallbackOrdinal
}

func (c *Calendar) Slots() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}
