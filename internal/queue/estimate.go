package queue

import (
	"fmt"
	"math"
	"strings"
	"time"

	"qsmart/booking-service/internal/models"
)

const DefaultMinutesPerCustomer = 10

const (
	MessageCompleted = "Appointment Completed"
	MessageMissed    = "Appointment Missed"
	MessageServing   = "Your service is currently being served"
	MessageEnded     = "Appointment Ended"
	MessageWaiting   = "Waiting"
)

type Snapshot struct {
	PeopleAhead   int    `json:"people_ahead"`
	WaitMinutes   int    `json:"wait_minutes"`
	WaitText      string `json:"wait_text,omitempty"`
	StatusMessage string `json:"status_message"`
	IsPast        bool   `json:"is_past"`
}

// ScheduledAt is the booking's slot start as an instant in loc.
func ScheduledAt(booking models.Booking, loc *time.Location) (time.Time, error) {
	at, err := time.ParseInLocation(models.DateLayout+" "+models.TimeLayout, booking.Date+" "+booking.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking %d schedule: %w", booking.ID, err)
	}
	return at, nil
}

// Estimate computes the live view of booking at now. WaitMinutes is the time
// left until the slot starts, not a count-based figure; see CountEstimate.
// A slot counts as started once now's minute is past it, the same minute
// granularity booking and expiry use.
func Estimate(booking models.Booking, day []models.Booking, now time.Time, loc *time.Location) (Snapshot, error) {
	switch booking.Status {
	case models.StatusCompleted:
		return Snapshot{StatusMessage: MessageCompleted, IsPast: true}, nil
	case models.StatusMissed:
		return Snapshot{StatusMessage: MessageMissed, IsPast: true}, nil
	case models.StatusInProgress:
		return Snapshot{StatusMessage: MessageServing}, nil
	}

	scheduled, err := ScheduledAt(booking, loc)
	if err != nil {
		return Snapshot{}, err
	}
	minute := now.Truncate(time.Minute)
	if minute.After(scheduled) {
		return Snapshot{StatusMessage: MessageEnded, IsPast: true}, nil
	}

	ahead := 0
	for _, other := range day {
		if other.ID == booking.ID || other.Status != models.StatusPending {
			continue
		}
		if other.Branch != booking.Branch || other.Date != booking.Date || other.Service != booking.Service {
			continue
		}
		if other.Time >= booking.Time {
			continue
		}
		otherAt, err := ScheduledAt(other, loc)
		if err != nil {
			return Snapshot{}, err
		}
		// Earlier slots that already started are overdue, not queued.
		if minute.After(otherAt) {
			continue
		}
		ahead++
	}

	remaining := scheduled.Sub(now)
	minutes := int(math.Floor(remaining.Minutes()))
	switch {
	case remaining <= 0:
		minutes = 0
	case minutes == 0:
		minutes = 1
	}
	return Snapshot{
		PeopleAhead:   ahead,
		WaitMinutes:   minutes,
		WaitText:      FormatWait(minutes),
		StatusMessage: MessageWaiting,
	}, nil
}

// CountEstimate is the coarse wait figure: people ahead times the per-customer
// service duration.
func CountEstimate(peopleAhead, minutesPerCustomer int) int {
	if minutesPerCustomer <= 0 {
		minutesPerCustomer = DefaultMinutesPerCustomer
	}
	return peopleAhead * minutesPerCustomer
}

// FormatWait renders minutes as days, hours and minutes, leaving out units
// that are zero.
func FormatWait(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	days := minutes / (24 * 60)
	hours := (minutes % (24 * 60)) / 60
	mins := minutes % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if mins > 0 || len(parts) == 0 {
		parts = append(parts, plural(mins, "minute"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
