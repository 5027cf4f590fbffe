package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qsmart/booking-service/internal/calendar"
	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/queue"
	"qsmart/booking-service/internal/store"
)

func (l *Ledger) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	return l.store.GetBooking(ctx, id)
}

// CodeFor returns the display code of booking, e.g. "B002".
func (l *Ledger) CodeFor(ctx context.Context, booking models.Booking) (string, error) {
	day, err := l.store.ListDay(ctx, booking.Branch, booking.Date)
	if err != nil {
		return "", err
	}
	return queue.CodeFor(l.catalog.Letter(booking.Service), booking, day), nil
}

func (l *Ledger) Snapshot(ctx context.Context, booking models.Booking, now time.Time) (queue.Snapshot, error) {
	day, err := l.store.ListDay(ctx, booking.Branch, booking.Date)
	if err != nil {
		return queue.Snapshot{}, err
	}
	return queue.Estimate(booking, day, now.In(l.loc), l.loc)
}

type QueueView struct {
	Booking          models.Booking `json:"booking"`
	QueueCode        string         `json:"queue_code"`
	SlotNumber       int            `json:"slot_number"`
	Snapshot         queue.Snapshot `json:"snapshot"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	HasReview        bool           `json:"has_review"`
	AsOf             time.Time      `json:"as_of"`
}

// QueueView assembles the customer-facing view of one booking from a single
// read of its branch day.
func (l *Ledger) QueueView(ctx context.Context, id int64) (QueueView, error) {
	booking, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return QueueView{}, err
	}
	day, err := l.store.ListDay(ctx, booking.Branch, booking.Date)
	if err != nil {
		return QueueView{}, err
	}
	now := l.Now()
	snap, err := queue.Estimate(booking, day, now, l.loc)
	if err != nil {
		return QueueView{}, err
	}

	reviewed, err := l.hasReview(ctx, booking.ID)
	if err != nil {
		return QueueView{}, err
	}

	slotNumber := calendar.FallbackOrdinal
	if tod, err := calendar.ParseTimeOfDay(booking.Time); err == nil {
		slotNumber = l.calendar.DisplayOrdinal(tod)
	}
	return QueueView{
		Booking:          booking,
		QueueCode:        queue.CodeFor(l.catalog.Letter(booking.Service), booking, day),
		SlotNumber:       slotNumber,
		Snapshot:         snap,
		EstimatedMinutes: queue.CountEstimate(snap.PeopleAhead, l.minutesPerCustomer),
		HasReview:        reviewed,
		AsOf:             now,
	}, nil
}

type SlotAvailability struct {
	Time     string `json:"time"`
	Ordinal  int    `json:"ordinal"`
	Booked   bool   `json:"booked"`
	Bookable bool   `json:"bookable"`
}

// Availability lists the published slots of date for service. A slot is
// bookable when nobody holds it and it has not started yet.
func (l *Ledger) Availability(ctx context.Context, date, service string) ([]SlotAvailability, error) {
	service = strings.TrimSpace(service)
	if !l.catalog.Valid(service) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidService, service)
	}
	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(date), l.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidSlot, date)
	}
	date = day.Format(models.DateLayout)

	bookings, err := l.store.ListDay(ctx, l.branch, date)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(bookings))
	for _, booking := range bookings {
		if booking.Service == service {
			booked[booking.Time] = true
		}
	}

	now := l.Now()
	today := now.Format(models.DateLayout)
	nowMinute := calendar.MinuteOf(now)

	slots := l.calendar.Slots()
	out := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		elapsed := date < today || (date == today && slot.Time < nowMinute)
		taken := booked[slot.Label]
		out = append(out, SlotAvailability{
			Time:     slot.Label,
			Ordinal:  slot.Ordinal,
			Booked:   taken,
			Bookable: !taken && !elapsed,
		})
	}
	return out, nil
}

// List is the dashboard read. It sweeps overdue bookings first so the page
// never shows a stale pending row.
func (l *Ledger) List(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
	if _, err := l.ExpirePastPending(ctx, l.clock.Now()); err != nil {
		return nil, 0, err
	}
	return l.store.ListBookings(ctx, filter)
}
