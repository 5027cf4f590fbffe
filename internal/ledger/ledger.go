// Package ledger owns booking state: creation under the slot uniqueness
// guarantee, the status state machine and time-based expiry. It never logs;
// callers receive the taxonomy errors in errors.go.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qsmart/booking-service/internal/calendar"
	"qsmart/booking-service/internal/catalog"
	"qsmart/booking-service/internal/clock"
	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/queue"
	"qsmart/booking-service/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBranch = "Bangi"

	tracerName            = "qsmart/booking-service/ledger"
	maxTransitionAttempts = 3
)

type Options struct {
	Branch             string
	Location           *time.Location
	Calendar           *calendar.Calendar
	Catalog            *catalog.Catalog
	Clock              clock.Clock
	MinutesPerCustomer int
	Broadcaster        Broadcaster
	Mailer             Mailer
}

type Ledger struct {
	store              store.BookingStore
	branch             string
	loc                *time.Location
	calendar           *calendar.Calendar
	catalog            *catalog.Catalog
	clock              clock.Clock
	minutesPerCustomer int
	broadcaster        Broadcaster
	mailer             Mailer
	tracer             trace.Tracer
}

func New(st store.BookingStore, options Options) *Ledger {
	l := &Ledger{
		store:              st,
		branch:             options.Branch,
		loc:                options.Location,
		calendar:           options.Calendar,
		catalog:            options.Catalog,
		clock:              options.Clock,
		minutesPerCustomer: options.MinutesPerCustomer,
		broadcaster:        options.Broadcaster,
		mailer:             options.Mailer,
		tracer:             otel.Tracer(tracerName),
	}
	if l.branch == "" {
		l.branch = DefaultBranch
	}
	if l.loc == nil {
		l.loc, _ = calendar.LoadZone(calendar.DefaultZone)
	}
	if l.calendar == nil {
		l.calendar = calendar.Default()
	}
	if l.catalog == nil {
		l.catalog = catalog.Default()
	}
	if l.clock == nil {
		l.clock = clock.System{}
	}
	if l.minutesPerCustomer <= 0 {
		l.minutesPerCustomer = queue.DefaultMinutesPerCustomer
	}
	if l.broadcaster == nil {
		l.broadcaster = nopBroadcaster{}
	}
	if l.mailer == nil {
		l.mailer = nopMailer{}
	}
	return l
}

func (l *Ledger) Branch() string             { return l.branch }
func (l *Ledger) Location() *time.Location   { return l.loc }
func (l *Ledger) Services() []models.Service { return l.catalog.Services() }
func (l *Ledger) Slots() []calendar.Slot     { return l.calendar.Slots() }
func (l *Ledger) Now() time.Time             { return l.clock.Now().In(l.loc) }
func (l *Ledger) MinutesPerCustomer() int    { return l.minutesPerCustomer }

type CreateBookingInput struct {
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	Service       string
	Branch        string
	Date          string
	Time          string
	Notes         string
}

// CreateBooking validates the request against the catalog, the calendar and
// the clock, then inserts it. The store's unique insert is the only guard
// against double booking. If the post-insert read fails the committed booking
// is returned together with the error.
func (l *Ledger) CreateBooking(ctx context.Context, input CreateBookingInput) (booking models.Booking, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CreateBooking")
	defer func() { endSpan(span, err) }()

	now := l.Now()
	booking, err = l.validate(input, now)
	if err != nil {
		return models.Booking{}, err
	}
	span.SetAttributes(
		attribute.String("booking.service", booking.Service),
		attribute.String("booking.date", booking.Date),
		attribute.String("booking.time", booking.Time),
	)

	booking, err = l.store.InsertBooking(ctx, booking)
	if err != nil {
		return models.Booking{}, err
	}
	span.SetAttributes(attribute.Int64("booking.id", booking.ID))

	day, err := l.store.ListDay(ctx, booking.Branch, booking.Date)
	if err != nil {
		return booking, err
	}
	code := queue.CodeFor(l.catalog.Letter(booking.Service), booking, day)
	l.mailer.SendConfirmation(ctx, Confirmation{Booking: booking, QueueCode: code})
	l.publishQueue(ctx, booking.Service, day, now)
	return booking, nil
}

func (l *Ledger) validate(input CreateBookingInput, now time.Time) (models.Booking, error) {
	service := strings.TrimSpace(input.Service)
	if !l.catalog.Valid(service) {
		return models.Booking{}, fmt.Errorf("%w: %q", ErrInvalidService, service)
	}

	branch := strings.TrimSpace(input.Branch)
	if branch == "" {
		branch = l.branch
	}
	if branch != l.branch {
		return models.Booking{}, fmt.Errorf("%w: unknown branch %q", ErrInvalidSlot, branch)
	}

	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(input.Date), l.loc)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%w: bad date %q", ErrInvalidSlot, input.Date)
	}
	tod, err := calendar.ParseTimeOfDay(input.Time)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if _, ok := l.calendar.ResolveOrdinal(tod); !ok {
		return models.Booking{}, fmt.Errorf("%w: %s is not a published slot", ErrInvalidSlot, tod)
	}

	date := day.Format(models.DateLayout)
	today := now.Format(models.DateLayout)
	if date < today {
		return models.Booking{}, fmt.Errorf("%w: date %s has passed", ErrInvalidSlot, date)
	}
	if date == today && tod < calendar.MinuteOf(now) {
		return models.Booking{}, fmt.Errorf("%w: %s has already passed today", ErrInvalidSlot, tod)
	}

	var notes *string
	if trimmed := strings.TrimSpace(input.Notes); trimmed != "" {
		notes = &trimmed
	}
	createdAt := now.UTC()
	return models.Booking{
		CustomerID:    strings.TrimSpace(input.CustomerID),
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerEmail: strings.TrimSpace(input.CustomerEmail),
		Service:       service,
		Branch:        branch,
		Date:          date,
		Time:          tod.String(),
		Status:        models.StatusPending,
		Notes:         notes,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}, nil
}

// TransitionStatus moves a booking to target on behalf of staffID. The store
// applies the change only if the status read here is still current; on a lost
// race the booking is re-read and the transition re-checked.
func (l *Ledger) TransitionStatus(ctx context.Context, id int64, target, staffID string, notes *string) (updated models.Booking, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.TransitionStatus", trace.WithAttributes(
		attribute.Int64("booking.id", id),
		attribute.String("booking.target_status", target),
	))
	defer func() { endSpan(span, err) }()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var current models.Booking
		current, err = l.store.GetBooking(ctx, id)
		if err != nil {
			return models.Booking{}, err
		}
		if err = checkTransition(current.Status, target); err != nil {
			return models.Booking{}, err
		}

		now := l.Now()
		updated, err = l.store.UpdateStatus(ctx, store.StatusUpdate{
			ID:        id,
			From:      current.Status,
			To:        target,
			StaffID:   strings.TrimSpace(staffID),
			Notes:     notes,
			UpdatedAt: now.UTC(),
		})
		if errors.Is(err, store.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return models.Booking{}, err
		}

		day, err := l.store.ListDay(ctx, updated.Branch, updated.Date)
		if err != nil {
			return updated, err
		}
		l.publishStatus(ctx, updated, day)
		l.publishQueue(ctx, updated.Service, day, now)
		return updated, nil
	}
	return models.Booking{}, fmt.Errorf("%w: booking %d kept changing", ErrIllegalTransition, id)
}

func checkTransition(from, to string) error {
	if store.IsTerminal(from) {
		return fmt.Errorf("%w: booking is %s", ErrAlreadyTerminal, from)
	}
	if !store.KnownStatus(to) || !store.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s to %q", ErrIllegalTransition, from, to)
	}
	return nil
}

// ExpirePastPending marks every pending booking whose slot started before
// now's minute as missed and returns how many changed.
func (l *Ledger) ExpirePastPending(ctx context.Context, now time.Time) (count int, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.ExpirePastPending")
	defer func() {
		span.SetAttributes(attribute.Int("bookings.expired", count))
		endSpan(span, err)
	}()

	local := now.In(l.loc)
	expired, err := l.store.ExpirePending(ctx, store.ExpireInput{
		Today:     local.Format(models.DateLayout),
		Cutoff:    calendar.MinuteOf(local).String(),
		UpdatedAt: now.UTC(),
	})
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	type dayKey struct{ branch, date string }
	groups := make(map[dayKey][]models.Booking)
	var order []dayKey
	for _, booking := range expired {
		key := dayKey{booking.Branch, booking.Date}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], booking)
	}

	for _, key := range order {
		day, err := l.store.ListDay(ctx, key.branch, key.date)
		if err != nil {
			return len(expired), err
		}
		services := make(map[string]bool)
		for _, booking := range groups[key] {
			l.publishStatus(ctx, booking, day)
			if !services[booking.Service] {
				services[booking.Service] = true
				l.publishQueue(ctx, booking.Service, day, local)
			}
		}
	}
	return len(expired), nil
}

func (l *Ledger) DeleteBooking(ctx context.Context, id int64) (err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.DeleteBooking", trace.WithAttributes(attribute.Int64("booking.id", id)))
	defer func() { endSpan(span, err) }()

	deleted, err := l.store.DeleteBooking(ctx, id)
	if err != nil {
		return err
	}
	day, err := l.store.ListDay(ctx, deleted.Branch, deleted.Date)
	if err != nil {
		return err
	}
	l.publishQueue(ctx, deleted.Service, day, l.Now())
	return nil
}

func (l *Ledger) publishStatus(ctx context.Context, booking models.Booking, day []models.Booking) {
	l.broadcaster.BookingStatusUpdated(ctx, StatusEvent{
		BookingID:     booking.ID,
		Status:        booking.Status,
		QueuePosition: queue.BranchPosition(booking, day),
		CustomerName:  booking.CustomerName,
		CustomerEmail: booking.CustomerEmail,
		Service:       booking.Service,
		Date:          booking.Date,
		Time:          booking.Time,
		Branch:        booking.Branch,
		Notes:         booking.Notes,
	})
}

// publishQueue refreshes every pending booking of one service on a branch day.
func (l *Ledger) publishQueue(ctx context.Context, service string, day []models.Booking, now time.Time) {
	letter := l.catalog.Letter(service)
	for _, booking := range day {
		if booking.Service != service || booking.Status != models.StatusPending {
			continue
		}
		snap, err := queue.Estimate(booking, day, now, l.loc)
		if err != nil {
			continue
		}
		l.broadcaster.QueueUpdated(ctx, QueueEvent{
			BookingID:   booking.ID,
			TurnCode:    queue.CodeFor(letter, booking, day),
			PeopleAhead: snap.PeopleAhead,
			WaitMinutes: queue.CountEstimate(snap.PeopleAhead, l.minutesPerCustomer),
			Service:     booking.Service,
			Branch:      booking.Branch,
			Date:        booking.Date,
			Time:        booking.Time,
		})
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
