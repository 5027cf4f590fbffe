// Package memory is a process-local BookingStore used for development and
// tests. A single mutex makes each operation one critical section.
package memory

import (
	"context"
	"sort"
	"sync"

	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"
)

type slotKey struct {
	branch  string
	date    string
	time    string
	service string
}

func keyOf(b models.Booking) slotKey {
	return slotKey{branch: b.Branch, date: b.Date, time: b.Time, service: b.Service}
}

type Store struct {
	mu           sync.Mutex
	nextID       int64
	nextReviewID int64
	bookings     map[int64]models.Booking
	slots        map[slotKey]int64
	reviews      map[int64]models.Review
}

func New() *Store {
	return &Store{
		bookings: make(map[int64]models.Booking),
		slots:    make(map[slotKey]int64),
		reviews:  make(map[int64]models.Review),
	}
}

func (s *Store) InsertBooking(ctx context.Context, booking models.Booking) (models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(booking)
	if _, taken := s.slots[key]; taken {
		return models.Booking{}, store.ErrSlotTaken
	}
	s.nextID++
	booking.ID = s.nextID
	s.bookings[booking.ID] = booking
	s.slots[key] = booking.ID
	return booking, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, store.ErrBookingNotFound
	}
	return booking, nil
}

func (s *Store) ListDay(ctx context.Context, branch, date string) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Booking, 0)
	for _, booking := range s.bookings {
		if booking.Branch == branch && booking.Date == date {
			out = append(out, booking)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBookings(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	matched := make([]models.Booking, 0)
	for _, booking := range s.bookings {
		if filter.Matches(booking) {
			matched = append(matched, booking)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		less := a.Date < b.Date ||
			(a.Date == b.Date && a.Time < b.Time) ||
			(a.Date == b.Date && a.Time == b.Time && a.ID < b.ID)
		if filter.Descending {
			return !less
		}
		return less
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []models.Booking{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) UpdateStatus(ctx context.Context, update store.StatusUpdate) (models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[update.ID]
	if !ok {
		return models.Booking{}, store.ErrBookingNotFound
	}
	if booking.Status != update.From {
		return models.Booking{}, store.ErrStatusConflict
	}
	booking.Status = update.To
	booking.UpdatedAt = update.UpdatedAt
	if update.StaffID != "" {
		staffID := update.StaffID
		booking.StaffID = &staffID
	}
	if update.Notes != nil {
		notes := *update.Notes
		booking.Notes = &notes
	}
	s.bookings[booking.ID] = booking
	return booking, nil
}

func (s *Store) ExpirePending(ctx context.Context, input store.ExpireInput) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]models.Booking, 0)
	for id, booking := range s.bookings {
		if !store.Overdue(booking, input) {
			continue
		}
		booking.Status = models.StatusMissed
		booking.UpdatedAt = input.UpdatedAt
		s.bookings[id] = booking
		expired = append(expired, booking)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id int64) (models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, store.ErrBookingNotFound
	}
	delete(s.bookings, id)
	delete(s.reviews, id)
	if s.slots[keyOf(booking)] == id {
		delete(s.slots, keyOf(booking))
	}
	return booking, nil
}

func (s *Store) InsertReview(ctx context.Context, review models.Review) (models.Review, error) {
	if err := ctx.Err(); err != nil {
		return models.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[review.BookingID]; !ok {
		return models.Review{}, store.ErrBookingNotFound
	}
	if _, exists := s.reviews[review.BookingID]; exists {
		return models.Review{}, store.ErrReviewExists
	}
	s.nextReviewID++
	review.ID = s.nextReviewID
	s.reviews[review.BookingID] = review
	return review, nil
}

func (s *Store) GetReview(ctx context.Context, bookingID int64) (models.Review, error) {
	if err := ctx.Err(); err != nil {
		return models.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	review, ok := s.reviews[bookingID]
	if !ok {
		return models.Review{}, store.ErrReviewNotFound
	}
	return review, nil
}
