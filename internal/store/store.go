package store

import (
	"context"
	"time"

	"qsmart/booking-service/internal/models"
)

// StatusUpdate applies To only while the stored status still equals From.
type StatusUpdate struct {
	ID        int64
	From      string
	To        string
	StaffID   string
	Notes     *string
	UpdatedAt time.Time
}

// ExpireInput selects pending bookings dated before Today, or dated Today
// with a slot strictly before Cutoff.
type ExpireInput struct {
	Today     string
	Cutoff    string
	UpdatedAt time.Time
}

type ListFilter struct {
	Branch     string
	Date       string
	Service    string
	Status     string
	CustomerID string
	Descending bool
	Limit      int
	Offset     int
}

type BookingStore interface {
	// InsertBooking fails with ErrSlotTaken when (branch, date, time, service)
	// is already held. The check and insert are one atomic step.
	InsertBooking(ctx context.Context, booking models.Booking) (models.Booking, error)
	GetBooking(ctx context.Context, id int64) (models.Booking, error)
	// ListDay returns every booking of a branch day ordered by id.
	ListDay(ctx context.Context, branch, date string) ([]models.Booking, error)
	ListBookings(ctx context.Context, filter ListFilter) ([]models.Booking, int, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (models.Booking, error)
	ExpirePending(ctx context.Context, input ExpireInput) ([]models.Booking, error)
	// DeleteBooking also removes the booking's review.
	DeleteBooking(ctx context.Context, id int64) (models.Booking, error)
	// InsertReview fails with ErrBookingNotFound for an unknown booking and
	// with ErrReviewExists when the booking already has a review.
	InsertReview(ctx context.Context, review models.Review) (models.Review, error)
	GetReview(ctx context.Context, bookingID int64) (models.Review, error)
}

// Overdue reports whether a pending booking falls under input.
func Overdue(booking models.Booking, input ExpireInput) bool {
	if booking.Status != models.StatusPending {
		return false
	}
	if booking.Date < input.Today {
		return true
	}
	return booking.Date == input.Today && booking.Time < input.Cutoff
}

// Matches applies every non-empty field of filter to booking.
func (f ListFilter) Matches(booking models.Booking) bool {
	switch {
	case f.Branch != "" && booking.Branch != f.Branch:
		return false
	case f.Date != "" && booking.Date != f.Date:
		return false
	case f.Service != "" && booking.Service != f.Service:
		return false
	case f.Status != "" && booking.Status != f.Status:
		return false
	case f.CustomerID != "" && booking.CustomerID != f.CustomerID:
		return false
	}
	return true
}
