package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AddReview records the customer's rating of a completed booking. Each
// booking takes at most one review; a second one is ErrAlreadyReviewed.
func (l *Ledger) AddReview(ctx context.Context, bookingID int64, rating int, feedback *string) (review models.Review, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.AddReview", trace.WithAttributes(
		attribute.Int64("booking.id", bookingID),
		attribute.Int("review.rating", rating),
	))
	defer func() { endSpan(span, err) }()

	if rating < models.MinRating || rating > models.MaxRating {
		return models.Review{}, fmt.Errorf("%w: rating %d outside %d..%d", ErrInvalidReview, rating, models.MinRating, models.MaxRating)
	}
	var text *string
	if feedback != nil {
		if trimmed := strings.TrimSpace(*feedback); trimmed != "" {
			if utf8.RuneCountInString(trimmed) > models.MaxFeedbackLength {
				return models.Review{}, fmt.Errorf("%w: feedback longer than %d characters", ErrInvalidReview, models.MaxFeedbackLength)
			}
			text = &trimmed
		}
	}

	booking, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Review{}, err
	}
	if booking.Status != models.StatusCompleted {
		return models.Review{}, fmt.Errorf("%w: booking is %s", ErrReviewNotAllowed, booking.Status)
	}

	return l.store.InsertReview(ctx, models.Review{
		BookingID: bookingID,
		Rating:    rating,
		Feedback:  text,
		CreatedAt: l.Now().UTC(),
	})
}

func (l *Ledger) hasReview(ctx context.Context, bookingID int64) (bool, error) {
	_, err := l.store.GetReview(ctx, bookingID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrReviewNotFound):
		return false, nil
	default:
		return false, err
	}
}
