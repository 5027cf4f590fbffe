package ledger

import (
	"errors"

	"qsmart/booking-service/internal/store"
)

var (
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrInvalidService    = errors.New("invalid service")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrAlreadyTerminal   = errors.New("booking already in a terminal status")
	ErrInvalidReview     = errors.New("invalid review")
	ErrReviewNotAllowed  = errors.New("booking cannot be reviewed yet")

	ErrSlotTaken = store.ErrSlotTaken
	ErrNotFound  = store.ErrBookingNotFound

	ErrAlreadyReviewed = store.ErrReviewExists
)
