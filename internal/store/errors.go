package store

import "errors"

var (
	ErrSlotTaken       = errors.New("slot already booked for service")
	ErrBookingNotFound = errors.New("booking not found")
	ErrStatusConflict  = errors.New("booking status changed concurrently")
	ErrReviewExists    = errors.New("booking already reviewed")
	ErrReviewNotFound  = errors.New("review not found")
)
