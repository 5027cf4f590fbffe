package models

import "time"

// Review is the customer's rating of a finished appointment. A booking has at
// most one.
type Review struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Rating    int       `json:"rating"`
	Feedback  *string   `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MinRating         = 1
	MaxRating         = 5
	MaxFeedbackLength = 1000
)
