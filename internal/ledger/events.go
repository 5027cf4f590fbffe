package ledger

import (
	"context"

	"qsmart/booking-service/internal/models"
)

// StatusEvent is emitted after every successful status change.
type StatusEvent struct {
	BookingID     int64   `json:"booking_id"`
	Status        string  `json:"status"`
	QueuePosition int     `json:"queue_position"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	Service       string  `json:"service"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Branch        string  `json:"branch"`
	Notes         *string `json:"notes,omitempty"`
}

// QueueEvent carries the refreshed position of one pending booking.
type QueueEvent struct {
	BookingID   int64  `json:"booking_id"`
	TurnCode    string `json:"turn_code"`
	PeopleAhead int    `json:"people_ahead"`
	WaitMinutes int    `json:"wait_minutes"`
	Service     string `json:"service"`
	Branch      string `json:"branch"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// Broadcaster receives ledger events. Implementations own delivery and must
// not block on slow consumers.
type Broadcaster interface {
	BookingStatusUpdated(ctx context.Context, event StatusEvent)
	QueueUpdated(ctx context.Context, event QueueEvent)
}

type Confirmation struct {
	Booking   models.Booking
	QueueCode string
}

// Mailer sends booking confirmations. Failures stay inside the mailer.
type Mailer interface {
	SendConfirmation(ctx context.Context, confirmation Confirmation)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BookingStatusUpdated(context.Context, StatusEvent) {}
func (nopBroadcaster) QueueUpdated(context.Context, QueueEvent)          {}

type nopMailer struct{}

func (nopMailer) SendConfirmation(context.Context, Confirmation) {}
