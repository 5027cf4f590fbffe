package models

import "time"

type Booking struct {
	ID            int64     `json:"id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Service       string    `json:"service"`
	Branch        string    `json:"branch"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	StaffID       *string   `json:"staff_id,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusMissed     = "missed"
)

// Date and Time hold the branch-local calendar day and slot start.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
