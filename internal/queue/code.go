// Package queue derives display codes and live queue positions from a day's
// bookings. Every function here is pure over its inputs.
package queue

import (
	"fmt"

	"qsmart/booking-service/internal/models"
)

const codePad = 3

// CodeFor returns letter followed by the booking's creation-order sequence
// among same-service bookings on its date. day is any superset of that group.
func CodeFor(letter string, booking models.Booking, day []models.Booking) string {
	seq := 0
	for _, other := range day {
		if other.Service == booking.Service && other.Date == booking.Date && other.ID <= booking.ID {
			seq++
		}
	}
	return fmt.Sprintf("%s%0*d", letter, codePad, seq)
}

// BranchPosition counts pending bookings of the branch day that come before
// booking by slot, then by id.
func BranchPosition(booking models.Booking, day []models.Booking) int {
	position := 0
	for _, other := range day {
		if other.ID == booking.ID || other.Status != models.StatusPending {
			continue
		}
		if other.Branch != booking.Branch || other.Date != booking.Date {
			continue
		}
		if other.Time < booking.Time || (other.Time == booking.Time && other.ID < booking.ID) {
			position++
		}
	}
	return position
}
