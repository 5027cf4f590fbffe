package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"qsmart/booking-service/internal/models"
)

// requireStaff checks the bearer token on staff endpoints. With no token
// configured every caller is treated as staff.
func (h *Handler) requireStaff(w http.ResponseWriter, r *http.Request) bool {
	if h.staffToken == "" {
		return true
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing staff token")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.staffToken)) != 1 {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "invalid staff token")
		return false
	}
	return true
}

// isStaff reports whether r carries the staff token without writing a
// response.
func (h *Handler) isStaff(r *http.Request) bool {
	if h.staffToken == "" {
		return true
	}
	token := bearerToken(r.Header.Get("Authorization"))
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.staffToken)) == 1
}

// ownsBooking matches the caller's X-Customer-ID against the booking's
// customer reference.
func ownsBooking(r *http.Request, booking models.Booking) bool {
	customer := strings.TrimSpace(r.Header.Get("X-Customer-ID"))
	return customer != "" && subtle.ConstantTimeCompare([]byte(customer), []byte(booking.CustomerID)) == 1
}

// redactBooking drops contact details and staff fields from a booking shown
// to someone other than its customer.
func redactBooking(booking models.Booking) models.Booking {
	booking.CustomerName = ""
	booking.CustomerEmail = ""
	booking.StaffID = nil
	booking.Notes = nil
	return booking
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
