package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"qsmart/booking-service/internal/ledger"
	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"

	"github.com/go-playground/validator/v10"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// BookingService is the part of the ledger the HTTP surface drives.
type BookingService interface {
	Branch() string
	Now() time.Time
	Services() []models.Service
	Availability(ctx context.Context, date, service string) ([]ledger.SlotAvailability, error)
	CreateBooking(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error)
	GetBooking(ctx context.Context, id int64) (models.Booking, error)
	QueueView(ctx context.Context, id int64) (ledger.QueueView, error)
	List(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error)
	TransitionStatus(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	ExpirePastPending(ctx context.Context, now time.Time) (int, error)
	AddReview(ctx context.Context, bookingID int64, rating int, feedback *string) (models.Review, error)
}

type Handler struct {
	svc        BookingService
	staffToken string
	validate   *validator.Validate
}

type Options struct {
	// StaffToken guards staff endpoints. Empty disables the check.
	StaffToken string
}

type createBookingRequest struct {
	CustomerID    string `json:"customer_id" validate:"required,max=64"`
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	Service       string `json:"service" validate:"required"`
	Branch        string `json:"branch" validate:"omitempty,max=64"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,max=16"`
	Notes         string `json:"notes" validate:"max=500"`
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

type reviewRequest struct {
	Rating   int     `json:"rating" validate:"required,min=1,max=5"`
	Feedback *string `json:"feedback" validate:"omitempty,max=1000"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
	Input     any           `json:"input,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listResponse struct {
	Bookings []models.Booking `json:"bookings"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func NewHandler(svc BookingService, options Options) *Handler {
	return &Handler{
		svc:        svc,
		staffToken: strings.TrimSpace(options.StaffToken),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/availability", h.handleAvailability)
	mux.HandleFunc("/api/bookings", h.handleBookings)
	mux.HandleFunc("/api/bookings/", h.handleBookingActions)
	mux.HandleFunc("/api/expiry/run", h.handleExpiryRun)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"branch":   h.svc.Branch(),
		"services": h.svc.Services(),
	})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	service := strings.TrimSpace(r.URL.Query().Get("service"))
	if date == "" || service == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "date and service are required")
		return
	}
	slots, err := h.svc.Availability(r.Context(), date, service)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"service": service,
		"slots":   slots,
	})
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createBooking(w, r)
	case http.MethodGet:
		h.listBookings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	var req createBookingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.Service = strings.TrimSpace(req.Service)
	req.Branch = strings.TrimSpace(req.Branch)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	booking, err := h.svc.CreateBooking(r.Context(), ledger.CreateBookingInput{
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Service:       req.Service,
		Branch:        req.Branch,
		Date:          req.Date,
		Time:          req.Time,
		Notes:         req.Notes,
	})
	if err != nil && booking.ID == 0 {
		status, code, msg := mapError(err)
		resp := errorResponse{RequestID: requestID, Error: responseError{Code: code, Message: msg}}
		if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
			resp.Input = req
		}
		writeJSON(w, status, resp)
		return
	}
	if err != nil {
		// committed, but the day could not be re-read for the queue code
		writeJSON(w, http.StatusCreated, ledger.QueueView{Booking: booking, AsOf: h.svc.Now()})
		return
	}

	view, err := h.svc.QueueView(r.Context(), booking.ID)
	if err != nil {
		writeJSON(w, http.StatusCreated, ledger.QueueView{Booking: booking, AsOf: h.svc.Now()})
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// listBookings serves the staff dashboard. A request filtered by customer_id
// is the customer's own history and skips the staff check; the opaque
// customer reference is the key, and staff fields stay hidden from it.
func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()
	filter := store.ListFilter{
		Branch:     h.svc.Branch(),
		Date:       strings.TrimSpace(query.Get("date")),
		Service:    strings.TrimSpace(query.Get("service")),
		Status:     strings.TrimSpace(query.Get("status")),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		Descending: strings.EqualFold(strings.TrimSpace(query.Get("sort")), "desc"),
		Limit:      defaultListLimit,
	}
	staff := h.isStaff(r)
	if filter.CustomerID == "" && !h.requireStaff(w, r) {
		return
	}
	if filter.Status != "" && !store.KnownStatus(filter.Status) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown status filter")
		return
	}
	if filter.Date != "" {
		if _, err := time.Parse(models.DateLayout, filter.Date); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if value := strings.TrimSpace(query.Get("offset")); value != "" {
		offset, err := strconv.Atoi(value)
		if err != nil || offset < 0 {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	bookings, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	if !staff {
		for i := range bookings {
			bookings[i].StaffID = nil
		}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Bookings: bookings,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

func (h *Handler) handleBookingActions(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	path := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		writeError(w, requestID, http.StatusNotFound, "not_found", "route not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "booking id must be a positive integer")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getBooking(w, r, id)
		case http.MethodDelete:
			h.deleteBooking(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "queue":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.queueView(w, r, id)
	case "status":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.updateStatus(w, r, id)
	case "review":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.addReview(w, r, id)
	default:
		writeError(w, requestID, http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	booking, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !h.isStaff(r) && !ownsBooking(r, booking) {
		booking = redactBooking(booking)
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) queueView(w http.ResponseWriter, r *http.Request, id int64) {
	view, err := h.svc.QueueView(r.Context(), id)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !h.isStaff(r) && !ownsBooking(r, view.Booking) {
		view.Booking = redactBooking(view.Booking)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) deleteBooking(w http.ResponseWriter, r *http.Request, id int64) {
	if !h.requireStaff(w, r) {
		return
	}
	if err := h.svc.DeleteBooking(r.Context(), id); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, id int64) {
	if !h.requireStaff(w, r) {
		return
	}
	requestID := requestIDFromRequest(r)
	var req statusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	if req.Status == models.StatusMissed {
		writeError(w, requestID, http.StatusConflict, "illegal_transition", "missed is set by the expiry sweep once the slot has passed")
		return
	}

	staffID := strings.TrimSpace(r.Header.Get("X-Staff-ID"))
	booking, err := h.svc.TransitionStatus(r.Context(), id, req.Status, staffID, req.Notes)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// addReview takes the customer's rating of a completed visit. Without the
// staff token the caller must present the booking's customer reference.
func (h *Handler) addReview(w http.ResponseWriter, r *http.Request, id int64) {
	requestID := requestIDFromRequest(r)
	var req reviewRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	if !h.isStaff(r) {
		booking, err := h.svc.GetBooking(r.Context(), id)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID, status, code, msg)
			return
		}
		if !ownsBooking(r, booking) {
			writeError(w, requestID, http.StatusForbidden, "access_denied", "booking belongs to another customer")
			return
		}
	}

	review, err := h.svc.AddReview(r.Context(), id, req.Rating, req.Feedback)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *Handler) handleExpiryRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireStaff(w, r) {
		return
	}
	count, err := h.svc.ExpirePastPending(r.Context(), h.svc.Now())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": count})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "request body is required")
		return false
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "datetime":
		return field + " must be YYYY-MM-DD"
	case "max":
		if fe.Kind() == reflect.String {
			return field + " is too long"
		}
		return field + " is out of range"
	case "min":
		return field + " is out of range"
	default:
		return field + " is invalid"
	}
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidService):
		return http.StatusUnprocessableEntity, "invalid_service", "service is not offered"
	case errors.Is(err, ledger.ErrInvalidSlot):
		return http.StatusUnprocessableEntity, "invalid_slot", "slot is not bookable"
	case errors.Is(err, ledger.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "slot already booked for this service"
	case errors.Is(err, ledger.ErrAlreadyTerminal):
		return http.StatusConflict, "already_terminal", "booking is already completed or missed"
	case errors.Is(err, ledger.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition", "status change not allowed"
	case errors.Is(err, ledger.ErrInvalidReview):
		return http.StatusUnprocessableEntity, "invalid_review", "rating or feedback is invalid"
	case errors.Is(err, ledger.ErrAlreadyReviewed):
		return http.StatusConflict, "already_reviewed", "booking already has a review"
	case errors.Is(err, ledger.ErrReviewNotAllowed):
		return http.StatusConflict, "review_not_allowed", "only completed bookings can be reviewed"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found", "booking not found"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
