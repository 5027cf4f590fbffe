package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qsmart/booking-service/internal/catalog"
	"qsmart/booking-service/internal/clock"
	"qsmart/booking-service/internal/ledger"
	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"
	"qsmart/booking-service/internal/store/memory"
)

var myt = time.FixedZone("MYT", 8*3600)

type fakeService struct {
	createFn       func(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error)
	getFn          func(ctx context.Context, id int64) (models.Booking, error)
	queueViewFn    func(ctx context.Context, id int64) (ledger.QueueView, error)
	listFn         func(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error)
	transitionFn   func(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error)
	deleteFn       func(ctx context.Context, id int64) error
	expireFn       func(ctx context.Context, now time.Time) (int, error)
	availabilityFn func(ctx context.Context, date, service string) ([]ledger.SlotAvailability, error)
	reviewFn       func(ctx context.Context, bookingID int64, rating int, feedback *string) (models.Review, error)
}

func (f fakeService) Branch() string { return "Bangi" }

func (f fakeService) Now() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, myt) }

func (f fakeService) Services() []models.Service { return catalog.DefaultServices }

func (f fakeService) Availability(ctx context.Context, date, service string) ([]ledger.SlotAvailability, error) {
	if f.availabilityFn == nil {
		return nil, nil
	}
	return f.availabilityFn(ctx, date, service)
}

func (f fakeService) CreateBooking(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error) {
	if f.createFn == nil {
		return models.Booking{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeService) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	if f.getFn == nil {
		return models.Booking{}, ledger.ErrNotFound
	}
	return f.getFn(ctx, id)
}

func (f fakeService) QueueView(ctx context.Context, id int64) (ledger.QueueView, error) {
	if f.queueViewFn == nil {
		return ledger.QueueView{}, ledger.ErrNotFound
	}
	return f.queueViewFn(ctx, id)
}

func (f fakeService) List(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, filter)
}

func (f fakeService) TransitionStatus(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error) {
	if f.transitionFn == nil {
		return models.Booking{}, nil
	}
	return f.transitionFn(ctx, id, target, staffID, notes)
}

func (f fakeService) DeleteBooking(ctx context.Context, id int64) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

func (f fakeService) ExpirePastPending(ctx context.Context, now time.Time) (int, error) {
	if f.expireFn == nil {
		return 0, nil
	}
	return f.expireFn(ctx, now)
}

func (f fakeService) AddReview(ctx context.Context, bookingID int64, rating int, feedback *string) (models.Review, error) {
	if f.reviewFn == nil {
		return models.Review{BookingID: bookingID, Rating: rating, Feedback: feedback}, nil
	}
	return f.reviewFn(ctx, bookingID, rating, feedback)
}

func validCreatePayload() map[string]string {
	return map[string]string{
		"customer_id":    "cust-1",
		"customer_name":  "Nurul",
		"customer_email": "nurul@example.com",
		"service":        "Loan Application",
		"date":           "2024-05-10",
		"time":           "10:00",
	}
}

func postJSON(t *testing.T, h http.Handler, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestCreateBookingSuccess(t *testing.T) {
	var got ledger.CreateBookingInput
	svc := fakeService{
		createFn: func(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error) {
			got = input
			return models.Booking{ID: 7, Service: input.Service, Date: input.Date, Time: input.Time, Status: models.StatusPending}, nil
		},
		queueViewFn: func(ctx context.Context, id int64) (ledger.QueueView, error) {
			return ledger.QueueView{Booking: models.Booking{ID: id}, QueueCode: "B001", SlotNumber: 3}, nil
		},
	}
	h := NewHandler(svc, Options{})

	payload := validCreatePayload()
	payload["customer_name"] = "  Nurul  "
	resp := postJSON(t, h.Routes(), "/api/bookings", payload, nil)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if got.CustomerName != "Nurul" {
		t.Fatalf("expected trimmed name, got %q", got.CustomerName)
	}
	var view ledger.QueueView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.QueueCode != "B001" || view.Booking.ID != 7 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestCreateBookingMissingFields(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})
	cases := []struct {
		name  string
		field string
		value string
	}{
		{"missing customer", "customer_id", ""},
		{"missing service", "service", ""},
		{"bad date", "date", "10/05/2024"},
		{"bad email", "customer_email", "not-an-email"},
	}
	for _, tt := range cases {
		payload := validCreatePayload()
		payload[tt.field] = tt.value
		resp := postJSON(t, h.Routes(), "/api/bookings", payload, nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", tt.name, resp.Code)
		}
	}
}

func TestCreateBookingRejectsUnknownFields(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})
	payload := validCreatePayload()
	payload["priority"] = "vip"
	resp := postJSON(t, h.Routes(), "/api/bookings", payload, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateBookingErrorMapping(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		echoInput bool
	}{
		{ledger.ErrSlotTaken, http.StatusConflict, "slot_taken", true},
		{ledger.ErrInvalidSlot, http.StatusUnprocessableEntity, "invalid_slot", true},
		{ledger.ErrInvalidService, http.StatusUnprocessableEntity, "invalid_service", true},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal_error", false},
	}
	for _, tt := range cases {
		svc := fakeService{
			createFn: func(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error) {
				return models.Booking{}, tt.err
			},
		}
		h := NewHandler(svc, Options{})
		resp := postJSON(t, h.Routes(), "/api/bookings", validCreatePayload(), map[string]string{"X-Request-ID": "req-1"})

		if resp.Code != tt.status {
			t.Fatalf("%v: expected status %d, got %d", tt.err, tt.status, resp.Code)
		}
		var errResp struct {
			RequestID string                `json:"request_id"`
			Error     responseError         `json:"error"`
			Input     *createBookingRequest `json:"input"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if errResp.Error.Code != tt.code || errResp.RequestID != "req-1" {
			t.Fatalf("unexpected error response: %+v", errResp)
		}
		if tt.echoInput && (errResp.Input == nil || errResp.Input.Time != "10:00") {
			t.Fatalf("%v: expected input echo, got %+v", tt.err, errResp.Input)
		}
		if !tt.echoInput && errResp.Input != nil {
			t.Fatalf("%v: unexpected input echo", tt.err)
		}
	}
}

func TestCreateBookingCommittedDespiteReadFailure(t *testing.T) {
	svc := fakeService{
		createFn: func(ctx context.Context, input ledger.CreateBookingInput) (models.Booking, error) {
			return models.Booking{ID: 4, Status: models.StatusPending}, errors.New("read day: timeout")
		},
	}
	h := NewHandler(svc, Options{})
	resp := postJSON(t, h.Routes(), "/api/bookings", validCreatePayload(), nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
}

func TestStatusUpdate(t *testing.T) {
	var gotStaff, gotTarget string
	var gotNotes *string
	svc := fakeService{
		transitionFn: func(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error) {
			gotStaff, gotTarget, gotNotes = staffID, target, notes
			return models.Booking{ID: id, Status: target}, nil
		},
	}
	h := NewHandler(svc, Options{StaffToken: "secret"})

	payload := map[string]any{"status": "In_Progress", "notes": "counter 2"}
	resp := postJSON(t, h.Routes(), "/api/bookings/3/status", payload, map[string]string{
		"Authorization": "Bearer secret",
		"X-Staff-ID":    "staff-9",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if gotStaff != "staff-9" || gotTarget != models.StatusInProgress || gotNotes == nil || *gotNotes != "counter 2" {
		t.Fatalf("unexpected transition call: %q %q %v", gotStaff, gotTarget, gotNotes)
	}
}

func TestStatusUpdateRequiresStaffToken(t *testing.T) {
	h := NewHandler(fakeService{}, Options{StaffToken: "secret"})
	payload := map[string]string{"status": "completed"}

	resp := postJSON(t, h.Routes(), "/api/bookings/3/status", payload, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	resp = postJSON(t, h.Routes(), "/api/bookings/3/status", payload, map[string]string{"Authorization": "Bearer wrong"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestStatusUpdateErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ledger.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
		{ledger.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
		{ledger.ErrNotFound, http.StatusNotFound, "not_found"},
	}
	for _, tt := range cases {
		svc := fakeService{
			transitionFn: func(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error) {
				return models.Booking{}, tt.err
			},
		}
		h := NewHandler(svc, Options{})
		resp := postJSON(t, h.Routes(), "/api/bookings/3/status", map[string]string{"status": "completed"}, nil)
		if resp.Code != tt.status {
			t.Fatalf("%v: expected status %d, got %d", tt.err, tt.status, resp.Code)
		}
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if errResp.Error.Code != tt.code {
			t.Fatalf("expected code %s, got %s", tt.code, errResp.Error.Code)
		}
	}
}

func TestStatusUpdateRejectsMissed(t *testing.T) {
	svc := fakeService{
		transitionFn: func(ctx context.Context, id int64, target, staffID string, notes *string) (models.Booking, error) {
			t.Fatalf("missed must not reach the ledger")
			return models.Booking{}, nil
		},
	}
	h := NewHandler(svc, Options{})
	for _, status := range []string{"missed", " MISSED "} {
		resp := postJSON(t, h.Routes(), "/api/bookings/3/status", map[string]string{"status": status}, nil)
		if resp.Code != http.StatusConflict {
			t.Fatalf("%q: expected status 409, got %d", status, resp.Code)
		}
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if errResp.Error.Code != "illegal_transition" {
			t.Fatalf("expected code illegal_transition, got %s", errResp.Error.Code)
		}
	}
}

func TestAddReviewErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		payload map[string]any
		status  int
		code    string
	}{
		{"created", nil, map[string]any{"rating": 5, "feedback": "great"}, http.StatusCreated, ""},
		{"duplicate", ledger.ErrAlreadyReviewed, map[string]any{"rating": 4}, http.StatusConflict, "already_reviewed"},
		{"unknown booking", ledger.ErrNotFound, map[string]any{"rating": 4}, http.StatusNotFound, "not_found"},
		{"not completed", ledger.ErrReviewNotAllowed, map[string]any{"rating": 4}, http.StatusConflict, "review_not_allowed"},
		{"ledger rejects", ledger.ErrInvalidReview, map[string]any{"rating": 4}, http.StatusUnprocessableEntity, "invalid_review"},
		{"rating out of range", nil, map[string]any{"rating": 6}, http.StatusBadRequest, "invalid_request"},
		{"rating missing", nil, map[string]any{"feedback": "ok"}, http.StatusBadRequest, "invalid_request"},
		{"feedback too long", nil, map[string]any{"rating": 3, "feedback": strings.Repeat("x", 1001)}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range cases {
		svc := fakeService{
			reviewFn: func(ctx context.Context, bookingID int64, rating int, feedback *string) (models.Review, error) {
				if tt.err != nil {
					return models.Review{}, tt.err
				}
				return models.Review{ID: 1, BookingID: bookingID, Rating: rating, Feedback: feedback}, nil
			},
		}
		h := NewHandler(svc, Options{})
		resp := postJSON(t, h.Routes(), "/api/bookings/3/review", tt.payload, nil)
		if resp.Code != tt.status {
			t.Fatalf("%s: expected status %d, got %d: %s", tt.name, tt.status, resp.Code, resp.Body.String())
		}
		if tt.code == "" {
			continue
		}
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			t.Fatalf("%s: decode response: %v", tt.name, err)
		}
		if errResp.Error.Code != tt.code {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.code, errResp.Error.Code)
		}
	}
}

func TestAddReviewRequiresCustomer(t *testing.T) {
	var reviewed bool
	svc := fakeService{
		getFn: func(ctx context.Context, id int64) (models.Booking, error) {
			if id != 3 {
				return models.Booking{}, ledger.ErrNotFound
			}
			return models.Booking{ID: 3, CustomerID: "cust-1", Status: models.StatusCompleted}, nil
		},
		reviewFn: func(ctx context.Context, bookingID int64, rating int, feedback *string) (models.Review, error) {
			reviewed = true
			return models.Review{BookingID: bookingID, Rating: rating}, nil
		},
	}
	h := NewHandler(svc, Options{StaffToken: "secret"})
	payload := map[string]int{"rating": 5}

	cases := []struct {
		path    string
		headers map[string]string
		status  int
	}{
		{"/api/bookings/3/review", nil, http.StatusForbidden},
		{"/api/bookings/3/review", map[string]string{"X-Customer-ID": "cust-2"}, http.StatusForbidden},
		{"/api/bookings/9/review", map[string]string{"X-Customer-ID": "cust-1"}, http.StatusNotFound},
		{"/api/bookings/3/review", map[string]string{"X-Customer-ID": "cust-1"}, http.StatusCreated},
		{"/api/bookings/3/review", map[string]string{"Authorization": "Bearer secret"}, http.StatusCreated},
	}
	for _, tt := range cases {
		reviewed = false
		resp := postJSON(t, h.Routes(), tt.path, payload, tt.headers)
		if resp.Code != tt.status {
			t.Fatalf("%s %v: expected status %d, got %d", tt.path, tt.headers, tt.status, resp.Code)
		}
		if reviewed != (tt.status == http.StatusCreated) {
			t.Fatalf("%s %v: review call mismatch, reviewed=%v", tt.path, tt.headers, reviewed)
		}
	}
}

func TestPublicReadsHideContactDetails(t *testing.T) {
	staffID := "staff-4"
	notes := "prefers counter 1"
	booking := models.Booking{
		ID:            3,
		CustomerID:    "cust-1",
		CustomerName:  "Nurul",
		CustomerEmail: "nurul@example.com",
		Service:       "Loan Application",
		Status:        models.StatusInProgress,
		StaffID:       &staffID,
		Notes:         &notes,
	}
	svc := fakeService{
		getFn: func(ctx context.Context, id int64) (models.Booking, error) {
			return booking, nil
		},
		queueViewFn: func(ctx context.Context, id int64) (ledger.QueueView, error) {
			return ledger.QueueView{Booking: booking, QueueCode: "B001"}, nil
		},
	}
	h := NewHandler(svc, Options{StaffToken: "secret"})

	cases := []struct {
		name    string
		headers map[string]string
		visible bool
	}{
		{"anonymous", nil, false},
		{"other customer", map[string]string{"X-Customer-ID": "cust-2"}, false},
		{"own customer", map[string]string{"X-Customer-ID": "cust-1"}, true},
		{"staff", map[string]string{"Authorization": "Bearer secret"}, true},
	}
	for _, path := range []string{"/api/bookings/3", "/api/bookings/3/queue"} {
		for _, tt := range cases {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp := httptest.NewRecorder()
			h.Routes().ServeHTTP(resp, req)
			if resp.Code != http.StatusOK {
				t.Fatalf("%s %s: expected status 200, got %d", path, tt.name, resp.Code)
			}
			body := resp.Body.String()
			for _, secret := range []string{"Nurul", "nurul@example.com", staffID, notes} {
				if strings.Contains(body, secret) != tt.visible {
					t.Fatalf("%s %s: visibility of %q should be %v, body %s", path, tt.name, secret, tt.visible, body)
				}
			}
			if !strings.Contains(body, `"status":"in_progress"`) {
				t.Fatalf("%s %s: status missing from %s", path, tt.name, body)
			}
		}
	}
}

func TestCustomerHistoryHidesStaffID(t *testing.T) {
	staffID := "staff-4"
	svc := fakeService{
		listFn: func(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
			return []models.Booking{{ID: 1, CustomerID: filter.CustomerID, StaffID: &staffID}}, 1, nil
		},
	}
	h := NewHandler(svc, Options{StaffToken: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/bookings?customer_id=cust-1", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || strings.Contains(resp.Body.String(), staffID) {
		t.Fatalf("customer history leaked staff id: %d %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/bookings?customer_id=cust-1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), staffID) {
		t.Fatalf("staff should see staff id: %d %s", resp.Code, resp.Body.String())
	}
}

func TestBookingRoutes(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})
	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/bookings/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/bookings/0", http.StatusBadRequest},
		{http.MethodGet, "/api/bookings/5", http.StatusNotFound},
		{http.MethodGet, "/api/bookings/5/queue", http.StatusNotFound},
		{http.MethodGet, "/api/bookings/5/unknown", http.StatusNotFound},
		{http.MethodPut, "/api/bookings/5", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/bookings/5/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/bookings/5/review", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/bookings/5", http.StatusNoContent},
		{http.MethodPost, "/api/healthz", http.StatusNotFound},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/expiry/run", http.StatusMethodNotAllowed},
	}
	for _, tt := range cases {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != tt.status {
			t.Fatalf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.status, resp.Code)
		}
	}
}

func TestListBookingsFilters(t *testing.T) {
	var got store.ListFilter
	svc := fakeService{
		listFn: func(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
			got = filter
			return []models.Booking{{ID: 1}}, 12, nil
		},
	}
	h := NewHandler(svc, Options{StaffToken: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/bookings?status=pending&date=2024-05-10&limit=500&offset=10", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got.Branch != "Bangi" || got.Status != models.StatusPending || got.Limit != maxListLimit || got.Offset != 10 {
		t.Fatalf("unexpected filter: %+v", got)
	}
	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if list.Total != 12 || len(list.Bookings) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestListBookingsAccess(t *testing.T) {
	h := NewHandler(fakeService{}, Options{StaffToken: "secret"})
	cases := []struct {
		path   string
		status int
	}{
		{"/api/bookings", http.StatusUnauthorized},
		{"/api/bookings?customer_id=cust-1&sort=desc", http.StatusOK},
		{"/api/bookings?customer_id=cust-1&status=cancelled", http.StatusBadRequest},
		{"/api/bookings?customer_id=cust-1&limit=-1", http.StatusBadRequest},
		{"/api/bookings?customer_id=cust-1&date=May", http.StatusBadRequest},
	}
	for _, tt := range cases {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != tt.status {
			t.Fatalf("%s: expected status %d, got %d", tt.path, tt.status, resp.Code)
		}
	}
}

func TestAvailabilityHandler(t *testing.T) {
	svc := fakeService{
		availabilityFn: func(ctx context.Context, date, service string) ([]ledger.SlotAvailability, error) {
			if service != "Account Opening" {
				return nil, ledger.ErrInvalidService
			}
			return []ledger.SlotAvailability{{Time: "09:00", Ordinal: 1, Bookable: true}}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/availability?date=2024-05-10&service=Account+Opening", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/availability?date=2024-05-10&service=Gold", nil)
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/availability", nil)
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestExpiryRun(t *testing.T) {
	svc := fakeService{
		expireFn: func(ctx context.Context, now time.Time) (int, error) {
			return 2, nil
		},
	}
	h := NewHandler(svc, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/expiry/run", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"expired":2`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestBookingFlowAgainstLedger(t *testing.T) {
	fixed := clock.NewFixed(time.Date(2024, 5, 10, 8, 0, 0, 0, myt))
	l := ledger.New(memory.New(), ledger.Options{Location: myt, Clock: fixed})
	h := NewHandler(l, Options{}).Routes()

	for i, name := range []string{"Aida", "Badrul"} {
		payload := validCreatePayload()
		payload["customer_name"] = name
		payload["time"] = []string{"10:00", "09:30"}[i]
		resp := postJSON(t, h, "/api/bookings", payload, nil)
		if resp.Code != http.StatusCreated {
			t.Fatalf("create %s: expected status 201, got %d: %s", name, resp.Code, resp.Body.String())
		}
	}

	resp := postJSON(t, h, "/api/bookings", validCreatePayload(), nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected status 409, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/1/queue", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue view: expected status 200, got %d", rec.Code)
	}
	var view ledger.QueueView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.QueueCode != "B001" || view.Snapshot.PeopleAhead != 1 || view.SlotNumber != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}

	resp = postJSON(t, h, "/api/bookings/1/status", map[string]string{"status": "completed"}, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("pending->completed: expected status 409, got %d", resp.Code)
	}
	resp = postJSON(t, h, "/api/bookings/1/status", map[string]string{"status": "in_progress"}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("pending->in_progress: expected status 200, got %d", resp.Code)
	}

	fixed.Set(time.Date(2024, 5, 10, 12, 0, 0, 0, myt))
	resp = postJSON(t, h, "/api/expiry/run", map[string]string{}, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"expired":1`) {
		t.Fatalf("expiry: unexpected response %d %s", resp.Code, resp.Body.String())
	}

	resp = postJSON(t, h, "/api/bookings/1/review", map[string]int{"rating": 5}, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("review before completion: expected status 409, got %d", resp.Code)
	}
	resp = postJSON(t, h, "/api/bookings/1/status", map[string]string{"status": "completed"}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("in_progress->completed: expected status 200, got %d", resp.Code)
	}
	resp = postJSON(t, h, "/api/bookings/1/review", map[string]any{"rating": 5, "feedback": "smooth"}, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("review: expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = postJSON(t, h, "/api/bookings/1/review", map[string]int{"rating": 2}, nil)
	if resp.Code != http.StatusConflict || !strings.Contains(resp.Body.String(), "already_reviewed") {
		t.Fatalf("duplicate review: unexpected response %d %s", resp.Code, resp.Body.String())
	}
	resp = postJSON(t, h, "/api/bookings/99/review", map[string]int{"rating": 2}, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown booking review: expected status 404, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/bookings/1/queue", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"has_review":true`) {
		t.Fatalf("queue view should report the review: %d %s", rec.Code, rec.Body.String())
	}
}
