package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"qsmart/booking-service/internal/ledger"
	"qsmart/booking-service/internal/models"

	"github.com/rs/zerolog"
)

const DefaultConfirmationTemplate = "Your {service} appointment at {branch} is booked for {date} at {time}. Your queue number is {queue_code}."

const sendTimeout = 10 * time.Second

// Mailer renders booking confirmations and sends them in the background.
// Delivery errors are logged and never retried.
type Mailer struct {
	provider Provider
	template string
	logger   zerolog.Logger
	loc      *time.Location
	wg       sync.WaitGroup
}

func NewMailer(provider Provider, template string, loc *time.Location, logger zerolog.Logger) *Mailer {
	if template == "" {
		template = DefaultConfirmationTemplate
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Mailer{
		provider: provider,
		template: template,
		logger:   logger.With().Str("component", "mailer").Logger(),
		loc:      loc,
	}
}

func (m *Mailer) SendConfirmation(ctx context.Context, confirmation ledger.Confirmation) {
	recipient := strings.TrimSpace(confirmation.Booking.CustomerEmail)
	if recipient == "" {
		m.logger.Warn().Int64("booking_id", confirmation.Booking.ID).Msg("confirmation skipped: no email")
		return
	}
	message := renderTemplate(m.template, confirmationPayload(confirmation, m.loc))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := m.provider.Send(sendCtx, message, recipient); err != nil {
			m.logger.Error().Err(err).Int64("booking_id", confirmation.Booking.ID).Msg("confirmation delivery failed")
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (m *Mailer) Wait() {
	m.wg.Wait()
}

type payloadData map[string]string

func confirmationPayload(c ledger.Confirmation, loc *time.Location) payloadData {
	payload := payloadData{
		"service":       c.Booking.Service,
		"branch":        c.Booking.Branch,
		"date":          c.Booking.Date,
		"time":          c.Booking.Time,
		"queue_code":    c.QueueCode,
		"customer_name": c.Booking.CustomerName,
	}
	if day, err := time.ParseInLocation(models.DateLayout, c.Booking.Date, loc); err == nil {
		payload["date"] = day.Format("02 Jan 2006")
	}
	if tod, err := time.ParseInLocation(models.TimeLayout, c.Booking.Time, loc); err == nil {
		payload["time"] = tod.Format("03:04 PM")
	}
	return payload
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	for key, value := range payload {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
