package hub

import (
	"context"
	"encoding/json"
	"time"

	"qsmart/booking-service/internal/ledger"
)

const (
	StaffChannel = "staff-dashboard"

	EventBookingStatusUpdated = "BookingStatusUpdated"
	EventQueueUpdated         = "QueueUpdated"
)

func QueueChannel(branch string) string {
	return "queue." + branch
}

type eventEnvelope struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Hub) BookingStatusUpdated(_ context.Context, event ledger.StatusEvent) {
	h.publish(EventBookingStatusUpdated, Subscription{
		Channel: StaffChannel,
		Branch:  event.Branch,
		Service: event.Service,
	}, event)
}

func (h *Hub) QueueUpdated(_ context.Context, event ledger.QueueEvent) {
	h.publish(EventQueueUpdated, Subscription{
		Channel: QueueChannel(event.Branch),
		Branch:  event.Branch,
		Service: event.Service,
	}, event)
}

func (h *Hub) publish(eventType string, meta Subscription, payload any) {
	body, err := json.Marshal(eventEnvelope{
		Type:      eventType,
		Channel:   meta.Channel,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("encode event")
		return
	}
	h.Broadcast(body, meta)
}
