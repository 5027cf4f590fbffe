package notify

import (
	"context"

	"qsmart/booking-service/internal/ledger"
)

// Fanout passes each event to every non-nil broadcaster in order.
type Fanout []ledger.Broadcaster

func NewFanout(targets ...ledger.Broadcaster) Fanout {
	out := make(Fanout, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			out = append(out, target)
		}
	}
	return out
}

func (f Fanout) BookingStatusUpdated(ctx context.Context, event ledger.StatusEvent) {
	for _, target := range f {
		target.BookingStatusUpdated(ctx, event)
	}
}

func (f Fanout) QueueUpdated(ctx context.Context, event ledger.QueueEvent) {
	for _, target := range f {
		target.QueueUpdated(ctx, event)
	}
}
