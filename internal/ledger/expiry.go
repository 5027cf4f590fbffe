package ledger

import (
	"context"
	"time"
)

const sweepTimeout = 10 * time.Second

// ExpiryScanner runs ExpirePastPending on demand or on an interval.
type ExpiryScanner struct {
	ledger *Ledger
}

func NewExpiryScanner(l *Ledger) *ExpiryScanner {
	return &ExpiryScanner{ledger: l}
}

func (s *ExpiryScanner) Run(ctx context.Context, now time.Time) (int, error) {
	return s.ledger.ExpirePastPending(ctx, now)
}

// Loop sweeps every interval until ctx is cancelled, passing each result to
// report. A non-positive interval disables the loop.
func (s *ExpiryScanner) Loop(ctx context.Context, interval time.Duration, report func(int, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			count, err := s.Run(sweepCtx, s.ledger.clock.Now())
			cancel()
			if report != nil {
				report(count, err)
			}
		}
	}
}
