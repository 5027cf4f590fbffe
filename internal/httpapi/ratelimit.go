package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimitConfig struct {
	IPPerMinute       int
	IPBurst           int
	CustomerPerMinute int
	CustomerBurst     int
	// TrustProxy keys the IP bucket on X-Forwarded-For. Only set it when a
	// proxy in front of the service overwrites that header.
	TrustProxy bool
}

// RateLimiter keeps one token bucket per client IP and one per customer id.
type RateLimiter struct {
	ipLimiter       *tokenLimiter
	customerLimiter *tokenLimiter
	trustProxy      bool
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:       newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		customerLimiter: newTokenLimiter(cfg.CustomerPerMinute, cfg.CustomerBurst),
		trustProxy:      cfg.TrustProxy,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFromRequest(r)
		ip := clientIP(r, l.trustProxy)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, requestID, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		customerID := extractCustomerID(r)
		if customerID != "" && !l.customerLimiter.allow(customerID) {
			writeError(w, requestID, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type tokenLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	bucket    map[string]*bucket
	now       func() time.Time
	idle      time.Duration
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	rate := float64(perMinute) / 60.0
	return &tokenLimiter{
		rate:   rate,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
		now:    time.Now,
		// a bucket idle this long has refilled and is equal to a fresh one
		idle: time.Duration(float64(burst) / rate * float64(time.Second)),
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

func (l *tokenLimiter) sweep(now time.Time) {
	for key, b := range l.bucket {
		if now.Sub(b.last) >= l.idle {
			delete(l.bucket, key)
		}
	}
	l.lastSweep = now
}

func (l *tokenLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bucket)
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractCustomerID looks at the X-Customer-ID header, then the query string,
// then a JSON body. The body is restored for the next handler.
func extractCustomerID(r *http.Request) string {
	if customerID := strings.TrimSpace(r.Header.Get("X-Customer-ID")); customerID != "" {
		return customerID
	}
	if customerID := strings.TrimSpace(r.URL.Query().Get("customer_id")); customerID != "" {
		return customerID
	}
	if r.Body == nil || r.Method != http.MethodPost {
		return ""
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	body, err := readBody(r)
	if err != nil {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if value, ok := payload["customer_id"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
