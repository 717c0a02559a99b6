package gate

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimiter counts requests per key inside a sliding window. OnLimit
// reports whether the request exceeds the budget; the gate writes the
// verdict body itself. *httprate.RateLimiter satisfies this directly; a
// multi-instance deployment can substitute a shared-store implementation
// without touching the gate.
type RateLimiter interface {
	OnLimit(w http.ResponseWriter, r *http.Request, key string) bool
}

// NewMemoryRateLimiter builds the process-local limiter used for sensitive
// public endpoints. Counters partition per instance under horizontal
// scaling.
func NewMemoryRateLimiter(requests int, window time.Duration) RateLimiter {
	return httprate.NewRateLimiter(requests, window)
}
