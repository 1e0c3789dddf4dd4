package ops

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// StatusRateLimit applies to /status, which pings the database on every call.
var StatusRateLimit = RateLimitConfig{
	RequestLimit: 30,
	WindowLength: time.Minute,
}

// RateLimitByIP creates a rate limiter keyed on the client IP. It expects
// chi's RealIP middleware to run first.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.WindowLength.Seconds())))
			writeProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}),
	)
}
