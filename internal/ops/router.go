package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/feed"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	DB        Pinger
	Feeds     *feed.Health
	Jobs      StatsSource

	// StatusLimit defaults to StatusRateLimit.
	StatusLimit RateLimitConfig

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates a chi router serving the ops endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Tracing())
	r.Use(Logger(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	h := &Handler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		db:        cfg.DB,
		feeds:     cfg.Feeds,
		jobs:      cfg.Jobs,
		now:       now,
	}

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadinessCheck)
	limit := cfg.StatusLimit
	if limit.RequestLimit == 0 {
		limit = StatusRateLimit
	}
	r.With(RateLimitByIP(limit)).Get("/status", h.SystemStatus)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "no such endpoint")
	})

	return r
}
