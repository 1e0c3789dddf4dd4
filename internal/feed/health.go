package feed

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// SourceHealth is a point-in-time view of one feed source.
type SourceHealth struct {
	Name          string           `json:"name"`
	State         string           `json:"circuit_state"`
	Counts        gobreaker.Counts `json:"-"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time       `json:"last_failure_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	LastBytes     int              `json:"last_bytes,omitempty"`
}

// Healthy reports whether the breaker is closed.
func (h SourceHealth) Healthy() bool {
	return h.State == gobreaker.StateClosed.String()
}

// Health tracks fetch outcomes per feed source.
type Health struct {
	mu      sync.RWMutex
	sources map[string]*sourceState
	now     func() time.Time
}

type sourceState struct {
	fetcher       *Fetcher
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
	lastBytes     int
}

// NewHealth creates an empty tracker.
func NewHealth() *Health {
	return &Health{
		sources: make(map[string]*sourceState),
		now:     time.Now,
	}
}

func (h *Health) register(name string, f *Fetcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[name] = &sourceState{fetcher: f}
}

func (h *Health) recordSuccess(name string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sources[name]; ok {
		now := h.now()
		s.lastSuccessAt = &now
		s.lastBytes = n
	}
}

func (h *Health) recordFailure(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sources[name]; ok {
		now := h.now()
		s.lastFailureAt = &now
		s.lastError = err.Error()
	}
}

// Source returns the health of one source, or false if unknown.
func (h *Health) Source(name string) (SourceHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sources[name]
	if !ok {
		return SourceHealth{}, false
	}
	return s.snapshot(name), true
}

// Snapshot returns the health of every source ordered by name.
func (h *Health) Snapshot() []SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SourceHealth, 0, len(h.sources))
	for name, s := range h.sources {
		out = append(out, s.snapshot(name))
	}
	slices.SortFunc(out, func(a, b SourceHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *sourceState) snapshot(name string) SourceHealth {
	return SourceHealth{
		Name:          name,
		State:         s.fetcher.State().String(),
		Counts:        s.fetcher.Counts(),
		LastSuccessAt: s.lastSuccessAt,
		LastFailureAt: s.lastFailureAt,
		LastError:     s.lastError,
		LastBytes:     s.lastBytes,
	}
}
