package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and dry runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewInMemoryRepository creates a new in-memory calendar repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		services: make(map[string]*Service),
	}
}

// GetService retrieves a service by ID.
func (r *InMemoryRepository) GetService(_ context.Context, id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return s.Clone(), nil
}

// ListServices returns all services of a country ordered by name.
func (r *InMemoryRepository) ListServices(_ context.Context, countryID string) ([]*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Service
	for _, s := range r.services {
		if s.CountryID == countryID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListActiveOn returns the IDs of a country's services that run on date.
func (r *InMemoryRepository) ListActiveOn(_ context.Context, countryID string, date time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, s := range r.services {
		if s.CountryID == countryID && ActiveOn(s, date) {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveService creates or replaces a service.
func (r *InMemoryRepository) SaveService(_ context.Context, s *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.services {
		if id != s.ID && existing.CountryID == s.CountryID && existing.Name == s.Name {
			return ErrDuplicateServiceName
		}
	}
	r.services[s.ID] = s.Clone()
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
