package calendar

import (
	"context"
	"time"
)

// Repository defines storage for service calendars.
type Repository interface {
	// GetService retrieves a service by ID. Returns ErrServiceNotFound if missing.
	GetService(ctx context.Context, id string) (*Service, error)

	// ListServices returns all services of a country ordered by name.
	ListServices(ctx context.Context, countryID string) ([]*Service, error)

	// ListActiveOn returns the IDs of a country's services that run on date.
	ListActiveOn(ctx context.Context, countryID string, date time.Time) ([]string, error)

	// SaveService creates or replaces a service including its exceptions.
	// Returns ErrDuplicateServiceName if another service of the same country has the name.
	SaveService(ctx context.Context, s *Service) error
}
