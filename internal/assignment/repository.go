package assignment

import (
	"context"
	"time"
)

// Repository defines the interface for assignment persistence.
type Repository interface {
	Store
	Remover

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, id string) (*Assignment, error)

	// ListByDate returns every assignment on a duty date ordered by
	// resource, then start time.
	ListByDate(ctx context.Context, date time.Time) ([]Assignment, error)
}
