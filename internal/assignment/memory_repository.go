package assignment

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/arknettransit/dutyplan/internal/calendar"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and dry runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu          sync.RWMutex
	assignments map[string]Assignment
	commits     int
}

// NewInMemoryRepository creates a new in-memory assignment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		assignments: make(map[string]Assignment),
	}
}

// FetchAssignments returns the resource's assignments on a duty date.
func (r *InMemoryRepository) FetchAssignments(_ context.Context, res Resource, date time.Time) ([]Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	day := calendar.Day(date)
	var out []Assignment
	for _, a := range r.assignments {
		if a.Resource() == res && a.DutyDate.Equal(day) {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

// CommitAssignment records a new assignment.
func (r *InMemoryRepository) CommitAssignment(_ context.Context, a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments[a.ID] = *a
	r.commits++
	return nil
}

// DeleteAssignment removes an assignment.
func (r *InMemoryRepository) DeleteAssignment(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assignments[id]; !ok {
		return ErrAssignmentNotFound
	}
	delete(r.assignments, id)
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (r *InMemoryRepository) GetAssignment(_ context.Context, id string) (*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	return &a, nil
}

// ListByDate returns every assignment on a duty date.
func (r *InMemoryRepository) ListByDate(_ context.Context, date time.Time) ([]Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	day := calendar.Day(date)
	var out []Assignment
	for _, a := range r.assignments {
		if a.DutyDate.Equal(day) {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

// Commits returns how many times CommitAssignment has been called.
func (r *InMemoryRepository) Commits() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commits
}

func sortAssignments(as []Assignment) {
	slices.SortFunc(as, func(a, b Assignment) int {
		return cmp.Or(
			cmp.Compare(a.ResourceKind, b.ResourceKind),
			cmp.Compare(a.ResourceID, b.ResourceID),
			cmp.Compare(a.StartTime, b.StartTime),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
