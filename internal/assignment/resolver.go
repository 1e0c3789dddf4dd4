package assignment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Store is the storage a Resolver reads and commits through.
type Store interface {
	// FetchAssignments returns the resource's assignments on a duty date.
	FetchAssignments(ctx context.Context, r Resource, date time.Time) ([]Assignment, error)

	// CommitAssignment records a new assignment.
	CommitAssignment(ctx context.Context, a *Assignment) error
}

// ResolverConfig holds optional hooks for a Resolver.
type ResolverConfig struct {
	// OnLockWait is called with the time spent waiting for a key.
	OnLockWait func(ctx context.Context, d time.Duration)

	Now func() time.Time
}

// Resolver serialises conflict-check-and-commit per (resource, duty date).
// Requests for different keys run in parallel. A Resolver must be shared
// by every caller that commits into the same Store.
type Resolver struct {
	locks      *lockTable
	onLockWait func(ctx context.Context, d time.Duration)
	now        func() time.Time
}

// NewResolver creates a resolver with an empty lock table.
func NewResolver(cfg ResolverConfig) *Resolver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		locks:      newLockTable(),
		onLockWait: cfg.OnLockWait,
		now:        now,
	}
}

// Check returns the existing assignment that collides with candidate, if
// any. When several collide the earliest by start time wins, then the
// lowest ID, so the reported conflict does not depend on storage order.
// Back-to-back spans do not collide.
func Check(candidate timespan.Interval, existing []Assignment) (Assignment, bool) {
	var hits []Assignment
	for _, a := range existing {
		if timespan.Overlaps(candidate, a.Span()) {
			hits = append(hits, a)
		}
	}
	if len(hits) == 0 {
		return Assignment{}, false
	}

	slices.SortFunc(hits, func(a, b Assignment) int {
		if a.StartTime != b.StartTime {
			if a.StartTime < b.StartTime {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return hits[0], true
}

// Assign records req for the block span unless the resource already holds
// an overlapping assignment that day, in which case a *ConflictError is
// returned and nothing is written.
//
// The per-key lock is held from the fetch through the commit and released
// on every return path. If ctx ends while waiting for the lock, or before
// the commit, Assign returns ctx.Err() without writing.
func (r *Resolver) Assign(ctx context.Context, store Store, req Request, span timespan.Interval) (*Assignment, error) {
	if err := req.Resource.Validate(); err != nil {
		return nil, err
	}
	if span.Empty() || span.Start < 0 {
		return nil, validation.InvalidRange(validation.Ref("block", req.BlockID),
			"span %s is empty or negative", span)
	}
	date := calendar.Day(req.DutyDate)

	var created *Assignment
	err := r.withLock(ctx, req.Resource, date, func() error {
		existing, err := store.FetchAssignments(ctx, req.Resource, date)
		if err != nil {
			return fmt.Errorf("fetch assignments for %s on %s: %w",
				req.Resource, date.Format(time.DateOnly), err)
		}

		if hit, ok := Check(span, existing); ok {
			return &ConflictError{Request: req, Span: span, Existing: hit}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		a := &Assignment{
			ID:           NewID(),
			ResourceKind: req.Resource.Kind,
			ResourceID:   req.Resource.ID,
			DutyDate:     date,
			BlockID:      req.BlockID,
			StartTime:    span.Start,
			EndTime:      span.End,
			CreatedAt:    r.now().UTC(),
		}
		if err := store.CommitAssignment(ctx, a); err != nil {
			return fmt.Errorf("commit assignment: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Remover deletes assignments.
type Remover interface {
	DeleteAssignment(ctx context.Context, id string) error
}

// Release deletes a, holding the same key lock Assign uses so that a
// concurrent Assign sees either the old or the new state.
func (r *Resolver) Release(ctx context.Context, store Remover, a Assignment) error {
	return r.withLock(ctx, a.Resource(), calendar.Day(a.DutyDate), func() error {
		return store.DeleteAssignment(ctx, a.ID)
	})
}

// ActiveKeys returns the number of keys currently held or waited on.
func (r *Resolver) ActiveKeys() int {
	return r.locks.size()
}

func (r *Resolver) withLock(ctx context.Context, res Resource, date time.Time, fn func() error) error {
	key := keyFor(res, date)

	start := r.now()
	release, err := r.locks.acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s on %s: %w", res, key.date, err)
	}
	defer release()

	if r.onLockWait != nil {
		r.onLockWait(ctx, r.now().Sub(start))
	}
	return fn()
}
