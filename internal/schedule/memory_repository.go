package schedule

import (
	"context"
	"slices"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and dry runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	blocks    map[string]*Block
	trips     map[string]Trip
	tripBlock map[string]string
}

// NewInMemoryRepository creates a new in-memory schedule repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		blocks:    make(map[string]*Block),
		trips:     make(map[string]Trip),
		tripBlock: make(map[string]string),
	}
}

// GetBlock retrieves a block by ID.
func (r *InMemoryRepository) GetBlock(_ context.Context, id string) (*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[id]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return b.Clone(), nil
}

// ListBlocks returns the IDs of a country's blocks.
func (r *InMemoryRepository) ListBlocks(_ context.Context, countryID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, b := range r.blocks {
		if b.CountryID == countryID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// FetchTrips returns the trips a block references, in sequence order.
func (r *InMemoryRepository) FetchTrips(_ context.Context, blockID string) ([]Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[blockID]
	if !ok {
		return nil, ErrBlockNotFound
	}

	var trips []Trip
	for _, id := range b.TripIDs() {
		if t, ok := r.trips[id]; ok {
			trips = append(trips, t.Clone())
		}
	}
	return trips, nil
}

// GetTrip retrieves a trip by ID.
func (r *InMemoryRepository) GetTrip(_ context.Context, id string) (*Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	cpy := t.Clone()
	return &cpy, nil
}

// SaveTrips creates or replaces trips.
func (r *InMemoryRepository) SaveTrips(_ context.Context, trips []Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range trips {
		r.trips[t.ID] = t.Clone()
	}
	return nil
}

// SaveBlock creates or replaces a block.
func (r *InMemoryRepository) SaveBlock(_ context.Context, b *Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ownedElsewhere(b) {
		return ErrTripAlreadyBlocked
	}
	r.putBlock(b)
	return nil
}

// SaveComposed stores trips and b under one lock.
func (r *InMemoryRepository) SaveComposed(_ context.Context, trips []Trip, b *Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ownedElsewhere(b) {
		return ErrTripAlreadyBlocked
	}
	for _, t := range trips {
		r.trips[t.ID] = t.Clone()
	}
	r.putBlock(b)
	return nil
}

func (r *InMemoryRepository) ownedElsewhere(b *Block) bool {
	for _, bt := range b.Trips {
		if owner, ok := r.tripBlock[bt.TripID]; ok && owner != b.ID {
			return true
		}
	}
	return false
}

func (r *InMemoryRepository) putBlock(b *Block) {
	if old, ok := r.blocks[b.ID]; ok {
		for _, bt := range old.Trips {
			delete(r.tripBlock, bt.TripID)
		}
	}
	for _, bt := range b.Trips {
		r.tripBlock[bt.TripID] = b.ID
	}
	r.blocks[b.ID] = b.Clone()
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
