package fleet

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and dry runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	vehicles map[string]*Vehicle
	drivers  map[string]*Driver
	events   []VehicleStatusEvent
}

// NewInMemoryRepository creates a new in-memory fleet repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		vehicles: make(map[string]*Vehicle),
		drivers:  make(map[string]*Driver),
	}
}

// GetVehicle retrieves a vehicle by ID.
func (r *InMemoryRepository) GetVehicle(_ context.Context, id string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	cpy := *v
	return &cpy, nil
}

// SaveVehicle creates or replaces a vehicle.
func (r *InMemoryRepository) SaveVehicle(_ context.Context, v *Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.vehicles {
		if id != v.ID && existing.CountryID == v.CountryID && existing.RegCode == v.RegCode {
			return ErrDuplicateRegCode
		}
	}
	cpy := *v
	r.vehicles[v.ID] = &cpy
	return nil
}

// GetDriver retrieves a driver by ID.
func (r *InMemoryRepository) GetDriver(_ context.Context, id string) (*Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	cpy := *d
	return &cpy, nil
}

// SaveDriver creates or replaces a driver.
func (r *InMemoryRepository) SaveDriver(_ context.Context, d *Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.drivers {
		if id != d.ID && existing.StaffCode == d.StaffCode {
			return ErrDuplicateStaffCode
		}
	}
	cpy := *d
	r.drivers[d.ID] = &cpy
	return nil
}

// RecordStatusChange updates the status and appends the event.
func (r *InMemoryRepository) RecordStatusChange(_ context.Context, ev VehicleStatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[ev.VehicleID]
	if !ok {
		return ErrVehicleNotFound
	}
	if v.Status != ev.From {
		return ErrStatusChangedMidway
	}
	v.Status = ev.To
	r.events = append(r.events, ev)
	return nil
}

// ListStatusEvents returns a vehicle's events in append order.
func (r *InMemoryRepository) ListStatusEvents(_ context.Context, vehicleID string) ([]VehicleStatusEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []VehicleStatusEvent
	for _, ev := range r.events {
		if ev.VehicleID == vehicleID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
