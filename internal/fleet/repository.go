package fleet

import "context"

// Repository defines storage for vehicles, drivers and status events.
// Status events are append-only: there is no way to update or delete one.
type Repository interface {
	// GetVehicle retrieves a vehicle. Returns ErrVehicleNotFound if missing.
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)

	// SaveVehicle creates or replaces a vehicle.
	// Returns ErrDuplicateRegCode if the reg_code is taken in the country.
	SaveVehicle(ctx context.Context, v *Vehicle) error

	// GetDriver retrieves a driver. Returns ErrDriverNotFound if missing.
	GetDriver(ctx context.Context, id string) (*Driver, error)

	// SaveDriver creates or replaces a driver.
	// Returns ErrDuplicateStaffCode if the staff_code is taken.
	SaveDriver(ctx context.Context, d *Driver) error

	// RecordStatusChange sets the vehicle status to ev.To and appends ev,
	// atomically. Returns ErrStatusChangedMidway if the stored status is not ev.From.
	RecordStatusChange(ctx context.Context, ev VehicleStatusEvent) error

	// ListStatusEvents returns a vehicle's status events, oldest first.
	ListStatusEvents(ctx context.Context, vehicleID string) ([]VehicleStatusEvent, error)
}
