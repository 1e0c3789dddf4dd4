package fleet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arknettransit/dutyplan/internal/database"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL fleet repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetVehicle retrieves a vehicle by ID.
func (r *PostgresRepository) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	query := `
		SELECT id, country_id, reg_code,
			COALESCE(home_depot_id, ''), COALESCE(preferred_route_id, ''), status
		FROM vehicles
		WHERE id = $1
	`

	var v Vehicle
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.CountryID, &v.RegCode, &v.HomeDepotID, &v.PreferredRouteID, &v.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return &v, nil
}

// SaveVehicle creates or replaces a vehicle.
func (r *PostgresRepository) SaveVehicle(ctx context.Context, v *Vehicle) error {
	query := `
		INSERT INTO vehicles (id, country_id, reg_code, home_depot_id, preferred_route_id, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			reg_code = EXCLUDED.reg_code,
			home_depot_id = EXCLUDED.home_depot_id,
			preferred_route_id = EXCLUDED.preferred_route_id,
			status = EXCLUDED.status
	`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.CountryID, v.RegCode, v.HomeDepotID, v.PreferredRouteID, string(v.Status),
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateRegCode
	}
	return err
}

// GetDriver retrieves a driver by ID.
func (r *PostgresRepository) GetDriver(ctx context.Context, id string) (*Driver, error) {
	query := `
		SELECT id, staff_code, name, COALESCE(home_depot_id, ''), status
		FROM drivers
		WHERE id = $1
	`

	var d Driver
	err := r.pool.QueryRow(ctx, query, id).Scan(&d.ID, &d.StaffCode, &d.Name, &d.HomeDepotID, &d.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriverNotFound
		}
		return nil, err
	}
	return &d, nil
}

// SaveDriver creates or replaces a driver.
func (r *PostgresRepository) SaveDriver(ctx context.Context, d *Driver) error {
	query := `
		INSERT INTO drivers (id, staff_code, name, home_depot_id, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET
			staff_code = EXCLUDED.staff_code,
			name = EXCLUDED.name,
			home_depot_id = EXCLUDED.home_depot_id,
			status = EXCLUDED.status
	`

	_, err := r.pool.Exec(ctx, query, d.ID, d.StaffCode, d.Name, d.HomeDepotID, string(d.Status))
	if database.IsUniqueViolation(err) {
		return ErrDuplicateStaffCode
	}
	return err
}

// RecordStatusChange updates the status and appends the event in one transaction.
func (r *PostgresRepository) RecordStatusChange(ctx context.Context, ev VehicleStatusEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx,
		`UPDATE vehicles SET status = $2 WHERE id = $1 AND status = $3`,
		ev.VehicleID, string(ev.To), string(ev.From),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1)`, ev.VehicleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrVehicleNotFound
		}
		return ErrStatusChangedMidway
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO vehicle_status_events (id, vehicle_id, from_status, to_status, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.VehicleID, string(ev.From), string(ev.To), ev.Reason, ev.OccurredAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListStatusEvents returns a vehicle's events, oldest first.
func (r *PostgresRepository) ListStatusEvents(ctx context.Context, vehicleID string) ([]VehicleStatusEvent, error) {
	query := `
		SELECT id::text, vehicle_id, from_status, to_status, reason, occurred_at
		FROM vehicle_status_events
		WHERE vehicle_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := r.pool.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VehicleStatusEvent, error) {
		var ev VehicleStatusEvent
		err := row.Scan(&ev.ID, &ev.VehicleID, &ev.From, &ev.To, &ev.Reason, &ev.OccurredAt)
		return ev, err
	})
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
