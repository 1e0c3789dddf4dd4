package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arknettransit/dutyplan/internal/database"
)

const (
	exceptionAdded   = 1
	exceptionRemoved = 2
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL calendar repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetService retrieves a service by ID together with its exceptions.
func (r *PostgresRepository) GetService(ctx context.Context, id string) (*Service, error) {
	query := `
		SELECT
			id, country_id, name,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			date_start, date_end
		FROM services
		WHERE id = $1
	`

	var s Service
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.CountryID, &s.Name,
		&s.Monday, &s.Tuesday, &s.Wednesday, &s.Thursday, &s.Friday, &s.Saturday, &s.Sunday,
		&s.DateStart, &s.DateEnd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	if err := r.loadExceptions(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns all services of a country ordered by name.
func (r *PostgresRepository) ListServices(ctx context.Context, countryID string) ([]*Service, error) {
	query := `
		SELECT
			id, country_id, name,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			date_start, date_end
		FROM services
		WHERE country_id = $1
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, countryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(
			&s.ID, &s.CountryID, &s.Name,
			&s.Monday, &s.Tuesday, &s.Wednesday, &s.Thursday, &s.Friday, &s.Saturday, &s.Sunday,
			&s.DateStart, &s.DateEnd,
		); err != nil {
			return nil, err
		}
		services = append(services, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, s := range services {
		if err := r.loadExceptions(ctx, s); err != nil {
			return nil, err
		}
	}
	return services, nil
}

// ListActiveOn returns the IDs of a country's services that run on date.
// Weekly pattern matches are merged with added exceptions, then removed
// exceptions are subtracted.
func (r *PostgresRepository) ListActiveOn(ctx context.Context, countryID string, date time.Time) ([]string, error) {
	query := `
		WITH base AS (
			SELECT id FROM services
			WHERE country_id = $1
			  AND date_start <= $2::date AND date_end >= $2::date
			  AND CASE $3::int
			        WHEN 0 THEN sunday
			        WHEN 1 THEN monday
			        WHEN 2 THEN tuesday
			        WHEN 3 THEN wednesday
			        WHEN 4 THEN thursday
			        WHEN 5 THEN friday
			        ELSE saturday
			      END
		), added AS (
			SELECT e.service_id AS id FROM service_exceptions e
			JOIN services s ON s.id = e.service_id
			WHERE s.country_id = $1 AND e.date = $2::date AND e.exception_type = 1
		), removed AS (
			SELECT service_id AS id FROM service_exceptions
			WHERE date = $2::date AND exception_type = 2
		)
		SELECT id FROM (SELECT id FROM base UNION SELECT id FROM added) merged
		WHERE id NOT IN (SELECT id FROM removed)
		ORDER BY id
	`

	d := Day(date)
	rows, err := r.pool.Query(ctx, query, countryID, d, int(d.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveService upserts a service and replaces its exceptions in one transaction.
func (r *PostgresRepository) SaveService(ctx context.Context, s *Service) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO services (
			id, country_id, name,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			date_start, date_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			name = EXCLUDED.name,
			monday = EXCLUDED.monday,
			tuesday = EXCLUDED.tuesday,
			wednesday = EXCLUDED.wednesday,
			thursday = EXCLUDED.thursday,
			friday = EXCLUDED.friday,
			saturday = EXCLUDED.saturday,
			sunday = EXCLUDED.sunday,
			date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end
	`
	_, err = tx.Exec(ctx, query,
		s.ID, s.CountryID, s.Name,
		s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday, s.Saturday, s.Sunday,
		Day(s.DateStart), Day(s.DateEnd),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateServiceName
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM service_exceptions WHERE service_id = $1`, s.ID); err != nil {
		return err
	}

	insert := `INSERT INTO service_exceptions (service_id, date, exception_type) VALUES ($1, $2, $3)
		ON CONFLICT (service_id, date) DO UPDATE SET exception_type = EXCLUDED.exception_type`
	for _, d := range s.Added {
		if _, err := tx.Exec(ctx, insert, s.ID, Day(d), exceptionAdded); err != nil {
			return err
		}
	}
	// Removed rows are written last so they win over a matching addition.
	for _, d := range s.Removed {
		if _, err := tx.Exec(ctx, insert, s.ID, Day(d), exceptionRemoved); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) loadExceptions(ctx context.Context, s *Service) error {
	rows, err := r.pool.Query(ctx,
		`SELECT date, exception_type FROM service_exceptions WHERE service_id = $1 ORDER BY date`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d   time.Time
			typ int
		)
		if err := rows.Scan(&d, &typ); err != nil {
			return err
		}
		switch typ {
		case exceptionAdded:
			s.Added = append(s.Added, d)
		case exceptionRemoved:
			s.Removed = append(s.Removed, d)
		}
	}
	return rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
