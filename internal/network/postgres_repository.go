package network

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

// NewPostgresRepository creates a new PostgreSQL network repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveCountry creates or replaces a country.
func (r *PostgresRepository) SaveCountry(ctx context.Context, c *Country) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO countries (id, iso_code, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET iso_code = EXCLUDED.iso_code, name = EXCLUDED.name
	`, c.ID, c.ISOCode, c.Name)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateISOCode
	}
	return err
}

// GetCountry retrieves a country by ID.
func (r *PostgresRepository) GetCountry(ctx context.Context, id string) (*Country, error) {
	var c Country
	err := r.pool.QueryRow(ctx, `SELECT id, iso_code, name FROM countries WHERE id = $1`, id).
		Scan(&c.ID, &c.ISOCode, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCountryNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SaveRoute creates or replaces a route.
func (r *PostgresRepository) SaveRoute(ctx context.Context, rt *Route) error {
	query := `
		INSERT INTO routes (id, country_id, short_name, long_name, active, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			short_name = EXCLUDED.short_name,
			long_name = EXCLUDED.long_name,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to
	`

	_, err := r.pool.Exec(ctx, query,
		rt.ID, rt.CountryID, rt.ShortName, rt.LongName, rt.Active, rt.ValidFrom, rt.ValidTo,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateShortName
	}
	return err
}

const routeColumns = `id, country_id, short_name, long_name, active, valid_from, valid_to`

func scanRoute(row pgx.CollectableRow) (Route, error) {
	var rt Route
	err := row.Scan(&rt.ID, &rt.CountryID, &rt.ShortName, &rt.LongName, &rt.Active, &rt.ValidFrom, &rt.ValidTo)
	return rt, err
}

// GetRoute retrieves a route by ID.
func (r *PostgresRepository) GetRoute(ctx context.Context, id string) (*Route, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	rt, err := pgx.CollectExactlyOneRow(rows, scanRoute)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// ListRoutes returns a country's routes ordered by short name.
func (r *PostgresRepository) ListRoutes(ctx context.Context, countryID string) ([]Route, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE country_id = $1 ORDER BY short_name`, countryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRoute)
}

// SaveShape creates or replaces a shape.
func (r *PostgresRepository) SaveShape(ctx context.Context, s *Shape) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shapes (id, polyline, length_m) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET polyline = EXCLUDED.polyline, length_m = EXCLUDED.length_m
	`, s.ID, s.Polyline, s.LengthMeters)
	return err
}

// GetShape retrieves a shape by ID.
func (r *PostgresRepository) GetShape(ctx context.Context, id string) (*Shape, error) {
	var s Shape
	err := r.pool.QueryRow(ctx, `SELECT id, polyline, length_m FROM shapes WHERE id = $1`, id).
		Scan(&s.ID, &s.Polyline, &s.LengthMeters)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShapeNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LinkShape stores a route/shape link.
func (r *PostgresRepository) LinkShape(ctx context.Context, l RouteShape) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if l.Default {
		if _, err := tx.Exec(ctx,
			`UPDATE route_shapes SET is_default = FALSE WHERE route_id = $1`, l.RouteID); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO route_shapes (route_id, shape_id, variant_code, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (route_id, shape_id, variant_code) DO UPDATE SET is_default = EXCLUDED.is_default
	`, l.RouteID, l.ShapeID, l.VariantCode, l.Default)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrRouteNotFound
		}
		return err
	}

	return tx.Commit(ctx)
}

// ListRouteShapes returns a route's shape links, default first.
func (r *PostgresRepository) ListRouteShapes(ctx context.Context, routeID string) ([]RouteShape, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT route_id, shape_id, variant_code, is_default
		FROM route_shapes
		WHERE route_id = $1
		ORDER BY is_default DESC, variant_code, shape_id
	`, routeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RouteShape, error) {
		var l RouteShape
		err := row.Scan(&l.RouteID, &l.ShapeID, &l.VariantCode, &l.Default)
		return l, err
	})
}

// SaveDepot creates or replaces a depot.
func (r *PostgresRepository) SaveDepot(ctx context.Context, d *Depot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO depots (id, country_id, name, lat, lon, capacity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			capacity = EXCLUDED.capacity
	`, d.ID, d.CountryID, d.Name, d.Lat, d.Lon, d.Capacity)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateDepotName
	}
	return err
}

// ListDepots returns a country's depots ordered by name.
func (r *PostgresRepository) ListDepots(ctx context.Context, countryID string) ([]Depot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, country_id, name, lat, lon, capacity
		FROM depots
		WHERE country_id = $1
		ORDER BY name
	`, countryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Depot, error) {
		var d Depot
		err := row.Scan(&d.ID, &d.CountryID, &d.Name, &d.Lat, &d.Lon, &d.Capacity)
		return d, err
	})
}

// SaveStops creates or replaces stops in one batch.
func (r *PostgresRepository) SaveStops(ctx context.Context, stops []Stop) error {
	if len(stops) == 0 {
		return nil
	}

	query := `
		INSERT INTO stops (id, country_id, name, lat, lon) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon
	`

	batch := &pgx.Batch{}
	for _, s := range stops {
		batch.Queue(query, s.ID, s.CountryID, s.Name, s.Lat, s.Lon)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// GetStop retrieves a stop by ID.
func (r *PostgresRepository) GetStop(ctx context.Context, id string) (*Stop, error) {
	var s Stop
	err := r.pool.QueryRow(ctx, `SELECT id, country_id, name, lat, lon FROM stops WHERE id = $1`, id).
		Scan(&s.ID, &s.CountryID, &s.Name, &s.Lat, &s.Lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStopNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
