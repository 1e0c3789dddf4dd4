package schedule

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arknettransit/dutyplan/internal/database"
	"github.com/arknettransit/dutyplan/internal/timespan"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL schedule repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetBlock retrieves a block with its trips and breaks.
func (r *PostgresRepository) GetBlock(ctx context.Context, id string) (*Block, error) {
	query := `
		SELECT id, country_id, route_id, service_id, start_time, end_time, break_minutes
		FROM blocks
		WHERE id = $1
	`

	var (
		b          Block
		start, end int64
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.CountryID, &b.RouteID, &b.ServiceID, &start, &end, &b.BreakMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	b.StartTime, b.EndTime = timespan.Seconds(start), timespan.Seconds(end)

	rows, err := r.pool.Query(ctx,
		`SELECT sequence, trip_id, layover_minutes FROM block_trips WHERE block_id = $1 ORDER BY sequence`, id)
	if err != nil {
		return nil, err
	}
	b.Trips, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (BlockTrip, error) {
		bt := BlockTrip{BlockID: id}
		err := row.Scan(&bt.Sequence, &bt.TripID, &bt.LayoverMinutes)
		return bt, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT break_start, break_duration FROM block_breaks WHERE block_id = $1 ORDER BY break_start`, id)
	if err != nil {
		return nil, err
	}
	b.Breaks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (BlockBreak, error) {
		br := BlockBreak{BlockID: id}
		var start int64
		err := row.Scan(&start, &br.Duration)
		br.BreakStart = timespan.Seconds(start)
		return br, err
	})
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// ListBlocks returns the IDs of a country's blocks.
func (r *PostgresRepository) ListBlocks(ctx context.Context, countryID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM blocks WHERE country_id = $1 ORDER BY id`, countryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FetchTrips returns the trips a block references, in sequence order.
func (r *PostgresRepository) FetchTrips(ctx context.Context, blockID string) ([]Trip, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blocks WHERE id = $1)`, blockID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBlockNotFound
	}

	query := `
		SELECT t.id, t.route_id, t.service_id, t.shape_id, t.start_time,
			t.runtime_s, t.recovery_s, t.direction_id, t.sequence
		FROM block_trips bt
		JOIN trips t ON t.id = bt.trip_id
		WHERE bt.block_id = $1
		ORDER BY bt.sequence
	`
	rows, err := r.pool.Query(ctx, query, blockID)
	if err != nil {
		return nil, err
	}
	trips, err := pgx.CollectRows(rows, scanTrip)
	if err != nil {
		return nil, err
	}

	for i := range trips {
		if err := r.loadStopTimes(ctx, &trips[i]); err != nil {
			return nil, err
		}
	}
	return trips, nil
}

// GetTrip retrieves a trip with its stop times.
func (r *PostgresRepository) GetTrip(ctx context.Context, id string) (*Trip, error) {
	query := `
		SELECT id, route_id, service_id, shape_id, start_time,
			runtime_s, recovery_s, direction_id, sequence
		FROM trips
		WHERE id = $1
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTrip)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}

	if err := r.loadStopTimes(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTrips upserts trips and replaces their stop times in one transaction.
func (r *PostgresRepository) SaveTrips(ctx context.Context, trips []Trip) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := saveTrips(ctx, tx, trips); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveBlock upserts a block and replaces its trips and breaks in one transaction.
func (r *PostgresRepository) SaveBlock(ctx context.Context, b *Block) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := saveBlock(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveComposed checks trip ownership, then upserts the trips and the block
// in one transaction. The unique trip_id on block_trips catches a
// concurrent compose that claims the same trip after the check.
func (r *PostgresRepository) SaveComposed(ctx context.Context, trips []Trip, b *Block) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owned bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM block_trips WHERE trip_id = ANY($1) AND block_id <> $2
		)
	`, b.TripIDs(), b.ID).Scan(&owned)
	if err != nil {
		return err
	}
	if owned {
		return ErrTripAlreadyBlocked
	}

	if err := saveTrips(ctx, tx, trips); err != nil {
		return err
	}
	if err := saveBlock(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func saveTrips(ctx context.Context, tx pgx.Tx, trips []Trip) error {
	upsert := `
		INSERT INTO trips (
			id, route_id, service_id, shape_id, start_time,
			runtime_s, recovery_s, direction_id, sequence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			route_id = EXCLUDED.route_id,
			service_id = EXCLUDED.service_id,
			shape_id = EXCLUDED.shape_id,
			start_time = EXCLUDED.start_time,
			runtime_s = EXCLUDED.runtime_s,
			recovery_s = EXCLUDED.recovery_s,
			direction_id = EXCLUDED.direction_id,
			sequence = EXCLUDED.sequence
	`
	insertStop := `
		INSERT INTO stop_times (trip_id, stop_sequence, stop_id, arrival_offset, departure_offset)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, t := range trips {
		if _, err := tx.Exec(ctx, upsert,
			t.ID, t.RouteID, t.ServiceID, t.ShapeID, int64(t.StartTime),
			int64(t.Runtime), int64(t.Recovery), t.DirectionID, t.Sequence,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stop_times WHERE trip_id = $1`, t.ID); err != nil {
			return err
		}
		for _, st := range t.StopTimes {
			if _, err := tx.Exec(ctx, insertStop,
				t.ID, st.StopSequence, st.StopID, int64(st.Arrival), int64(st.Departure),
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func saveBlock(ctx context.Context, tx pgx.Tx, b *Block) error {
	query := `
		INSERT INTO blocks (id, country_id, route_id, service_id, start_time, end_time, break_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			country_id = EXCLUDED.country_id,
			route_id = EXCLUDED.route_id,
			service_id = EXCLUDED.service_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			break_minutes = EXCLUDED.break_minutes
	`
	if _, err := tx.Exec(ctx, query,
		b.ID, b.CountryID, b.RouteID, b.ServiceID,
		int64(b.StartTime), int64(b.EndTime), b.BreakMinutes,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM block_trips WHERE block_id = $1`, b.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM block_breaks WHERE block_id = $1`, b.ID); err != nil {
		return err
	}

	for _, bt := range b.Trips {
		_, err := tx.Exec(ctx,
			`INSERT INTO block_trips (block_id, sequence, trip_id, layover_minutes) VALUES ($1, $2, $3, $4)`,
			b.ID, bt.Sequence, bt.TripID, bt.LayoverMinutes,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrTripAlreadyBlocked
			}
			return err
		}
	}
	for _, br := range b.Breaks {
		_, err := tx.Exec(ctx,
			`INSERT INTO block_breaks (block_id, break_start, break_duration) VALUES ($1, $2, $3)`,
			b.ID, int64(br.BreakStart), br.Duration,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) loadStopTimes(ctx context.Context, t *Trip) error {
	query := `
		SELECT stop_sequence, stop_id, arrival_offset, departure_offset
		FROM stop_times
		WHERE trip_id = $1
		ORDER BY stop_sequence
	`
	rows, err := r.pool.Query(ctx, query, t.ID)
	if err != nil {
		return err
	}
	t.StopTimes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StopTime, error) {
		st := StopTime{TripID: t.ID}
		var arr, dep int64
		err := row.Scan(&st.StopSequence, &st.StopID, &arr, &dep)
		st.Arrival, st.Departure = timespan.Seconds(arr), timespan.Seconds(dep)
		return st, err
	})
	return err
}

func scanTrip(row pgx.CollectableRow) (Trip, error) {
	var (
		t                        Trip
		start, runtime, recovery int64
	)
	err := row.Scan(
		&t.ID, &t.RouteID, &t.ServiceID, &t.ShapeID, &start,
		&runtime, &recovery, &t.DirectionID, &t.Sequence,
	)
	t.StartTime = timespan.Seconds(start)
	t.Runtime = timespan.Seconds(runtime)
	t.Recovery = timespan.Seconds(recovery)
	return t, err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
