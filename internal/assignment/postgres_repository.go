package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arknettransit/dutyplan/internal/database"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL assignment repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const assignmentColumns = `id, resource_kind, resource_id, duty_date, block_id, start_time, end_time, created_at`

// currentColumns reads assignments joined to their block, with the block's
// span in place of the recorded one.
const currentColumns = `a.id, a.resource_kind, a.resource_id, a.duty_date, a.block_id, b.start_time, b.end_time, a.created_at`

func scanAssignment(row pgx.CollectableRow) (Assignment, error) {
	var (
		a          Assignment
		start, end int64
	)
	err := row.Scan(&a.ID, &a.ResourceKind, &a.ResourceID, &a.DutyDate, &a.BlockID, &start, &end, &a.CreatedAt)
	a.StartTime, a.EndTime = timespan.Seconds(start), timespan.Seconds(end)
	return a, err
}

// FetchAssignments returns the resource's assignments on a duty date, each
// with the current span of its block.
func (r *PostgresRepository) FetchAssignments(ctx context.Context, res Resource, date time.Time) ([]Assignment, error) {
	query := `
		SELECT ` + currentColumns + `
		FROM assignments a
		JOIN blocks b ON b.id = a.block_id
		WHERE a.resource_kind = $1 AND a.resource_id = $2 AND a.duty_date = $3
		ORDER BY b.start_time, a.id
	`

	rows, err := r.pool.Query(ctx, query, string(res.Kind), res.ID, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAssignment)
}

// CommitAssignment inserts a. The insert takes a transaction-scoped
// advisory lock on the (resource, date) key and re-checks for overlap against
// the current block spans, so resolvers in different processes cannot
// double-book the same resource.
func (r *PostgresRepository) CommitAssignment(ctx context.Context, a *Assignment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key := fmt.Sprintf("%s/%s/%s", a.ResourceKind, a.ResourceID, a.DutyDate.Format(time.DateOnly))
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+currentColumns+`
		FROM assignments a
		JOIN blocks b ON b.id = a.block_id
		WHERE a.resource_kind = $1 AND a.resource_id = $2 AND a.duty_date = $3
			AND b.start_time < $5 AND $4 < b.end_time
		ORDER BY b.start_time, a.id
		LIMIT 1
	`, string(a.ResourceKind), a.ResourceID, a.DutyDate, int64(a.StartTime), int64(a.EndTime))
	if err != nil {
		return err
	}
	hits, err := pgx.CollectRows(rows, scanAssignment)
	if err != nil {
		return err
	}
	if len(hits) > 0 {
		return &ConflictError{
			Request:  Request{Resource: a.Resource(), DutyDate: a.DutyDate, BlockID: a.BlockID},
			Span:     a.Span(),
			Existing: hits[0],
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, string(a.ResourceKind), a.ResourceID, a.DutyDate, a.BlockID,
		int64(a.StartTime), int64(a.EndTime), a.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s already assigned to block %s on %s",
				validation.ErrDuplicate, a.Resource(), a.BlockID, a.DutyDate.Format(time.DateOnly))
		}
		return err
	}

	return tx.Commit(ctx)
}

// DeleteAssignment removes an assignment.
func (r *PostgresRepository) DeleteAssignment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (r *PostgresRepository) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListByDate returns every assignment on a duty date.
func (r *PostgresRepository) ListByDate(ctx context.Context, date time.Time) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE duty_date = $1
		ORDER BY resource_kind, resource_id, start_time, id
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAssignment)
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
