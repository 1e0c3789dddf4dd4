package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// Service composes, stores and re-verifies blocks.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new schedule service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// ComposeBlock composes a block and stores it together with its trips.
// Nothing is stored when composition reports violations or when a trip
// already belongs to another block; the latter is a Duplicate violation.
func (s *Service) ComposeBlock(ctx context.Context, hdr Header, legs []Leg, breaks []BlockBreak) (*Block, error) {
	b, err := Compose(hdr, legs, breaks)
	if err != nil {
		s.logger.Info().
			Str("block_id", hdr.ID).
			Err(err).
			Msg("block composition rejected")
		return nil, err
	}

	trips := make([]Trip, len(legs))
	for i, l := range legs {
		trips[i] = l.Trip
	}
	if err := s.repo.SaveComposed(ctx, trips, b); err != nil {
		if errors.Is(err, ErrTripAlreadyBlocked) {
			var r validation.Report
			r.Add(validation.KindDuplicate, blockRef(b.ID), "%v", err)
			s.logger.Info().
				Str("block_id", b.ID).
				Msg("block composition rejected: trip owned by another block")
			return nil, r.Err()
		}
		return nil, fmt.Errorf("save block %s: %w", b.ID, err)
	}

	s.logger.Debug().
		Str("block_id", b.ID).
		Int("trips", len(b.Trips)).
		Str("span", b.Span().String()).
		Msg("block composed")

	return b, nil
}

// VerifyBlock loads a stored block with its trips and re-runs every check.
// A missing block yields ErrBlockNotFound; violations are returned as a
// *validation.Report.
func (s *Service) VerifyBlock(ctx context.Context, id string) (*Block, error) {
	b, err := s.repo.GetBlock(ctx, id)
	if err != nil {
		return nil, err
	}

	trips, err := s.repo.FetchTrips(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch trips for block %s: %w", id, err)
	}

	byID := make(map[string]Trip, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
	}

	if err := Verify(b, byID); err != nil {
		return b, err
	}
	return b, nil
}

// GetBlock retrieves a block. A missing block matches both ErrBlockNotFound
// and validation.ErrNotFound.
func (s *Service) GetBlock(ctx context.Context, id string) (*Block, error) {
	b, err := s.repo.GetBlock(ctx, id)
	if errors.Is(err, ErrBlockNotFound) {
		return nil, fmt.Errorf("%w: %w", validation.ErrNotFound, err)
	}
	return b, err
}

// ListBlocks returns the IDs of a country's blocks.
func (s *Service) ListBlocks(ctx context.Context, countryID string) ([]string, error) {
	return s.repo.ListBlocks(ctx, countryID)
}

// ImportTrips stores trips that are not part of any block. Trips that fail
// ValidateTrip are left out and reported; the rest are stored and counted.
func (s *Service) ImportTrips(ctx context.Context, trips []Trip) (int, *validation.Report, error) {
	var report validation.Report
	valid := make([]Trip, 0, len(trips))
	for _, t := range trips {
		if r := ValidateTrip(t); !r.OK() {
			report.Merge(r)
			continue
		}
		valid = append(valid, t)
	}

	if len(valid) > 0 {
		if err := s.repo.SaveTrips(ctx, valid); err != nil {
			return 0, nil, fmt.Errorf("save trips: %w", err)
		}
	}

	s.logger.Debug().
		Int("stored", len(valid)).
		Int("rejected", len(trips)-len(valid)).
		Msg("trips imported")

	return len(valid), &report, nil
}
