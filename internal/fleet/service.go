package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/publisher"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// EventPublisher publishes status events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Repo      Repository
	Publisher EventPublisher // optional
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service provides fleet operations.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new fleet service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      cfg.Repo,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("component", "fleet").Logger(),
		now:       now,
	}
}

// RegisterVehicle validates and stores a vehicle. A vehicle without a status starts as available.
func (s *Service) RegisterVehicle(ctx context.Context, v *Vehicle) error {
	if v.ID == "" {
		v.ID = "veh_" + uuid.New().String()[:22]
	}
	if v.Status == "" {
		v.Status = VehicleAvailable
	}
	if err := v.Validate().Err(); err != nil {
		return err
	}

	if err := s.repo.SaveVehicle(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicateRegCode) {
			var r validation.Report
			r.Add(validation.KindDuplicate, validation.Ref("vehicle", v.ID),
				"reg_code %s already used in country %s", v.RegCode, v.CountryID)
			return errors.Join(err, r.Err())
		}
		return err
	}
	return nil
}

// RegisterDriver validates and stores a driver. A driver without a status starts as active.
func (s *Service) RegisterDriver(ctx context.Context, d *Driver) error {
	if d.ID == "" {
		d.ID = "drv_" + uuid.New().String()[:22]
	}
	if d.Status == "" {
		d.Status = DriverActive
	}
	if err := d.Validate().Err(); err != nil {
		return err
	}

	if err := s.repo.SaveDriver(ctx, d); err != nil {
		if errors.Is(err, ErrDuplicateStaffCode) {
			var r validation.Report
			r.Add(validation.KindDuplicate, validation.Ref("driver", d.ID),
				"staff_code %s already used", d.StaffCode)
			return errors.Join(err, r.Err())
		}
		return err
	}
	return nil
}

// ChangeVehicleStatus moves a vehicle to a new status and appends the
// transition to the status log. The event is published after it is stored;
// a publish failure is logged and does not undo the change.
func (s *Service) ChangeVehicleStatus(ctx context.Context, vehicleID string, to VehicleStatus, reason string) (*VehicleStatusEvent, error) {
	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(v.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, to)
	}

	ev := VehicleStatusEvent{
		ID:         uuid.New().String(),
		VehicleID:  vehicleID,
		From:       v.Status,
		To:         to,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}
	if err := s.repo.RecordStatusChange(ctx, ev); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("vehicle_id", vehicleID).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Msg("vehicle status changed")

	if s.publisher != nil {
		subject := publisher.Subject("fleet", "vehicles", vehicleID, "status")
		if err := s.publisher.Publish(ctx, subject, ev); err != nil {
			s.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish status event")
		}
	}

	return &ev, nil
}

// StatusHistory returns the vehicle's status events, oldest first.
func (s *Service) StatusHistory(ctx context.Context, vehicleID string) ([]VehicleStatusEvent, error) {
	if _, err := s.repo.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.repo.ListStatusEvents(ctx, vehicleID)
}

// VehicleEligible checks that a vehicle exists, belongs to countryID and is
// in an assignable status. Ineligibility is returned as a *validation.Report.
func (s *Service) VehicleEligible(ctx context.Context, vehicleID, countryID string) error {
	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, ErrVehicleNotFound) {
			return fmt.Errorf("%w: %w", validation.ErrNotFound, err)
		}
		return err
	}

	var r validation.Report
	ref := validation.Ref("vehicle", vehicleID)
	if !v.Status.Assignable() {
		r.Add(validation.KindIneligibleResource, ref, "status %s is not assignable", v.Status)
	}
	if countryID != "" && v.CountryID != countryID {
		r.Add(validation.KindIneligibleResource, ref,
			"vehicle belongs to country %s, block to %s", v.CountryID, countryID)
	}
	return r.Err()
}

// DriverEligible checks that a driver exists and is active.
func (s *Service) DriverEligible(ctx context.Context, driverID string) error {
	d, err := s.repo.GetDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, ErrDriverNotFound) {
			return fmt.Errorf("%w: %w", validation.ErrNotFound, err)
		}
		return err
	}

	if d.Status != DriverActive {
		var r validation.Report
		r.Add(validation.KindIneligibleResource, validation.Ref("driver", driverID),
			"status %s is not active", d.Status)
		return r.Err()
	}
	return nil
}
