package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/publisher"
	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/telemetry"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// BlockSource loads blocks.
type BlockSource interface {
	GetBlock(ctx context.Context, id string) (*schedule.Block, error)
}

// CalendarSource loads service calendars.
type CalendarSource interface {
	GetService(ctx context.Context, id string) (*calendar.Service, error)
}

// EligibilityChecker decides whether a vehicle or driver may take a duty.
type EligibilityChecker interface {
	VehicleEligible(ctx context.Context, vehicleID, countryID string) error
	DriverEligible(ctx context.Context, driverID string) error
}

// EventPublisher publishes assignment events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Event types published by the service.
const (
	EventCommitted = "assignment.committed"
	EventReleased  = "assignment.released"
)

// Event is the payload published after an assignment changes.
type Event struct {
	Type       string     `json:"type"`
	Assignment Assignment `json:"assignment"`
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Repo     Repository
	Blocks   BlockSource
	Calendar CalendarSource

	// Optional collaborators.
	Fleet     EligibilityChecker
	Publisher EventPublisher
	Metrics   *telemetry.AssignmentMetrics
	Tracer    trace.Tracer

	Logger zerolog.Logger
	Now    func() time.Time
}

// Service assigns vehicles and drivers to blocks.
type Service struct {
	repo      Repository
	blocks    BlockSource
	calendar  CalendarSource
	fleet     EligibilityChecker
	publisher EventPublisher
	metrics   *telemetry.AssignmentMetrics
	tracer    trace.Tracer
	resolver  *Resolver
	logger    zerolog.Logger
}

// NewService creates a new assignment service with its own Resolver.
func NewService(cfg ServiceConfig) *Service {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	s := &Service{
		repo:      cfg.Repo,
		blocks:    cfg.Blocks,
		calendar:  cfg.Calendar,
		fleet:     cfg.Fleet,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		logger:    cfg.Logger.With().Str("component", "assignment").Logger(),
	}
	s.resolver = NewResolver(ResolverConfig{
		OnLockWait: s.metrics.LockWait,
		Now:        cfg.Now,
	})
	return s
}

// Resolver returns the service's resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Assign binds req.Resource to req.BlockID on req.DutyDate.
//
// Errors:
//   - validation.ErrNotFound if the block or its service is missing
//   - a *validation.Report (OutOfBounds) if the service does not run on the date
//   - a *validation.Report (IneligibleResource) from the fleet check
//   - a *ConflictError (validation.ErrDoubleBooking) on overlap
func (s *Service) Assign(ctx context.Context, req Request) (*Assignment, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.assign",
		trace.WithAttributes(
			attribute.String("resource.kind", string(req.Resource.Kind)),
			attribute.String("resource.id", req.Resource.ID),
			attribute.String("block.id", req.BlockID),
			attribute.String("duty_date", req.DutyDate.Format(time.DateOnly)),
		),
	)
	defer span.End()

	a, err := s.assign(ctx, req)
	if err != nil {
		reason := rejectReason(err)
		s.metrics.Rejected(ctx, string(req.Resource.Kind), reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)

		s.logger.Info().
			Str("resource", req.Resource.String()).
			Str("block_id", req.BlockID).
			Str("duty_date", req.DutyDate.Format(time.DateOnly)).
			Str("reason", reason).
			Err(err).
			Msg("assignment rejected")
		return nil, err
	}

	s.metrics.Accepted(ctx, string(a.ResourceKind))
	span.SetAttributes(attribute.String("assignment.id", a.ID))

	s.logger.Info().
		Str("assignment_id", a.ID).
		Str("resource", req.Resource.String()).
		Str("block_id", a.BlockID).
		Str("span", a.Span().String()).
		Msg("assignment committed")

	s.publish(ctx, EventCommitted, *a)
	return a, nil
}

func (s *Service) assign(ctx context.Context, req Request) (*Assignment, error) {
	if err := req.Resource.Validate(); err != nil {
		return nil, err
	}

	b, err := s.blocks.GetBlock(ctx, req.BlockID)
	if err != nil {
		if errors.Is(err, schedule.ErrBlockNotFound) && !errors.Is(err, validation.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", validation.ErrNotFound, err)
		}
		return nil, err
	}

	if err := s.checkServiceDay(ctx, b, req); err != nil {
		return nil, err
	}
	if err := s.checkEligible(ctx, b, req.Resource); err != nil {
		return nil, err
	}

	return s.resolver.Assign(ctx, currentSpans{Repository: s.repo, blocks: s.blocks}, req, b.Span())
}

// currentSpans reads a resource's assignments with the span their block has
// now. Blocks can be re-composed after an assignment was made; the recorded
// span is kept only when the block is gone.
type currentSpans struct {
	Repository
	blocks BlockSource
}

func (c currentSpans) FetchAssignments(ctx context.Context, res Resource, date time.Time) ([]Assignment, error) {
	existing, err := c.Repository.FetchAssignments(ctx, res, date)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		b, err := c.blocks.GetBlock(ctx, existing[i].BlockID)
		switch {
		case err == nil:
			existing[i].StartTime, existing[i].EndTime = b.StartTime, b.EndTime
		case errors.Is(err, schedule.ErrBlockNotFound):
		default:
			return nil, fmt.Errorf("load block %s: %w", existing[i].BlockID, err)
		}
	}
	return existing, nil
}

func (s *Service) checkServiceDay(ctx context.Context, b *schedule.Block, req Request) error {
	svc, err := s.calendar.GetService(ctx, b.ServiceID)
	if err != nil {
		if errors.Is(err, calendar.ErrServiceNotFound) {
			return fmt.Errorf("%w: %w", validation.ErrNotFound, err)
		}
		return err
	}
	if calendar.ActiveOn(svc, req.DutyDate) {
		return nil
	}

	var r validation.Report
	r.Add(validation.KindOutOfBounds, validation.Ref("block", b.ID),
		"service %s does not run on %s", svc.ID, req.DutyDate.Format(time.DateOnly))
	return r.Err()
}

func (s *Service) checkEligible(ctx context.Context, b *schedule.Block, res Resource) error {
	if s.fleet == nil {
		return nil
	}
	switch res.Kind {
	case KindVehicle:
		return s.fleet.VehicleEligible(ctx, res.ID, b.CountryID)
	case KindDriver:
		return s.fleet.DriverEligible(ctx, res.ID)
	}
	return nil
}

// Unassign removes an assignment.
func (s *Service) Unassign(ctx context.Context, id string) error {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.resolver.Release(ctx, s.repo, *a); err != nil {
		return err
	}

	s.logger.Info().Str("assignment_id", id).Msg("assignment released")
	s.publish(ctx, EventReleased, *a)
	return nil
}

// ForResource returns a resource's assignments on a duty date.
func (s *Service) ForResource(ctx context.Context, res Resource, date time.Time) ([]Assignment, error) {
	return s.repo.FetchAssignments(ctx, res, calendar.Day(date))
}

// ListByDate returns every assignment on a duty date.
func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]Assignment, error) {
	return s.repo.ListByDate(ctx, calendar.Day(date))
}

func (s *Service) publish(ctx context.Context, typ string, a Assignment) {
	if s.publisher == nil {
		return
	}
	subject := publisher.Subject("assignments", string(a.ResourceKind), a.ResourceID)
	if err := s.publisher.Publish(ctx, subject, Event{Type: typ, Assignment: a}); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish assignment event")
	}
}

// rejectReason maps an error to a low-cardinality metric label.
func rejectReason(err error) string {
	if r, ok := validation.AsReport(err); ok {
		if kinds := r.Kinds(); len(kinds) > 0 {
			return string(kinds[0])
		}
	}
	switch {
	case errors.Is(err, validation.ErrDoubleBooking):
		return string(validation.KindDoubleBooking)
	case errors.Is(err, validation.ErrNotFound):
		return string(validation.KindNotFound)
	case errors.Is(err, validation.ErrInvalidRange):
		return string(validation.KindInvalidRange)
	case errors.Is(err, ErrInvalidResource):
		return string(validation.KindInvalidField)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "abandoned"
	}
	return "error"
}
