package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/assignment"
	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/fleet"
	"github.com/arknettransit/dutyplan/internal/frequency"
	"github.com/arknettransit/dutyplan/internal/gtfsimport"
	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Job types.
const (
	JobValidateBlocks = "validate_blocks"
	JobImportFeed     = "import_feed"
	JobAssign         = "assign"
	JobUnassign       = "unassign"
	JobVehicleStatus  = "vehicle_status"
	JobExpandFreqs    = "expand_frequencies"
)

// Dispatch errors.
var (
	ErrMalformedMessage = errors.New("malformed job message")
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrNoFeedURL        = errors.New("no feed url configured")
	ErrNotConfigured    = errors.New("job handler not configured")
)

// JobMessage is the payload of a job message. Fields beyond JobType are
// read only by the job types that need them.
type JobMessage struct {
	JobType string `json:"job_type"`

	// validate_blocks
	CountryID string   `json:"country_id,omitempty"`
	BlockIDs  []string `json:"block_ids,omitempty"`

	// import_feed
	FeedURL string `json:"feed_url,omitempty"`

	// assign, unassign
	ResourceKind string `json:"resource_kind,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	DutyDate     string `json:"duty_date,omitempty"`
	BlockID      string `json:"block_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`

	// vehicle_status
	VehicleID string `json:"vehicle_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// expand_frequencies
	Frequencies []frequency.Frequency `json:"frequencies,omitempty"`
	Profile     frequency.Profile     `json:"profile,omitzero"`
}

// FeedImporter imports a GTFS feed.
type FeedImporter interface {
	Import(ctx context.Context, url string) (*gtfsimport.Result, error)
}

// Assigner commits and releases assignments.
type Assigner interface {
	Assign(ctx context.Context, req assignment.Request) (*assignment.Assignment, error)
	Unassign(ctx context.Context, id string) error
}

// StatusChanger changes a vehicle's status.
type StatusChanger interface {
	ChangeVehicleStatus(ctx context.Context, vehicleID string, to fleet.VehicleStatus, reason string) (*fleet.VehicleStatusEvent, error)
}

// TripImporter stores loose trips.
type TripImporter interface {
	ImportTrips(ctx context.Context, trips []schedule.Trip) (int, *validation.Report, error)
}

// DispatcherConfig holds configuration for creating a Dispatcher.
type DispatcherConfig struct {
	Validation     *ValidationJob
	Importer       FeedImporter
	Assignments    Assigner
	Fleet          StatusChanger
	Trips          TripImporter
	DefaultFeedURL string
	Logger         zerolog.Logger
}

// Dispatcher decodes job messages and runs the matching job.
//
// A job that is rejected on its merits (a double booking, an unknown block,
// an invalid status transition) is logged and reported as done, since
// redelivering it cannot change the outcome. Only infrastructure failures
// are returned as errors.
type Dispatcher struct {
	validation     *ValidationJob
	importer       FeedImporter
	assignments    Assigner
	fleet          StatusChanger
	trips          TripImporter
	defaultFeedURL string
	logger         zerolog.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		validation:     cfg.Validation,
		importer:       cfg.Importer,
		assignments:    cfg.Assignments,
		fleet:          cfg.Fleet,
		trips:          cfg.Trips,
		defaultFeedURL: cfg.DefaultFeedURL,
		logger:         cfg.Logger,
	}
}

// Dispatch decodes data and runs the job it names. It returns the job type
// even when the job fails.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return msg.JobType, d.Run(ctx, msg)
}

// Run runs the job msg names.
func (d *Dispatcher) Run(ctx context.Context, msg JobMessage) error {
	switch msg.JobType {
	case JobValidateBlocks:
		return d.validateBlocks(ctx, msg)
	case JobImportFeed:
		return d.importFeed(ctx, msg)
	case JobAssign:
		return d.assign(ctx, msg)
	case JobUnassign:
		return d.unassign(ctx, msg)
	case JobVehicleStatus:
		return d.vehicleStatus(ctx, msg)
	case JobExpandFreqs:
		return d.expandFrequencies(ctx, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

func (d *Dispatcher) validateBlocks(ctx context.Context, msg JobMessage) error {
	if d.validation == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}

	var result *ValidationResult
	if len(msg.BlockIDs) > 0 {
		result = d.validation.RunBlocks(ctx, msg.BlockIDs)
	} else {
		var err error
		if result, err = d.validation.Run(ctx, msg.CountryID); err != nil {
			return err
		}
	}

	for id, report := range result.Reports {
		d.logger.Warn().
			Str("block_id", id).
			Int("violations", report.Len()).
			Strs("kinds", kindStrings(report.Kinds())).
			Msg("block failed validation")
	}

	// Invalid blocks are findings, not job failures.
	if result.Failed > result.Valid+result.Invalid {
		return fmt.Errorf("too many verification failures: %d/%d", result.Failed, result.TotalBlocks)
	}
	return nil
}

func (d *Dispatcher) importFeed(ctx context.Context, msg JobMessage) error {
	if d.importer == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}
	url := msg.FeedURL
	if url == "" {
		url = d.defaultFeedURL
	}
	if url == "" {
		return ErrNoFeedURL
	}

	res, err := d.importer.Import(ctx, url)
	if err != nil {
		return fmt.Errorf("import feed: %w", err)
	}

	d.logger.Info().
		Int("blocks", res.Blocks).
		Int("trips", res.Trips).
		Int("violations", res.Report.Len()).
		Msg("feed import completed")
	return nil
}

func (d *Dispatcher) assign(ctx context.Context, msg JobMessage) error {
	if d.assignments == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}
	date, err := calendar.ParseDate(msg.DutyDate)
	if err != nil {
		d.logger.Warn().Str("duty_date", msg.DutyDate).Msg("assign job has invalid duty date")
		return nil
	}

	req := assignment.Request{
		Resource: assignment.Resource{Kind: assignment.ResourceKind(msg.ResourceKind), ID: msg.ResourceID},
		DutyDate: date,
		BlockID:  msg.BlockID,
	}
	_, err = d.assignments.Assign(ctx, req)
	return d.settle(err, msg)
}

func (d *Dispatcher) unassign(ctx context.Context, msg JobMessage) error {
	if d.assignments == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}
	return d.settle(d.assignments.Unassign(ctx, msg.AssignmentID), msg)
}

func (d *Dispatcher) vehicleStatus(ctx context.Context, msg JobMessage) error {
	if d.fleet == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}
	_, err := d.fleet.ChangeVehicleStatus(ctx, msg.VehicleID, fleet.VehicleStatus(msg.Status), msg.Reason)
	return d.settle(err, msg)
}

// expandFrequencies materialises each frequency over its own window and
// stores the trips. A bad set is rejected as a whole.
func (d *Dispatcher) expandFrequencies(ctx context.Context, msg JobMessage) error {
	if d.trips == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg.JobType)
	}
	if err := frequency.ValidateSet(msg.Frequencies); err != nil {
		return d.settle(err, msg)
	}

	var trips []schedule.Trip
	for _, f := range msg.Frequencies {
		ts, err := frequency.Trips(f, f.Window(), msg.Profile)
		if err != nil {
			return d.settle(err, msg)
		}
		trips = append(trips, ts...)
	}

	stored, report, err := d.trips.ImportTrips(ctx, trips)
	if err != nil {
		return err
	}
	d.logger.Info().
		Int("frequencies", len(msg.Frequencies)).
		Int("stored", stored).
		Int("violations", report.Len()).
		Msg("frequencies expanded")
	return nil
}

// settle swallows rejections after logging them and passes other errors on.
func (d *Dispatcher) settle(err error, msg JobMessage) error {
	if err == nil || !rejected(err) {
		return err
	}
	d.logger.Info().
		Str("job_type", msg.JobType).
		Err(err).
		Msg("job rejected")
	return nil
}

func rejected(err error) bool {
	if _, ok := validation.AsReport(err); ok {
		return true
	}
	return validation.IsFatal(err) ||
		errors.Is(err, validation.ErrNotFound) ||
		errors.Is(err, validation.ErrDoubleBooking) ||
		errors.Is(err, validation.ErrDuplicate) ||
		errors.Is(err, assignment.ErrInvalidResource) ||
		errors.Is(err, assignment.ErrAssignmentNotFound) ||
		errors.Is(err, fleet.ErrVehicleNotFound) ||
		errors.Is(err, fleet.ErrInvalidTransition)
}

func kindStrings(kinds []validation.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
