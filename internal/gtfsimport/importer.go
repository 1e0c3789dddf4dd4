package gtfsimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/network"
	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Fetcher downloads a feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImporterConfig holds the importer's dependencies.
type ImporterConfig struct {
	Fetcher  Fetcher
	Calendar calendar.Repository
	Network  *network.Service
	Schedule *schedule.Service
	Options  Options
	Logger   zerolog.Logger
}

// Importer stores a converted feed through the domain services, so every
// entity passes the same checks as one registered by hand.
type Importer struct {
	fetcher  Fetcher
	calendar calendar.Repository
	network  *network.Service
	schedule *schedule.Service
	opts     Options
	logger   zerolog.Logger
}

// NewImporter creates a new importer.
func NewImporter(cfg ImporterConfig) *Importer {
	return &Importer{
		fetcher:  cfg.Fetcher,
		calendar: cfg.Calendar,
		network:  cfg.Network,
		schedule: cfg.Schedule,
		opts:     cfg.Options,
		logger:   cfg.Logger.With().Str("component", "gtfsimport").Logger(),
	}
}

// Result summarises an import.
type Result struct {
	Services int `json:"services"`
	Routes   int `json:"routes"`
	Stops    int `json:"stops"`
	Trips    int `json:"trips"`
	Blocks   int `json:"blocks"`
	Warnings int `json:"warnings"`

	// IdleServices counts stored services with no active date in their window.
	IdleServices int `json:"idle_services"`

	// Report lists every entity that was skipped and why.
	Report   validation.Report `json:"report"`
	Duration time.Duration     `json:"duration"`
}

// Import downloads the feed at url and loads it.
func (i *Importer) Import(ctx context.Context, url string) (*Result, error) {
	if i.fetcher == nil {
		return nil, errors.New("gtfsimport: no fetcher configured")
	}
	data, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	snap, err := Parse(data, i.opts)
	if err != nil {
		return nil, err
	}
	return i.Load(ctx, snap)
}

// Load stores a converted feed. Validation failures are collected into the
// result; storage failures abort the load.
func (i *Importer) Load(ctx context.Context, snap *Snapshot) (*Result, error) {
	start := time.Now()
	res := &Result{Warnings: snap.Warnings}
	res.Report.Merge(&snap.Report)

	for _, svc := range snap.Services {
		if err := i.calendar.SaveService(ctx, svc); err != nil {
			if !errors.Is(err, calendar.ErrDuplicateServiceName) {
				return nil, fmt.Errorf("save service %s: %w", svc.ID, err)
			}
			res.Report.Add(validation.KindDuplicate, validation.Ref("service", svc.ID), "%v", err)
			continue
		}
		res.Services++

		if n, err := calendar.CountActive(svc, svc.DateStart, svc.DateEnd); err == nil && n == 0 {
			res.IdleServices++
			i.logger.Warn().
				Str("service_id", svc.ID).
				Str("date_start", svc.DateStart.Format(time.DateOnly)).
				Str("date_end", svc.DateEnd.Format(time.DateOnly)).
				Msg("service has no active dates")
		}
	}

	for j := range snap.Routes {
		rt := &snap.Routes[j]
		if err := i.network.RegisterRoute(ctx, rt); err != nil {
			if !collect(&res.Report, err) {
				return nil, fmt.Errorf("register route %s: %w", rt.ID, err)
			}
			continue
		}
		res.Routes++
	}

	if len(snap.Stops) > 0 {
		if err := i.network.RegisterStops(ctx, snap.Stops); err != nil {
			if !collect(&res.Report, err) {
				return nil, fmt.Errorf("register stops: %w", err)
			}
		} else {
			res.Stops = len(snap.Stops)
		}
	}

	// Trips of a rejected block stay out; the report names them.
	grouped := make(map[string]bool)
	for _, g := range snap.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, t := range g.Trips {
			grouped[t.ID] = true
		}
		b, err := i.schedule.ComposeBlock(ctx, g.Header(i.opts.CountryID), Legs(g.Trips), nil)
		if err != nil {
			if !collect(&res.Report, err) {
				return nil, fmt.Errorf("compose block %s: %w", g.ID, err)
			}
			continue
		}
		res.Blocks++
		res.Trips += len(b.Trips)
	}

	var loose []schedule.Trip
	for _, t := range snap.Trips {
		if !grouped[t.ID] {
			loose = append(loose, t)
		}
	}
	stored, report, err := i.schedule.ImportTrips(ctx, loose)
	if err != nil {
		return nil, err
	}
	res.Trips += stored
	res.Report.Merge(report)

	res.Duration = time.Since(start)
	i.logger.Info().
		Int("services", res.Services).
		Int("routes", res.Routes).
		Int("stops", res.Stops).
		Int("trips", res.Trips).
		Int("blocks", res.Blocks).
		Int("idle_services", res.IdleServices).
		Int("violations", res.Report.Len()).
		Dur("duration", res.Duration).
		Msg("feed imported")

	return res, nil
}

// collect moves a validation failure into r and reports whether err was one.
func collect(r *validation.Report, err error) bool {
	if report, ok := validation.AsReport(err); ok {
		r.Merge(report)
		return true
	}
	var fe *validation.Error
	if errors.As(err, &fe) {
		r.AddViolation(fe.Violation())
		return true
	}
	if errors.Is(err, validation.ErrNotFound) {
		r.Add(validation.KindNotFound, validation.Ref("feed", ""), "%v", err)
		return true
	}
	return false
}
