// Package main provides the entrypoint for the dutyplan worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/arknettransit/dutyplan/internal/assignment"
	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/config"
	"github.com/arknettransit/dutyplan/internal/database"
	"github.com/arknettransit/dutyplan/internal/feed"
	"github.com/arknettransit/dutyplan/internal/fleet"
	"github.com/arknettransit/dutyplan/internal/gtfsimport"
	"github.com/arknettransit/dutyplan/internal/network"
	"github.com/arknettransit/dutyplan/internal/ops"
	"github.com/arknettransit/dutyplan/internal/publisher"
	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/telemetry"
	"github.com/arknettransit/dutyplan/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "dutyplan-worker"

func main() {
	envFile := pflag.String("env-file", "", "Load environment variables from this file")
	once := pflag.Bool("once", false, "Run one validation pass (and import when a feed URL is set), then exit")
	country := pflag.StringP("country", "c", "", "Country to import and validate (overrides COUNTRY_ID)")
	gtfsURL := pflag.String("gtfs-url", "", "GTFS feed URL (overrides GTFS_FEED_URL)")
	pflag.Parse()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = log.Level(cfg.LogLevel)
	if *gtfsURL != "" {
		cfg.GTFSFeedURL = *gtfsURL
	}
	if *country != "" {
		cfg.CountryID = *country
	}
	if cfg.CountryID == "" {
		log.Fatal().Msg("COUNTRY_ID or --country is required")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Str("country_id", cfg.CountryID).
		Msg("starting dutyplan worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *once); err != nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, once bool) error {
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		CountryID:      cfg.CountryID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.TelemetryEnabled {
		log.Info().Str("otlp_endpoint", cfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	assignmentMetrics, err := telemetry.NewAssignmentMetrics(tp.Meter)
	if err != nil {
		return err
	}
	validationMetrics, err := telemetry.NewValidationMetrics(tp.Meter)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	// Events are optional; without NATS the services run unpublished.
	var (
		fleetEvents      fleet.EventPublisher
		assignmentEvents assignment.EventPublisher
	)
	if cfg.NATSURL != "" {
		nats, err := publisher.NewNATSPublisher(publisher.Config{
			URL:    cfg.NATSURL,
			Name:   cfg.NATSName,
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer nats.Close()
		fleetEvents, assignmentEvents = nats, nats
		log.Info().Str("url", cfg.NATSURL).Msg("nats connected")
	}

	calendarRepo := calendar.NewPostgresRepository(pool)
	networkSvc := network.NewService(network.NewPostgresRepository(pool), log)
	scheduleSvc := schedule.NewService(schedule.NewPostgresRepository(pool), log)
	fleetSvc := fleet.NewService(fleet.ServiceConfig{
		Repo:      fleet.NewPostgresRepository(pool),
		Publisher: fleetEvents,
		Logger:    log,
	})
	assignmentSvc := assignment.NewService(assignment.ServiceConfig{
		Repo:      assignment.NewPostgresRepository(pool),
		Blocks:    scheduleSvc,
		Calendar:  calendarRepo,
		Fleet:     fleetSvc,
		Publisher: assignmentEvents,
		Metrics:   assignmentMetrics,
		Tracer:    tp.Tracer,
		Logger:    log,
	})

	feeds := feed.NewHealth()
	importer := gtfsimport.NewImporter(gtfsimport.ImporterConfig{
		Fetcher: feed.NewFetcher(feed.Config{
			Name:    "gtfs",
			Breaker: feed.DefaultBreakerConfig(),
			Health:  feeds,
		}),
		Calendar: calendarRepo,
		Network:  networkSvc,
		Schedule: scheduleSvc,
		Options:  gtfsimport.Options{CountryID: cfg.CountryID, ServiceDayStart: cfg.ServiceDayStart},
		Logger:   log,
	})

	validationJob := worker.NewValidationJob(worker.ValidationJobConfig{
		Config: worker.ValidationConfig{
			CountryID:   cfg.CountryID,
			Concurrency: cfg.WorkerConcurrency,
			Timeout:     cfg.BlockTimeout,
		},
		Logger:   log,
		Verifier: scheduleSvc,
		Metrics:  validationMetrics,
	})

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		Validation:     validationJob,
		Importer:       importer,
		Assignments:    assignmentSvc,
		Fleet:          fleetSvc,
		Trips:          scheduleSvc,
		DefaultFeedURL: cfg.GTFSFeedURL,
		Logger:         log,
	})

	if once {
		return runOnce(ctx, dispatcher, cfg.GTFSFeedURL)
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: ops.NewRouter(ops.RouterConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Logger:    log,
			DB:        pool,
			Feeds:     feeds,
			Jobs:      validationJob,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.PubSubProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer handler.Close() //nolint:errcheck // best effort on shutdown
		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, serving ops endpoints only")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down worker")
	case err := <-errCh:
		log.Error().Err(err).Msg("worker component failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runOnce(ctx context.Context, d *worker.Dispatcher, feedURL string) error {
	if feedURL != "" {
		if err := d.Run(ctx, worker.JobMessage{JobType: worker.JobImportFeed, FeedURL: feedURL}); err != nil {
			return err
		}
	}
	return d.Run(ctx, worker.JobMessage{JobType: worker.JobValidateBlocks})
}
