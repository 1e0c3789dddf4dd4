// Package main provides the entrypoint for seeding countries, routes and
// route shapes from CSV and GeoJSON files.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/config"
	"github.com/arknettransit/dutyplan/internal/database"
	"github.com/arknettransit/dutyplan/internal/network"
	"github.com/arknettransit/dutyplan/internal/validation"
	"github.com/arknettransit/dutyplan/pkg/polyline"
)

// Version is set at compile time via ldflags.
var Version = "dev"

const serviceName = "dutyplan-seed"

type options struct {
	countries    string
	routes       string
	geojson      []string
	createRoutes bool
	validFrom    time.Time
	check        bool
}

func main() {
	envFile := pflag.String("env-file", "", "Load environment variables from this file")
	country := pflag.StringP("country", "c", "", "Country the routes and shapes belong to (overrides COUNTRY_ID)")
	countries := pflag.String("countries", "", "CSV file of countries (Code,Name)")
	routes := pflag.String("routes", "", "CSV file of routes")
	geojsonFiles := pflag.StringSlice("geojson", nil, "GeoJSON files with route geometry")
	createRoutes := pflag.Bool("create-routes", false, "Register routes named in GeoJSON files that do not exist yet")
	validFrom := pflag.String("valid-from", "", "Start date (YYYY-MM-DD) of routes created from GeoJSON; defaults to today")
	check := pflag.Bool("check", false, "Parse the GeoJSON files and print the ordered paths without touching the database")
	pflag.Parse()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	opts := options{
		countries:    *countries,
		routes:       *routes,
		geojson:      *geojsonFiles,
		createRoutes: *createRoutes,
		check:        *check,
	}
	if *validFrom != "" {
		d, err := calendar.ParseDate(*validFrom)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid --valid-from")
		}
		opts.validFrom = d
	}

	if opts.check {
		if err := checkShapes(log, opts.geojson); err != nil {
			log.Error().Err(err).Msg("check failed")
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = log.Level(cfg.LogLevel)
	if *country != "" {
		cfg.CountryID = *country
	}
	if cfg.CountryID == "" && len(opts.geojson) > 0 {
		log.Fatal().Msg("COUNTRY_ID or --country is required to seed shapes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, opts); err != nil {
		log.Error().Err(err).Msg("seed failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts options) error {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	svc := network.NewService(network.NewPostgresRepository(pool), log)

	if opts.countries != "" {
		f, err := os.Open(opts.countries)
		if err != nil {
			return err
		}
		countries, err := network.ReadCountriesCSV(f)
		f.Close()
		if err != nil {
			return err
		}
		res, err := svc.SeedCountries(ctx, countries)
		logViolations(log, opts.countries, res)
		if err != nil {
			return err
		}
	}

	if opts.routes != "" {
		f, err := os.Open(opts.routes)
		if err != nil {
			return err
		}
		routes, report, err := network.ReadRoutesCSV(f)
		f.Close()
		if err != nil {
			return err
		}
		res, err := svc.SeedRoutes(ctx, routes)
		if res != nil {
			res.Report.Merge(report)
		}
		logViolations(log, opts.routes, res)
		if err != nil {
			return err
		}
	}

	seedOpts := network.SeedOptions{
		CountryID:    cfg.CountryID,
		CreateRoutes: opts.createRoutes,
		ValidFrom:    opts.validFrom,
	}
	for _, path := range opts.geojson {
		sources, err := readShapes(path)
		if err != nil {
			return err
		}
		res, err := svc.SeedShapes(ctx, sources, seedOpts)
		logViolations(log, path, res)
		if err != nil {
			return err
		}
	}
	return nil
}

func readShapes(path string) ([]network.ShapeSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Files named after their route, e.g. 12.geojson, need no properties.
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return network.ParseShapes(data, name)
}

func checkShapes(log zerolog.Logger, paths []string) error {
	if len(paths) == 0 {
		return errors.New("--check needs at least one --geojson file")
	}
	for _, path := range paths {
		sources, err := readShapes(path)
		if err != nil {
			return err
		}
		for _, src := range sources {
			ordered := src.Path()
			ev := log.Info().
				Str("file", path).
				Str("short_name", src.ShortName).
				Str("variant_code", src.VariantCode).
				Int("segments", len(src.Segments)).
				Int("points", src.Points()).
				Int("path_points", len(ordered)).
				Float64("length_m", polyline.Length(ordered))
			if first, last, ok := network.Termini(ordered); ok {
				ev = ev.Floats64("start", []float64{first.Lat, first.Lon}).
					Floats64("end", []float64{last.Lat, last.Lon})
			}
			ev.Msg("shape")
		}
	}
	return nil
}

func logViolations(log zerolog.Logger, file string, res *network.SeedResult) {
	if res == nil {
		return
	}
	log.Info().
		Str("file", file).
		Int("countries", res.Countries).
		Int("routes", res.Routes).
		Int("shapes", res.Shapes).
		Int("violations", res.Report.Len()).
		Msg("seeded")
	for _, v := range res.Report.Violations {
		logViolation(log, v)
	}
}

func logViolation(log zerolog.Logger, v validation.Violation) {
	log.Warn().
		Str("kind", string(v.Kind)).
		Str("entity", v.Entity.String()).
		Msg(v.Detail)
}
