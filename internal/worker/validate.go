package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/telemetry"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Block outcomes.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// BlockVerifier lists and re-verifies stored blocks.
type BlockVerifier interface {
	ListBlocks(ctx context.Context, countryID string) ([]string, error)
	VerifyBlock(ctx context.Context, id string) (*schedule.Block, error)
}

// ValidationJob re-verifies stored blocks with a bounded worker pool.
type ValidationJob struct {
	config   ValidationConfig
	logger   zerolog.Logger
	verifier BlockVerifier
	metrics  *telemetry.ValidationMetrics

	stats *ValidationStats
}

// ValidationStats tracks validation job statistics across runs.
type ValidationStats struct {
	mu sync.RWMutex

	// Counters
	TotalRuns     int64
	BlocksChecked int64
	ValidBlocks   int64
	InvalidBlocks int64
	FailedBlocks  int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// ValidationJobConfig holds configuration for creating a ValidationJob.
type ValidationJobConfig struct {
	Config   ValidationConfig
	Logger   zerolog.Logger
	Verifier BlockVerifier
	Metrics  *telemetry.ValidationMetrics
}

// NewValidationJob creates a new validation job.
func NewValidationJob(cfg ValidationJobConfig) *ValidationJob {
	return &ValidationJob{
		config:   cfg.Config.withDefaults(),
		logger:   cfg.Logger.With().Str("component", "validation_job").Logger(),
		verifier: cfg.Verifier,
		metrics:  cfg.Metrics,
		stats:    &ValidationStats{},
	}
}

// ValidationResult contains the result of a validation run.
type ValidationResult struct {
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	CountryID   string        `json:"country_id,omitempty"`
	TotalBlocks int           `json:"total_blocks"`
	Valid       int           `json:"valid"`
	Invalid     int           `json:"invalid"`
	Failed      int           `json:"failed"`

	// Reports holds the violations of each invalid block.
	Reports map[string]*validation.Report `json:"reports,omitempty"`
	Errors  []BlockError                  `json:"errors,omitempty"`
}

// BlockError records a block that could not be verified at all.
type BlockError struct {
	BlockID string `json:"block_id"`
	Error   string `json:"error"`
}

// Run validates every block of the country. An empty countryID falls back
// to the configured one.
func (j *ValidationJob) Run(ctx context.Context, countryID string) (*ValidationResult, error) {
	if countryID == "" {
		countryID = j.config.CountryID
	}
	ids, err := j.verifier.ListBlocks(ctx, countryID)
	if err != nil {
		return nil, fmt.Errorf("list blocks for %s: %w", countryID, err)
	}
	result := j.RunBlocks(ctx, ids)
	result.CountryID = countryID
	return result, nil
}

// RunBlocks validates the given blocks.
func (j *ValidationJob) RunBlocks(ctx context.Context, ids []string) *ValidationResult {
	startTime := time.Now()
	result := &ValidationResult{
		StartTime:   startTime,
		TotalBlocks: len(ids),
		Reports:     make(map[string]*validation.Report),
	}

	j.logger.Info().
		Int("total_blocks", result.TotalBlocks).
		Int("concurrency", j.config.Concurrency).
		Msg("starting block validation job")

	idsChan := make(chan string, len(ids))
	resultsChan := make(chan blockResult, len(ids))

	var wg sync.WaitGroup
	for range j.config.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.validateWorker(ctx, idsChan, resultsChan)
		}()
	}

	for _, id := range ids {
		idsChan <- id
	}
	close(idsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for br := range resultsChan {
		switch br.outcome {
		case OutcomeValid:
			result.Valid++
		case OutcomeInvalid:
			result.Invalid++
			result.Reports[br.id] = br.report
		default:
			result.Failed++
			result.Errors = append(result.Errors, BlockError{BlockID: br.id, Error: br.err.Error()})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateStats(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("valid", result.Valid).
		Int("invalid", result.Invalid).
		Int("failed", result.Failed).
		Msg("block validation job completed")

	return result
}

type blockResult struct {
	id      string
	outcome string
	report  *validation.Report
	err     error
}

func (j *ValidationJob) validateWorker(ctx context.Context, ids <-chan string, results chan<- blockResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.validateBlock(ctx, id)
		}
	}
}

func (j *ValidationJob) validateBlock(ctx context.Context, id string) blockResult {
	blockCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	res := blockResult{id: id, outcome: OutcomeValid}
	_, err := j.verifier.VerifyBlock(blockCtx, id)

	var fatal *validation.Error
	switch report, isReport := validation.AsReport(err); {
	case err == nil:
	case isReport:
		res.outcome = OutcomeInvalid
		res.report = report
	case errors.As(err, &fatal):
		res.outcome = OutcomeInvalid
		res.report = &validation.Report{}
		res.report.AddViolation(fatal.Violation())
	default:
		res.outcome = OutcomeFailed
		res.err = err
		j.logger.Warn().Str("block_id", id).Err(err).Msg("block verification failed")
	}

	j.metrics.Block(ctx, res.outcome)
	if res.report != nil {
		for _, kind := range res.report.Kinds() {
			j.metrics.Violations(ctx, string(kind), res.report.Count(kind))
		}
	}
	return res
}

func (j *ValidationJob) updateStats(result *ValidationResult) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalRuns++
	j.stats.BlocksChecked += int64(result.Valid + result.Invalid + result.Failed)
	j.stats.ValidBlocks += int64(result.Valid)
	j.stats.InvalidBlocks += int64(result.Invalid)
	j.stats.FailedBlocks += int64(result.Failed)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetStats returns a copy of the current statistics.
func (j *ValidationJob) GetStats() ValidationStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return ValidationStats{
		TotalRuns:       j.stats.TotalRuns,
		BlocksChecked:   j.stats.BlocksChecked,
		ValidBlocks:     j.stats.ValidBlocks,
		InvalidBlocks:   j.stats.InvalidBlocks,
		FailedBlocks:    j.stats.FailedBlocks,
		LastRunAt:       j.stats.LastRunAt,
		LastRunDuration: j.stats.LastRunDuration,
		TotalDuration:   j.stats.TotalDuration,
	}
}

// StatsSnapshot returns the current statistics as a map.
func (j *ValidationJob) StatsSnapshot() map[string]any {
	s := j.GetStats()
	return map[string]any{
		"total_runs":        s.TotalRuns,
		"blocks_checked":    s.BlocksChecked,
		"valid_blocks":      s.ValidBlocks,
		"invalid_blocks":    s.InvalidBlocks,
		"failed_blocks":     s.FailedBlocks,
		"last_run_at":       s.LastRunAt,
		"last_run_duration": s.LastRunDuration.String(),
		"total_duration":    s.TotalDuration.String(),
	}
}
