// Package worker runs background jobs for dutyplan: batch block validation
// and GTFS feed imports, triggered from Pub/Sub or once at startup.
package worker

import (
	"time"
)

// ValidationConfig holds configuration for the block validation job.
type ValidationConfig struct {
	// CountryID selects the blocks to validate when a run names none.
	CountryID string

	// Concurrency is the number of blocks verified at once.
	// Default: 4
	Concurrency int

	// Timeout bounds the verification of a single block.
	// Default: 10 seconds
	Timeout time.Duration
}

// DefaultValidationConfig returns the default validation configuration.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultValidationConfig.
func (c ValidationConfig) withDefaults() ValidationConfig {
	def := DefaultValidationConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
