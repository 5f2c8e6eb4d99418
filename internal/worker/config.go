// Package worker runs scan jobs delivered over Pub/Sub.
package worker

import (
	"time"
)

// JobConfig holds configuration for scan jobs.
type JobConfig struct {
	// Concurrency is the number of windows of one batch scanned at once.
	// Each runs its own provider session.
	// Default: 2
	Concurrency int

	// ScanTimeout bounds one scan, all stations included.
	// Default: 15 minutes
	ScanTimeout time.Duration

	// MaxOutstandingMessages limits messages processed at once.
	// Default: 1
	MaxOutstandingMessages int

	// MaxExtension is how long a message's ack deadline may be extended.
	// Default: 30 minutes
	MaxExtension time.Duration
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Concurrency:            2,
		ScanTimeout:            15 * time.Minute,
		MaxOutstandingMessages: 1,
		MaxExtension:           30 * time.Minute,
	}
}

// withDefaults fills every unset field from DefaultJobConfig.
func (c JobConfig) withDefaults() JobConfig {
	d := DefaultJobConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = d.ScanTimeout
	}
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	return c
}
