package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/availability"
)

// Job types carried in Message.JobType.
const (
	JobTypeScan        = "scan"
	JobTypeHealthCheck = "health_check"
)

// Outcome tells the transport what to do with a delivered message.
type Outcome int

const (
	// Ack removes the message from the subscription.
	Ack Outcome = iota
	// Nack asks for redelivery.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

// Message is a scan job message.
//
// A scan job carries either one window (start, duration_minutes) or a list
// of windows. Stations default to the configured list.
type Message struct {
	JobType         string   `json:"job_type"`
	Start           string   `json:"start,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Windows         []Window `json:"windows,omitempty"`
	Stations        []string `json:"stations,omitempty"`
}

// windows returns the message's windows, the single window first.
func (m Message) windows() []Window {
	var out []Window
	if m.Start != "" || m.DurationMinutes != 0 {
		out = append(out, Window{Start: m.Start, DurationMinutes: m.DurationMinutes})
	}
	return append(out, m.Windows...)
}

// permanentError marks a job that will fail the same way on every delivery.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the dispatcher acks instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe) || errors.Is(err, availability.ErrInvalidRequest)
}

// Dispatcher decodes job messages and runs them on a ScanJob.
type Dispatcher struct {
	job    *ScanJob
	logger zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(job *ScanJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Handle runs the job in data and reports whether it should be acked.
// Malformed messages, unknown job types and invalid requests are acked so
// they are not redelivered forever.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) Outcome {
	startTime := time.Now()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		d.logger.Error().Err(err).Msg("failed to parse message")
		return Ack
	}

	logger := d.logger.With().Str("job_type", msg.JobType).Logger()

	var err error
	switch msg.JobType {
	case JobTypeScan:
		err = d.handleScan(ctx, msg, logger)
	case JobTypeHealthCheck:
		err = d.job.HealthCheck(ctx)
	default:
		logger.Warn().Msg("unknown job type")
		return Ack
	}

	if err != nil {
		if IsPermanent(err) {
			logger.Warn().Err(err).Msg("job rejected")
			return Ack
		}
		logger.Error().Err(err).Msg("job failed")
		return Nack
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return Ack
}

func (d *Dispatcher) handleScan(ctx context.Context, msg Message, logger zerolog.Logger) error {
	result, err := d.job.Run(ctx, msg.windows(), msg.Stations)
	if result != nil {
		for _, scan := range result.Scans {
			logger.Info().
				Str("scan_id", scan.ID).
				Int("available", scan.AvailableCount()).
				Int("failed_stations", len(scan.Failures)).
				Msg("scan stored")
		}
	}
	return err
}
