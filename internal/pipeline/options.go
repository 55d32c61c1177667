package pipeline

import (
	"time"

	"github.com/Iron-Ham/workertiers/internal/logging"
	"github.com/Iron-Ham/workertiers/internal/publish"
	"github.com/Iron-Ham/workertiers/internal/telemetry"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger    *logging.Logger
	metrics   *telemetry.Metrics
	publisher *publish.Publisher
	runID     string
	now       func() time.Time
}

// WithLogger sets the run logger. Every record carries the run id.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records stage timings and model statistics into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPublisher enables the publish stage. Without it the stage is skipped.
func WithPublisher(p *publish.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithClock sets the time source used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
