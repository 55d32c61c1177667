package config

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/workertiers/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "analysis.start_date")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAnalysis()...)
	errors = append(errors, c.validateModel()...)
	errors = append(errors, c.validateSource()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validatePublish()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateAnalysis validates the AnalysisConfig
func (c *Config) validateAnalysis() []ValidationError {
	var errors []ValidationError

	start, startErr := time.Parse(DateLayout, c.Analysis.StartDate)
	if startErr != nil {
		errors = append(errors, ValidationError{
			Field:   "analysis.start_date",
			Value:   c.Analysis.StartDate,
			Message: "must be a date in YYYY-MM-DD format",
		})
	}
	end, endErr := time.Parse(DateLayout, c.Analysis.EndDate)
	if endErr != nil {
		errors = append(errors, ValidationError{
			Field:   "analysis.end_date",
			Value:   c.Analysis.EndDate,
			Message: "must be a date in YYYY-MM-DD format",
		})
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		errors = append(errors, ValidationError{
			Field:   "analysis.end_date",
			Value:   c.Analysis.EndDate,
			Message: fmt.Sprintf("must not be before analysis.start_date (%s)", c.Analysis.StartDate),
		})
	}

	if c.Analysis.PunctualityCutoffHour < 0 || c.Analysis.PunctualityCutoffHour > 23 {
		errors = append(errors, ValidationError{
			Field:   "analysis.punctuality_cutoff_hour",
			Value:   c.Analysis.PunctualityCutoffHour,
			Message: "must be between 0 and 23",
		})
	}

	if c.Analysis.MaxStdHours <= 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.max_std_hours",
			Value:   c.Analysis.MaxStdHours,
			Message: "must be positive",
		})
	}

	if c.Analysis.Timezone != "" {
		if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
			errors = append(errors, ValidationError{
				Field:   "analysis.timezone",
				Value:   c.Analysis.Timezone,
				Message: "must be a valid IANA timezone name",
			})
		}
	}

	return errors
}

// validateModel validates the ModelConfig
func (c *Config) validateModel() []ValidationError {
	var errors []ValidationError

	if len(c.Model.Tiers) < 2 {
		errors = append(errors, ValidationError{
			Field:   "model.tiers",
			Value:   c.Model.Tiers,
			Message: "must name at least 2 tiers",
		})
	}
	seen := make(map[string]bool)
	for _, tier := range c.Model.Tiers {
		if strings.TrimSpace(tier) == "" {
			errors = append(errors, ValidationError{
				Field:   "model.tiers",
				Value:   c.Model.Tiers,
				Message: "tier names must not be empty",
			})
			break
		}
		if seen[tier] {
			errors = append(errors, ValidationError{
				Field:   "model.tiers",
				Value:   tier,
				Message: "tier names must be unique",
			})
			break
		}
		seen[tier] = true
	}

	if c.Model.NInit < 1 {
		errors = append(errors, ValidationError{
			Field:   "model.n_init",
			Value:   c.Model.NInit,
			Message: "must be at least 1",
		})
	}
	if c.Model.MaxIter < 1 {
		errors = append(errors, ValidationError{
			Field:   "model.max_iter",
			Value:   c.Model.MaxIter,
			Message: "must be at least 1",
		})
	}
	if c.Model.Tolerance < 0 {
		errors = append(errors, ValidationError{
			Field:   "model.tolerance",
			Value:   c.Model.Tolerance,
			Message: "must be non-negative",
		})
	}

	w := c.Model.Weights
	for _, fw := range []struct {
		field string
		value float64
	}{
		{"model.weights.attendance_rate", w.AttendanceRate},
		{"model.weights.avg_work_hours", w.AvgWorkHours},
		{"model.weights.punctuality_score", w.PunctualityScore},
		{"model.weights.consistency_score", w.ConsistencyScore},
	} {
		if fw.value < 0 || math.IsNaN(fw.value) {
			errors = append(errors, ValidationError{
				Field:   fw.field,
				Value:   fw.value,
				Message: "must be non-negative",
			})
		}
	}
	if w.Sum() <= 0 {
		errors = append(errors, ValidationError{
			Field:   "model.weights",
			Value:   w.Sum(),
			Message: "at least one weight must be positive",
		})
	}

	if !slices.Contains(ValidPrecisions(), c.Model.Precision) {
		errors = append(errors, ValidationError{
			Field:   "model.precision",
			Value:   c.Model.Precision,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPrecisions(), ", ")),
		})
	}
	if c.Model.VerifySamples < 0 {
		errors = append(errors, ValidationError{
			Field:   "model.verify_samples",
			Value:   c.Model.VerifySamples,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSource validates the SourceConfig
func (c *Config) validateSource() []ValidationError {
	var errors []ValidationError

	switch c.Source.Kind {
	case "json":
		if c.Source.SnapshotPath == "" {
			errors = append(errors, ValidationError{
				Field:   "source.snapshot_path",
				Value:   c.Source.SnapshotPath,
				Message: "is required when source.kind is json",
			})
		}
	case "postgres":
		if c.Source.DSN == "" {
			errors = append(errors, ValidationError{
				Field:   "source.dsn",
				Value:   c.Source.DSN,
				Message: "is required when source.kind is postgres",
			})
		}
	case "firestore":
		if c.Source.ProjectID == "" {
			errors = append(errors, ValidationError{
				Field:   "source.project_id",
				Value:   c.Source.ProjectID,
				Message: "is required when source.kind is firestore",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "source.kind",
			Value:   c.Source.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSourceKinds(), ", ")),
		})
	}

	if c.Source.FallbackLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.fallback_limit",
			Value:   c.Source.FallbackLimit,
			Message: "must be non-negative",
		})
	}
	if c.Source.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.timeout_seconds",
			Value:   c.Source.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.model_dir",
			Value:   c.Paths.ModelDir,
			Message: "must not be empty",
		})
	}

	return errors
}

// validatePublish validates the PublishConfig
func (c *Config) validatePublish() []ValidationError {
	var errors []ValidationError

	if c.Publish.Enabled() && c.Publish.KeyPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "publish.key_prefix",
			Value:   c.Publish.KeyPrefix,
			Message: "must not be empty when publishing is enabled",
		})
	}
	if c.Publish.RedisDB < 0 {
		errors = append(errors, ValidationError{
			Field:   "publish.redis_db",
			Value:   c.Publish.RedisDB,
			Message: "must be non-negative",
		})
	}
	if c.Publish.TTLHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "publish.ttl_hours",
			Value:   c.Publish.TTLHours,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.ToLower(strings.Join(logging.ValidLevels(), ", "))),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
