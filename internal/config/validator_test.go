package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "model.n_init",
		Value:   0,
		Message: "must be at least 1",
	}

	expected := "model.n_init: must be at least 1 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// hasFieldError reports whether errs contains an error for field.
func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"malformed start date", func(c *Config) { c.Analysis.StartDate = "01/01/2025" }, "analysis.start_date"},
		{"malformed end date", func(c *Config) { c.Analysis.EndDate = "" }, "analysis.end_date"},
		{"end before start", func(c *Config) { c.Analysis.EndDate = "2024-12-31" }, "analysis.end_date"},
		{"negative cutoff", func(c *Config) { c.Analysis.PunctualityCutoffHour = -1 }, "analysis.punctuality_cutoff_hour"},
		{"cutoff past midnight", func(c *Config) { c.Analysis.PunctualityCutoffHour = 24 }, "analysis.punctuality_cutoff_hour"},
		{"zero max std", func(c *Config) { c.Analysis.MaxStdHours = 0 }, "analysis.max_std_hours"},
		{"bad timezone", func(c *Config) { c.Analysis.Timezone = "Mars/Olympus" }, "analysis.timezone"},
		{"single tier", func(c *Config) { c.Model.Tiers = []string{"Only"} }, "model.tiers"},
		{"duplicate tiers", func(c *Config) { c.Model.Tiers = []string{"A", "B", "A"} }, "model.tiers"},
		{"blank tier", func(c *Config) { c.Model.Tiers = []string{"A", " "} }, "model.tiers"},
		{"zero n_init", func(c *Config) { c.Model.NInit = 0 }, "model.n_init"},
		{"zero max_iter", func(c *Config) { c.Model.MaxIter = 0 }, "model.max_iter"},
		{"negative tolerance", func(c *Config) { c.Model.Tolerance = -1 }, "model.tolerance"},
		{"negative weight", func(c *Config) { c.Model.Weights.AvgWorkHours = -0.1 }, "model.weights.avg_work_hours"},
		{"all weights zero", func(c *Config) { c.Model.Weights = WeightsConfig{} }, "model.weights"},
		{"unknown precision", func(c *Config) { c.Model.Precision = "float16" }, "model.precision"},
		{"negative verify samples", func(c *Config) { c.Model.VerifySamples = -5 }, "model.verify_samples"},
		{"unknown source", func(c *Config) { c.Source.Kind = "mysql" }, "source.kind"},
		{"json without path", func(c *Config) { c.Source.SnapshotPath = "" }, "source.snapshot_path"},
		{"postgres without dsn", func(c *Config) { c.Source.Kind = "postgres" }, "source.dsn"},
		{"firestore without project", func(c *Config) { c.Source.Kind = "firestore" }, "source.project_id"},
		{"negative fallback", func(c *Config) { c.Source.FallbackLimit = -1 }, "source.fallback_limit"},
		{"empty model dir", func(c *Config) { c.Paths.ModelDir = "  " }, "paths.model_dir"},
		{"publish without prefix", func(c *Config) {
			c.Publish.RedisAddr = "localhost:6379"
			c.Publish.KeyPrefix = ""
		}, "publish.key_prefix"},
		{"negative ttl", func(c *Config) { c.Publish.TTLHours = -1 }, "publish.ttl_hours"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative max backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.field) {
				t.Errorf("Validate() missing error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestConfig_Validate_AcceptsAlternatives(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"float64 precision", func(c *Config) { c.Model.Precision = "float64" }},
		{"postgres with dsn", func(c *Config) {
			c.Source.Kind = "postgres"
			c.Source.DSN = "host=localhost user=app dbname=attendance"
		}},
		{"firestore with project", func(c *Config) {
			c.Source.Kind = "firestore"
			c.Source.ProjectID = "attendance-prod"
		}},
		{"five tiers", func(c *Config) { c.Model.Tiers = []string{"E", "D", "C", "B", "A"} }},
		{"single day range", func(c *Config) { c.Analysis.EndDate = c.Analysis.StartDate }},
		{"uppercase log level", func(c *Config) { c.Logging.Level = "DEBUG" }},
		{"mixed case log level", func(c *Config) { c.Logging.Level = "Warn" }},
		{"zero fallback disables fallback", func(c *Config) { c.Source.FallbackLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("Validate() = %v, want no errors", errs)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Model.NInit = 0
	cfg.Source.Kind = "unknown"
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}
