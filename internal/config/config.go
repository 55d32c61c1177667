package config

import (
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// DateLayout is the layout used for analysis date range bounds.
const DateLayout = "2006-01-02"

// Config represents the complete workertiers configuration
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Publish  PublishConfig  `mapstructure:"publish" yaml:"publish"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AnalysisConfig controls how raw attendance rows become worker features
type AnalysisConfig struct {
	// StartDate is the inclusive start of the analysis range (YYYY-MM-DD)
	StartDate string `mapstructure:"start_date" yaml:"start_date"`
	// EndDate is the inclusive end of the analysis range (YYYY-MM-DD)
	EndDate string `mapstructure:"end_date" yaml:"end_date"`
	// PunctualityCutoffHour is the latest clock-in hour still counted as punctual (default: 7)
	PunctualityCutoffHour int `mapstructure:"punctuality_cutoff_hour" yaml:"punctuality_cutoff_hour"`
	// MaxStdHours is the work-hour standard deviation at which consistency reaches 0 (default: 4)
	MaxStdHours float64 `mapstructure:"max_std_hours" yaml:"max_std_hours"`
	// ExcludedRoles are user roles left out of the analysis (default: ["admin"])
	ExcludedRoles []string `mapstructure:"excluded_roles" yaml:"excluded_roles"`
	// Timezone is used to render source timestamps as wall-clock strings (default: "UTC")
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// ModelConfig controls the clustering engine
type ModelConfig struct {
	// Tiers are the performance tier names from lowest to highest score.
	// The cluster count K equals len(Tiers) (default: Low, Medium, High Performer)
	Tiers []string `mapstructure:"tiers" yaml:"tiers"`
	// Seed makes k-means initialization reproducible (default: 42)
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// NInit is the number of k-means restarts; the lowest-inertia run wins (default: 10)
	NInit int `mapstructure:"n_init" yaml:"n_init"`
	// MaxIter caps Lloyd iterations per restart (default: 300)
	MaxIter int `mapstructure:"max_iter" yaml:"max_iter"`
	// Tolerance is the centroid shift below which a run is considered converged (default: 1e-4)
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
	// Weights score each cluster's mean features when ranking tiers
	Weights WeightsConfig `mapstructure:"weights" yaml:"weights"`
	// Precision is the arithmetic of the exported inference graph: "float32" or "float64" (default: "float32")
	Precision string `mapstructure:"precision" yaml:"precision"`
	// VerifySamples is the number of random vectors compared after export (default: 100)
	VerifySamples int `mapstructure:"verify_samples" yaml:"verify_samples"`
}

// WeightsConfig holds the per-feature weights of the tier score
type WeightsConfig struct {
	AttendanceRate   float64 `mapstructure:"attendance_rate" yaml:"attendance_rate"`
	AvgWorkHours     float64 `mapstructure:"avg_work_hours" yaml:"avg_work_hours"`
	PunctualityScore float64 `mapstructure:"punctuality_score" yaml:"punctuality_score"`
	ConsistencyScore float64 `mapstructure:"consistency_score" yaml:"consistency_score"`
}

// Sum returns the total of all weights.
func (w WeightsConfig) Sum() float64 {
	return w.AttendanceRate + w.AvgWorkHours + w.PunctualityScore + w.ConsistencyScore
}

// SourceConfig selects and configures the attendance data source
type SourceConfig struct {
	// Kind is one of "json", "postgres", "firestore" (default: "json")
	Kind string `mapstructure:"kind" yaml:"kind"`
	// SnapshotPath is the JSON snapshot read when Kind is "json"
	SnapshotPath string `mapstructure:"snapshot_path" yaml:"snapshot_path"`
	// DSN is the PostgreSQL connection string when Kind is "postgres"
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// ProjectID is the Google Cloud project when Kind is "firestore"
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	// CredentialsPath is a service account key file when Kind is "firestore"
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	// FallbackLimit is how many recent records to use when the date-filtered query is empty (default: 100)
	FallbackLimit int `mapstructure:"fallback_limit" yaml:"fallback_limit"`
	// TimeoutSeconds bounds each source query (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-query timeout as a time.Duration
func (s *SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// PathsConfig controls where artifacts and outputs are written
type PathsConfig struct {
	// ModelDir holds the fitted model, graph and manifests (default: "models")
	ModelDir string `mapstructure:"model_dir" yaml:"model_dir"`
	// LogDir holds training.log (default: "logs")
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
	// ReportDir holds the summary, CSV, workbook and visualization (default: "reports")
	ReportDir string `mapstructure:"report_dir" yaml:"report_dir"`
}

// ReportConfig toggles the human-readable outputs of a training run
type ReportConfig struct {
	CSV           bool `mapstructure:"csv" yaml:"csv"`
	Workbook      bool `mapstructure:"workbook" yaml:"workbook"`
	Visualization bool `mapstructure:"visualization" yaml:"visualization"`
}

// PublishConfig controls publication of labeled results to Redis
type PublishConfig struct {
	// RedisAddr enables publication when non-empty (e.g., "localhost:6379")
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	// RedisDB is the Redis logical database (default: 0)
	RedisDB int `mapstructure:"redis_db" yaml:"redis_db"`
	// KeyPrefix namespaces all published keys (default: "workertiers")
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
	// TTLHours expires published keys; 0 keeps them (default: 0)
	TTLHours int `mapstructure:"ttl_hours" yaml:"ttl_hours"`
}

// Enabled reports whether results should be published.
func (p *PublishConfig) Enabled() bool {
	return p.RedisAddr != ""
}

// TTL returns the key expiry as a time.Duration (0 means no expiry)
func (p *PublishConfig) TTL() time.Duration {
	return time.Duration(p.TTLHours) * time.Hour
}

// MetricsConfig controls the Prometheus textfile written after each run
type MetricsConfig struct {
	// Textfile is the .prom file path for the node exporter textfile collector; empty disables it
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// LoggingConfig controls run logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum training.log size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// DefaultTiers returns the default tier names from lowest to highest.
func DefaultTiers() []string {
	return []string{"Low Performer", "Medium Performer", "High Performer"}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			StartDate:             "2025-01-01",
			EndDate:               "2025-12-31",
			PunctualityCutoffHour: 7,
			MaxStdHours:           4,
			ExcludedRoles:         []string{"admin"},
			Timezone:              "UTC",
		},
		Model: ModelConfig{
			Tiers:     DefaultTiers(),
			Seed:      42,
			NInit:     10,
			MaxIter:   300,
			Tolerance: 1e-4,
			Weights: WeightsConfig{
				AttendanceRate:   0.30,
				AvgWorkHours:     0.25,
				PunctualityScore: 0.25,
				ConsistencyScore: 0.20,
			},
			Precision:     "float32",
			VerifySamples: 100,
		},
		Source: SourceConfig{
			Kind:           "json",
			SnapshotPath:   "attendance.json",
			FallbackLimit:  100,
			TimeoutSeconds: 30,
		},
		Paths: PathsConfig{
			ModelDir:  "models",
			LogDir:    "logs",
			ReportDir: "reports",
		},
		Report: ReportConfig{
			CSV:           true,
			Workbook:      true,
			Visualization: true,
		},
		Publish: PublishConfig{
			KeyPrefix: "workertiers",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Analysis defaults
	viper.SetDefault("analysis.start_date", defaults.Analysis.StartDate)
	viper.SetDefault("analysis.end_date", defaults.Analysis.EndDate)
	viper.SetDefault("analysis.punctuality_cutoff_hour", defaults.Analysis.PunctualityCutoffHour)
	viper.SetDefault("analysis.max_std_hours", defaults.Analysis.MaxStdHours)
	viper.SetDefault("analysis.excluded_roles", defaults.Analysis.ExcludedRoles)
	viper.SetDefault("analysis.timezone", defaults.Analysis.Timezone)

	// Model defaults
	viper.SetDefault("model.tiers", defaults.Model.Tiers)
	viper.SetDefault("model.seed", defaults.Model.Seed)
	viper.SetDefault("model.n_init", defaults.Model.NInit)
	viper.SetDefault("model.max_iter", defaults.Model.MaxIter)
	viper.SetDefault("model.tolerance", defaults.Model.Tolerance)
	viper.SetDefault("model.weights.attendance_rate", defaults.Model.Weights.AttendanceRate)
	viper.SetDefault("model.weights.avg_work_hours", defaults.Model.Weights.AvgWorkHours)
	viper.SetDefault("model.weights.punctuality_score", defaults.Model.Weights.PunctualityScore)
	viper.SetDefault("model.weights.consistency_score", defaults.Model.Weights.ConsistencyScore)
	viper.SetDefault("model.precision", defaults.Model.Precision)
	viper.SetDefault("model.verify_samples", defaults.Model.VerifySamples)

	// Source defaults
	viper.SetDefault("source.kind", defaults.Source.Kind)
	viper.SetDefault("source.snapshot_path", defaults.Source.SnapshotPath)
	viper.SetDefault("source.dsn", defaults.Source.DSN)
	viper.SetDefault("source.project_id", defaults.Source.ProjectID)
	viper.SetDefault("source.credentials_path", defaults.Source.CredentialsPath)
	viper.SetDefault("source.fallback_limit", defaults.Source.FallbackLimit)
	viper.SetDefault("source.timeout_seconds", defaults.Source.TimeoutSeconds)

	// Paths defaults
	viper.SetDefault("paths.model_dir", defaults.Paths.ModelDir)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
	viper.SetDefault("paths.report_dir", defaults.Paths.ReportDir)

	// Report defaults
	viper.SetDefault("report.csv", defaults.Report.CSV)
	viper.SetDefault("report.workbook", defaults.Report.Workbook)
	viper.SetDefault("report.visualization", defaults.Report.Visualization)

	// Publish defaults
	viper.SetDefault("publish.redis_addr", defaults.Publish.RedisAddr)
	viper.SetDefault("publish.redis_db", defaults.Publish.RedisDB)
	viper.SetDefault("publish.key_prefix", defaults.Publish.KeyPrefix)
	viper.SetDefault("publish.ttl_hours", defaults.Publish.TTLHours)

	// Metrics defaults
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// DateRange returns the parsed inclusive analysis range.
// Validate guarantees both dates parse; callers that skip validation get
// zero times on malformed input.
func (a *AnalysisConfig) DateRange() (time.Time, time.Time) {
	start, _ := time.Parse(DateLayout, a.StartDate)
	end, _ := time.Parse(DateLayout, a.EndDate)
	return start, end
}

// Location returns the configured timezone, falling back to UTC.
func (a *AnalysisConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clusters returns the cluster count K.
func (m *ModelConfig) Clusters() int {
	return len(m.Tiers)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "workertiers")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workertiers"
	}
	return filepath.Join(home, ".config", "workertiers")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidSourceKinds returns the list of supported data source kinds
func ValidSourceKinds() []string {
	return []string{"json", "postgres", "firestore"}
}

// ValidPrecisions returns the list of supported inference graph precisions
func ValidPrecisions() []string {
	return []string{"float32", "float64"}
}
