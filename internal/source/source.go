// Package source reads users and attendance from the configured backend.
//
// Every backend maps its native rows into attendance.User and
// attendance.Record at the boundary. Load applies the shared policy on top:
// date filtering with a most-recent fallback, and rejection of empty inputs.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	"github.com/Iron-Ham/workertiers/internal/config"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// Source kinds.
const (
	KindJSON      = "json"
	KindPostgres  = "postgres"
	KindFirestore = "firestore"
)

// DefaultFallbackLimit is the number of recent records used when the
// date-filtered query returns nothing.
const DefaultFallbackLimit = 100

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// RangeFrom returns the configured analysis range.
func RangeFrom(a config.AnalysisConfig) DateRange {
	start, end := a.DateRange()
	return DateRange{Start: start, End: end}
}

// Contains reports whether date (in attendance.DateLayout) falls in the range.
// Unparseable dates are outside every range.
func (r DateRange) Contains(date string) bool {
	d, err := time.Parse(attendance.DateLayout, date)
	if err != nil {
		return false
	}
	return !d.Before(day(r.Start)) && !d.After(day(r.End))
}

// Bounds returns the first instant of Start and the last instant of End in loc.
func (r DateRange) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 23, 59, 59, 999999999, loc)
	return start, end
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(attendance.DateLayout), r.End.Format(attendance.DateLayout))
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Source is a backend holding the users and attendance collections.
type Source interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Users returns every user, including those later excluded by role.
	Users(ctx context.Context) ([]attendance.User, error)
	// Attendance returns the records dated inside rng.
	Attendance(ctx context.Context, rng DateRange) ([]attendance.Record, error)
	// RecentAttendance returns up to limit records, newest first.
	RecentAttendance(ctx context.Context, limit int) ([]attendance.Record, error)
	// Close releases the backend connection.
	Close() error
}

// Dataset is what Load hands to feature extraction.
type Dataset struct {
	Users   []attendance.User
	Records []attendance.Record
	// Fallback is set when the records came from RecentAttendance.
	Fallback bool
}

// Load fetches users and the attendance inside rng from src. When no record
// falls in rng, the fallbackLimit most recent records are used instead.
// Empty users or attendance yield a ValidationError; backend failures a
// DataSourceError.
func Load(ctx context.Context, src Source, rng DateRange, fallbackLimit int) (Dataset, error) {
	if fallbackLimit <= 0 {
		fallbackLimit = DefaultFallbackLimit
	}

	users, err := src.Users(ctx)
	if err != nil {
		return Dataset{}, sourceError(src, "users", "fetch users", err)
	}
	if len(users) == 0 {
		return Dataset{}, tierrors.NewValidationError("source returned no users").
			WithField("users").WithCause(tierrors.ErrEmptyWorkers)
	}

	records, err := src.Attendance(ctx, rng)
	if err != nil {
		return Dataset{}, sourceError(src, "attendance", "fetch attendance", err)
	}

	ds := Dataset{Users: users, Records: records}
	if len(records) == 0 {
		records, err = src.RecentAttendance(ctx, fallbackLimit)
		if err != nil {
			return Dataset{}, sourceError(src, "attendance", "fetch recent attendance", err)
		}
		ds.Records = records
		ds.Fallback = true
	}
	if len(ds.Records) == 0 {
		return Dataset{}, tierrors.NewValidationError("source returned no attendance records").
			WithField("attendance").WithValue(rng.String()).WithCause(tierrors.ErrEmptyAttendance)
	}
	return ds, nil
}

func sourceError(src Source, collection, msg string, err error) error {
	var dse *tierrors.DataSourceError
	if errors.As(err, &dse) {
		return err
	}
	dse = tierrors.NewDataSourceError(msg, err).
		WithSource(src.Name()).
		WithCollection(collection)

	// Backend failures keep the retryable default unless the cause says otherwise
	var te tierrors.TierError
	switch {
	case errors.As(err, &te):
		dse.WithRetryable(te.IsRetryable())
	case errors.Is(err, context.Canceled), errors.Is(err, tierrors.ErrSourceMalformed):
		dse.WithRetryable(false)
	}
	return dse
}

// Open connects to the backend selected by cfg.Kind. loc converts native
// timestamps into wall-clock strings. A nil logger discards output.
func Open(ctx context.Context, cfg config.SourceConfig, loc *time.Location, logger *logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	var (
		src Source
		err error
	)
	switch cfg.Kind {
	case KindJSON, "":
		src, err = OpenJSON(cfg.SnapshotPath)
	case KindPostgres:
		src, err = OpenPostgres(cfg.DSN, loc, cfg.Timeout())
	case KindFirestore:
		src, err = OpenFirestore(ctx, cfg.ProjectID, cfg.CredentialsPath, loc, cfg.Timeout(), logger)
	default:
		return nil, tierrors.NewDataSourceError(fmt.Sprintf("unknown source kind %q", cfg.Kind), tierrors.ErrUnknownSource).
			WithSource(cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// withTimeout bounds a single backend query. A zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
