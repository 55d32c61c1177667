package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
)

// recordColumns renders date and timestamp columns in the layouts the
// feature extractor expects. Timestamps follow the session time zone.
const recordColumns = `id, user_id, status, work_minutes,
	to_char(date, 'YYYY-MM-DD') AS date,
	to_char(clock_in_time, 'YYYY-MM-DD HH24:MI:SS') AS clock_in_time,
	to_char(clock_out_time, 'YYYY-MM-DD HH24:MI:SS') AS clock_out_time`

// PostgresSource reads the users and attendance tables through GORM.
type PostgresSource struct {
	db      *gorm.DB
	timeout time.Duration
}

// OpenPostgres connects to dsn. The session time zone is set to loc unless
// the DSN already names one.
func OpenPostgres(dsn string, loc *time.Location, timeout time.Duration) (*PostgresSource, error) {
	if dsn == "" {
		return nil, tierrors.NewDataSourceError("postgres dsn is empty", tierrors.ErrSourceUnavailable).WithSource(KindPostgres)
	}
	db, err := gorm.Open(postgres.Open(withTimeZone(dsn, loc)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, tierrors.NewDataSourceError("connect to postgres", tierrors.Wrap(tierrors.ErrSourceUnavailable, err.Error())).
			WithSource(KindPostgres).WithRetryable(true)
	}
	return NewPostgresSource(db, timeout), nil
}

// NewPostgresSource wraps an open GORM handle.
func NewPostgresSource(db *gorm.DB, timeout time.Duration) *PostgresSource {
	return &PostgresSource{db: db, timeout: timeout}
}

// Name implements Source.
func (s *PostgresSource) Name() string { return KindPostgres }

// Users implements Source.
func (s *PostgresSource) Users(ctx context.Context) ([]attendance.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var users []attendance.User
	if err := s.usersQuery(s.db.WithContext(ctx)).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Attendance implements Source.
func (s *PostgresSource) Attendance(ctx context.Context, rng DateRange) ([]attendance.Record, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var records []attendance.Record
	if err := s.rangeQuery(s.db.WithContext(ctx), rng).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// RecentAttendance implements Source.
func (s *PostgresSource) RecentAttendance(ctx context.Context, limit int) ([]attendance.Record, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var records []attendance.Record
	if err := s.recentQuery(s.db.WithContext(ctx), limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresSource) usersQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&attendance.User{}).Order("id")
}

func (s *PostgresSource) rangeQuery(tx *gorm.DB, rng DateRange) *gorm.DB {
	return tx.Model(&attendance.Record{}).
		Select(recordColumns).
		Where("date BETWEEN ? AND ?", rng.Start.Format(attendance.DateLayout), rng.End.Format(attendance.DateLayout)).
		Order("date, id")
}

func (s *PostgresSource) recentQuery(tx *gorm.DB, limit int) *gorm.DB {
	return tx.Model(&attendance.Record{}).
		Select(recordColumns).
		Order("date DESC, id").
		Limit(limit)
}

// Close implements Source.
func (s *PostgresSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withTimeZone adds the session time zone to dsn unless it already has one.
// Both keyword/value and URL forms are accepted.
func withTimeZone(dsn string, loc *time.Location) string {
	if loc == nil || strings.Contains(strings.ToLower(dsn), "timezone") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("timezone", loc.String())
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " TimeZone=" + loc.String()
}
