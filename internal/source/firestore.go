package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// Firestore collection names.
const (
	UsersCollection      = "users"
	AttendanceCollection = "attendance"
)

// FirestoreSource reads the users and attendance collections.
type FirestoreSource struct {
	client  *firestore.Client
	loc     *time.Location
	timeout time.Duration
	logger  *logging.Logger
}

// OpenFirestore connects to the project. An empty projectID is detected from
// the credentials; an empty credentialsPath uses application default
// credentials.
func OpenFirestore(ctx context.Context, projectID, credentialsPath string, loc *time.Location, timeout time.Duration, logger *logging.Logger) (*FirestoreSource, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, tierrors.NewDataSourceError("connect to firestore", tierrors.Wrap(tierrors.ErrSourceUnavailable, err.Error())).
			WithSource(KindFirestore)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &FirestoreSource{client: client, loc: loc, timeout: timeout, logger: logger.With("source", KindFirestore)}, nil
}

// Name implements Source.
func (s *FirestoreSource) Name() string { return KindFirestore }

// Users implements Source.
func (s *FirestoreSource) Users(ctx context.Context) ([]attendance.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.client.Collection(UsersCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	users := make([]attendance.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, userFromDoc(doc.Ref.ID, doc.Data()))
	}
	return users, nil
}

// Attendance implements Source.
func (s *FirestoreSource) Attendance(ctx context.Context, rng DateRange) ([]attendance.Record, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start, end := rng.Bounds(s.loc)
	q := s.client.Collection(AttendanceCollection).
		Where("date", ">=", start).
		Where("date", "<=", end)
	return s.records(ctx, q)
}

// RecentAttendance implements Source.
func (s *FirestoreSource) RecentAttendance(ctx context.Context, limit int) ([]attendance.Record, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	q := s.client.Collection(AttendanceCollection).OrderBy("date", firestore.Desc).Limit(limit)
	return s.records(ctx, q)
}

func (s *FirestoreSource) records(ctx context.Context, q firestore.Query) ([]attendance.Record, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	records := make([]attendance.Record, 0, len(docs))
	for _, doc := range docs {
		r, err := recordFromDoc(doc.Ref.ID, doc.Data(), s.loc)
		if err != nil {
			s.logger.Warn("skipping attendance document", "id", doc.Ref.ID, "error", err.Error())
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Close implements Source.
func (s *FirestoreSource) Close() error {
	return s.client.Close()
}

// userFromDoc maps a users document. Missing fields stay empty.
func userFromDoc(id string, data map[string]any) attendance.User {
	return attendance.User{
		ID:         id,
		Name:       stringField(data, "name"),
		Email:      stringField(data, "email"),
		Role:       stringField(data, "role"),
		WorkerCode: stringField(data, "workerId"),
	}
}

// recordFromDoc maps an attendance document. Timestamps are rendered as
// wall-clock strings in loc; a record without a worker or date is rejected.
func recordFromDoc(id string, data map[string]any, loc *time.Location) (attendance.Record, error) {
	r := attendance.Record{
		ID:       id,
		WorkerID: stringField(data, "userId"),
		Status:   stringField(data, "status"),
	}
	if r.WorkerID == "" {
		return attendance.Record{}, fmt.Errorf("missing userId")
	}

	minutes, err := numberField(data, "workMinutes")
	if err != nil {
		return attendance.Record{}, err
	}
	r.WorkMinutes = minutes

	switch v := data["date"].(type) {
	case time.Time:
		r.Date = v.In(loc).Format(attendance.DateLayout)
	case string:
		if _, err := time.Parse(attendance.DateLayout, v); err != nil {
			return attendance.Record{}, fmt.Errorf("date %q: %w", v, err)
		}
		r.Date = v
	default:
		return attendance.Record{}, fmt.Errorf("missing date")
	}

	r.ClockIn = timestampField(data, "clockInTime", loc)
	r.ClockOut = timestampField(data, "clockOutTime", loc)
	return r, nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// numberField reads a numeric field; a missing field is zero.
func numberField(data map[string]any, key string) (float64, error) {
	switch v := data[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s %q is not a number", key, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}

// timestampField renders a timestamp field, or nil when absent. Strings are
// passed through so hand-entered values reach the punctuality parser as is.
func timestampField(data map[string]any, key string, loc *time.Location) *string {
	switch v := data[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return attendance.StringPtr(attendance.FormatTimestamp(v, loc))
	case string:
		return attendance.StringPtr(strings.TrimSpace(v))
	default:
		return nil
	}
}
