package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/testutil"
)

func writeFixture(t *testing.T) (string, Snapshot) {
	t.Helper()

	users, records := testutil.Attendance(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 31, 2)
	snap := Snapshot{Users: users, Attendance: records}
	path := filepath.Join(t.TempDir(), "attendance.json")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	return path, snap
}

func TestJSONSource_RoundTrip(t *testing.T) {
	path, snap := writeFixture(t)

	src, err := OpenJSON(path)
	if err != nil {
		t.Fatalf("OpenJSON failed: %v", err)
	}
	defer func() { _ = src.Close() }()

	users, err := src.Users(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != len(snap.Users) {
		t.Errorf("users = %d, want %d", len(users), len(snap.Users))
	}
	if users[0].Role != "Admin" {
		t.Errorf("first user role = %q, want Admin", users[0].Role)
	}

	records, err := src.Attendance(context.Background(), testRange)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(snap.Attendance) {
		t.Errorf("records = %d, want %d", len(records), len(snap.Attendance))
	}
	if records[0].ClockIn == nil || *records[0].ClockIn != *snap.Attendance[0].ClockIn {
		t.Errorf("clock-in did not survive the round trip: %v", records[0].ClockIn)
	}
}

func TestJSONSource_AttendanceFiltersRange(t *testing.T) {
	path, _ := writeFixture(t)
	src, err := OpenJSON(path)
	if err != nil {
		t.Fatal(err)
	}

	week := DateRange{
		Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	records, err := src.Attendance(context.Background(), week)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Fatal("expected records in the week of 2025-01-06")
	}
	for _, r := range records {
		if r.Date < "2025-01-06" || r.Date > "2025-01-10" {
			t.Errorf("record dated %s is outside the range", r.Date)
		}
	}

	empty, err := src.Attendance(context.Background(), DateRange{
		Start: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("records in 2030 = %d, want 0", len(empty))
	}
}

func TestJSONSource_RecentAttendance(t *testing.T) {
	src := NewJSONSource(Snapshot{Attendance: []attendance.Record{
		{ID: "a", Date: "2025-01-02"},
		{ID: "b", Date: "2025-01-05"},
		{ID: "c", Date: "2025-01-03"},
		{ID: "d", Date: "2025-01-05"},
	}})

	records, err := src.RecentAttendance(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	var ids string
	for _, r := range records {
		ids += r.ID
	}
	if ids != "bdc" {
		t.Errorf("recent order = %q, want %q", ids, "bdc")
	}
}

func TestJSONSource_Canceled(t *testing.T) {
	src := NewJSONSource(Snapshot{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Users(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Users() error = %v, want context.Canceled", err)
	}
}

func TestReadSnapshot_Malformed(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "bad.json", `{"users": [`)

	_, err := ReadSnapshot(path)
	if !errors.Is(err, tierrors.ErrSourceMalformed) {
		t.Errorf("ReadSnapshot() error = %v, want ErrSourceMalformed", err)
	}
	if tierrors.IsRetryable(err) {
		t.Error("malformed snapshot should not be retryable")
	}
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json")); !tierrors.IsRetryable(err) {
		t.Errorf("missing snapshot error = %v, want retryable", err)
	}
}

func TestReadSnapshot_FieldNames(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "snap.json", `{
  "users": [{"id": "u1", "name": "Ana", "role": "worker", "worker_code": "EMP-1"}],
  "attendance": [{"id": "r1", "worker_id": "u1", "status": "approved", "work_minutes": 480,
                  "date": "2025-01-02", "clock_in": "2025-01-02 07:30:00"}]
}`)

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	r := snap.Attendance[0]
	if r.WorkerID != "u1" || r.WorkMinutes != 480 || r.ClockOut != nil {
		t.Errorf("record = %+v", r)
	}
	if snap.Users[0].WorkerCode != "EMP-1" {
		t.Errorf("worker_code = %q", snap.Users[0].WorkerCode)
	}
}

func TestDump(t *testing.T) {
	path, snap := writeFixture(t)
	src, err := OpenJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	dumped, err := Dump(context.Background(), src, testRange, 0, now)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if dumped.Source != KindJSON || !dumped.ExportedAt.Equal(now) {
		t.Errorf("dump header = %q %v", dumped.Source, dumped.ExportedAt)
	}

	out := filepath.Join(t.TempDir(), "dump.json")
	if err := WriteSnapshot(out, dumped); err != nil {
		t.Fatal(err)
	}
	reread, err := ReadSnapshot(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(reread.Attendance) != len(snap.Attendance) || len(reread.Users) != len(snap.Users) {
		t.Errorf("re-read dump has %d users, %d records", len(reread.Users), len(reread.Attendance))
	}
}
