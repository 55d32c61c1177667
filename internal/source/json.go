package source

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/attendance"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
)

// Snapshot is the on-disk form of both collections.
type Snapshot struct {
	Source     string              `json:"source,omitempty"`
	ExportedAt time.Time           `json:"exported_at,omitzero"`
	Users      []attendance.User   `json:"users"`
	Attendance []attendance.Record `json:"attendance"`
}

// ReadSnapshot loads a snapshot file.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, tierrors.NewDataSourceError("snapshot not found: "+path, tierrors.ErrSourceUnavailable).
			WithSource(KindJSON)
	}
	if err != nil {
		return Snapshot{}, tierrors.NewDataSourceError("read snapshot", err).WithSource(KindJSON)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, tierrors.NewDataSourceError("decode snapshot "+path, tierrors.Wrap(tierrors.ErrSourceMalformed, err.Error())).
			WithSource(KindJSON).
			WithRetryable(false)
	}
	return snap, nil
}

// WriteSnapshot replaces path atomically with snap.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return artifact.WriteFileAtomic(path, append(data, '\n'), 0644)
}

// Dump copies the users and the in-range attendance of src into a snapshot,
// applying the same fallback as Load.
func Dump(ctx context.Context, src Source, rng DateRange, fallbackLimit int, now time.Time) (Snapshot, error) {
	ds, err := Load(ctx, src, rng, fallbackLimit)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Source:     src.Name(),
		ExportedAt: now.UTC(),
		Users:      ds.Users,
		Attendance: ds.Records,
	}, nil
}

// JSONSource serves a snapshot file.
type JSONSource struct {
	path string
	snap Snapshot
}

// OpenJSON reads the snapshot at path.
func OpenJSON(path string) (*JSONSource, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return &JSONSource{path: path, snap: snap}, nil
}

// NewJSONSource serves an in-memory snapshot.
func NewJSONSource(snap Snapshot) *JSONSource {
	return &JSONSource{snap: snap}
}

// Name implements Source.
func (s *JSONSource) Name() string { return KindJSON }

// Users implements Source.
func (s *JSONSource) Users(ctx context.Context) ([]attendance.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.snap.Users), nil
}

// Attendance implements Source. Records with unparseable dates are skipped.
func (s *JSONSource) Attendance(ctx context.Context, rng DateRange) ([]attendance.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []attendance.Record
	for _, r := range s.snap.Attendance {
		if rng.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentAttendance implements Source. Ties on date keep file order.
func (s *JSONSource) RecentAttendance(ctx context.Context, limit int) ([]attendance.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := slices.Clone(s.snap.Attendance)
	slices.SortStableFunc(out, func(a, b attendance.Record) int {
		return cmp.Compare(b.Date, a.Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Source.
func (s *JSONSource) Close() error { return nil }
