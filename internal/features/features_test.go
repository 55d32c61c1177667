package features

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	"github.com/Iron-Ham/workertiers/internal/config"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekConfig covers Monday 2025-01-06 through Friday 2025-01-10.
func weekConfig() Config {
	return Config{
		Start:                 day(2025, time.January, 6),
		End:                   day(2025, time.January, 10),
		PunctualityCutoffHour: 7,
		MaxStdHours:           4,
		ExcludedRoles:         []string{"admin"},
	}
}

func rec(worker, status string, minutes float64, clockIn, clockOut string) attendance.Record {
	return attendance.Record{
		WorkerID:    worker,
		Status:      status,
		WorkMinutes: minutes,
		Date:        "2025-01-06",
		ClockIn:     attendance.StringPtr(clockIn),
		ClockOut:    attendance.StringPtr(clockOut),
	}
}

func approvedDays(worker string, n int, minutes float64) []attendance.Record {
	out := make([]attendance.Record, n)
	for i := range out {
		out[i] = rec(worker, "approved", minutes, "2025-01-06 07:30:00", "2025-01-06 16:00:00")
		out[i].ID = fmt.Sprintf("%s-%d", worker, i)
	}
	return out
}

func TestWorkingDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"single monday", day(2025, 1, 6), day(2025, 1, 6), 1},
		{"single saturday", day(2025, 1, 11), day(2025, 1, 11), 0},
		{"full week", day(2025, 1, 6), day(2025, 1, 12), 5},
		{"two weeks", day(2025, 1, 6), day(2025, 1, 19), 10},
		{"year 2025", day(2025, 1, 1), day(2025, 12, 31), 261},
		{"reversed range", day(2025, 1, 10), day(2025, 1, 6), 0},
		{"time of day ignored", day(2025, 1, 6).Add(23 * time.Hour), day(2025, 1, 7).Add(time.Hour), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, WorkingDays(tt.start, tt.end))
		})
	}
}

func TestAttendanceRate(t *testing.T) {
	e := NewExtractor(weekConfig())

	t.Run("counts only approved records of the worker", func(t *testing.T) {
		records := append(approvedDays("w1", 3, 480),
			rec("w1", "pending", 480, "", ""),
			rec("w2", "approved", 480, "", ""),
		)
		require.InDelta(t, 60.0, e.AttendanceRate("w1", records), 1e-9)
	})

	t.Run("caps at 100", func(t *testing.T) {
		require.Equal(t, 100.0, e.AttendanceRate("w1", approvedDays("w1", 9, 480)))
	})

	t.Run("empty working-day range yields 0", func(t *testing.T) {
		cfg := weekConfig()
		cfg.Start, cfg.End = day(2025, 1, 11), day(2025, 1, 12)
		weekend := NewExtractor(cfg)
		require.Equal(t, 0.0, weekend.AttendanceRate("w1", approvedDays("w1", 2, 480)))
	})

	t.Run("bounded and monotonic in approved days", func(t *testing.T) {
		prev := -1.0
		for n := 0; n <= 12; n++ {
			rate := e.AttendanceRate("w1", approvedDays("w1", n, 480))
			require.GreaterOrEqual(t, rate, 0.0)
			require.LessOrEqual(t, rate, 100.0)
			require.GreaterOrEqual(t, rate, prev, "rate must not decrease at n=%d", n)
			prev = rate
		}
	})
}

func TestAvgWorkHours(t *testing.T) {
	e := NewExtractor(weekConfig())

	records := []attendance.Record{
		rec("w1", "approved", 480, "", ""),
		rec("w1", "approved", 540, "", ""),
		rec("w1", "rejected", 60, "", ""),
	}
	require.InDelta(t, 8.5, e.AvgWorkHours("w1", records), 1e-9)
	require.Equal(t, 0.0, e.AvgWorkHours("nobody", records))
}

func TestPunctualityScore(t *testing.T) {
	e := NewExtractor(weekConfig())

	t.Run("cutoff hour is inclusive", func(t *testing.T) {
		records := []attendance.Record{
			rec("w1", "approved", 480, "2025-01-06 07:59:59", "2025-01-06 16:00:00"),
			rec("w1", "approved", 480, "2025-01-07 08:00:00", "2025-01-07 16:00:00"),
			rec("w1", "approved", 480, "2025-01-08 06:10:00", "2025-01-08 15:00:00"),
			rec("w1", "approved", 480, "2025-01-09 09:43:30", "2025-01-09 17:00:00"),
		}
		require.InDelta(t, 50.0, e.PunctualityScore("w1", records), 1e-9)
	})

	t.Run("malformed or missing timestamps are not punctual", func(t *testing.T) {
		malformed := []string{"", "07:00", "2025-01-06", "2025-01-06 xx:00:00", "2025-01-06 25:00:00", "garbage"}
		records := []attendance.Record{
			rec("w1", "approved", 480, "2025-01-06 06:00:00", "2025-01-06 15:00:00"),
			rec("w1", "approved", 480, "2025-01-06 06:00:00", ""),
		}
		for _, m := range malformed {
			records = append(records, rec("w1", "approved", 480, m, "2025-01-06 15:00:00"))
		}

		var score float64
		require.NotPanics(t, func() { score = e.PunctualityScore("w1", records) })
		require.InDelta(t, 100.0/float64(len(records)), score, 1e-9)
	})

	t.Run("no approved records yields 0", func(t *testing.T) {
		records := []attendance.Record{rec("w1", "pending", 480, "2025-01-06 06:00:00", "2025-01-06 15:00:00")}
		require.Equal(t, 0.0, e.PunctualityScore("w1", records))
	})

	t.Run("configurable cutoff", func(t *testing.T) {
		cfg := weekConfig()
		cfg.PunctualityCutoffHour = 9
		late := NewExtractor(cfg)
		records := []attendance.Record{rec("w1", "approved", 480, "2025-01-09 09:43:30", "2025-01-09 17:00:00")}
		require.Equal(t, 100.0, late.PunctualityScore("w1", records))
	})
}

func TestClockInHour(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"2024-12-19 09:43:30", 9, true},
		{"2024-12-19 00:00:00", 0, true},
		{"2024-12-19 23:59:59", 23, true},
		{"2024-12-19 7:05", 7, true},
		{"2024-12-19T07:00:00", 0, false},
		{"2024-12-19 -1:00:00", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ClockInHour(tt.in)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConsistencyScore(t *testing.T) {
	e := NewExtractor(weekConfig())

	t.Run("identical hours score 100", func(t *testing.T) {
		require.InDelta(t, 100.0, e.ConsistencyScore("w1", approvedDays("w1", 5, 480)), 1e-9)
	})

	t.Run("sample stddev of 4 or more scores 0", func(t *testing.T) {
		// hours 2 and 8 have sample stddev 3√2 ≈ 4.24
		records := []attendance.Record{
			rec("w1", "approved", 120, "", ""),
			rec("w1", "approved", 480, "", ""),
		}
		require.Equal(t, 0.0, e.ConsistencyScore("w1", records))
	})

	t.Run("uses sample standard deviation", func(t *testing.T) {
		// hours 7 and 9: sample stddev √2, score (4-√2)/4*100
		records := []attendance.Record{
			rec("w1", "approved", 420, "", ""),
			rec("w1", "approved", 540, "", ""),
		}
		require.InDelta(t, 64.6446609, e.ConsistencyScore("w1", records), 1e-6)
	})

	t.Run("fewer than two approved records score 0", func(t *testing.T) {
		records := []attendance.Record{
			rec("w1", "approved", 480, "", ""),
			rec("w1", "pending", 480, "", ""),
		}
		require.Equal(t, 0.0, e.ConsistencyScore("w1", records))
	})
}

func TestExtract(t *testing.T) {
	e := NewExtractor(weekConfig())

	users := []attendance.User{
		{ID: "w1", Name: "Ayu", Email: "ayu@example.com", Role: "worker", WorkerCode: "K-001"},
		{ID: "boss", Name: "Admin", Role: "Admin"},
		{ID: "w2", Name: "", Role: "worker", WorkerCode: "K-002"},
	}
	records := append(approvedDays("w1", 5, 480), rec("w1", "pending", 480, "", ""))

	table := e.Extract(users, records)

	require.Equal(t, 2, table.Len())
	require.Equal(t, []string{"w1", "w2"}, table.IDs())

	w1 := table.Workers[0]
	require.Equal(t, "Ayu", w1.Name)
	require.Equal(t, "K-001", w1.WorkerCode)
	require.Equal(t, 6, w1.TotalRecords)
	require.InDelta(t, 100.0, w1.AttendanceRate, 1e-9)
	require.InDelta(t, 8.0, w1.AvgWorkHours, 1e-9)
	require.InDelta(t, 100.0, w1.PunctualityScore, 1e-9)
	require.InDelta(t, 100.0, w1.ConsistencyScore, 1e-9)

	w2 := table.Workers[1]
	require.Equal(t, "Unknown", w2.Name)
	require.Equal(t, 0, w2.TotalRecords)
	require.Equal(t, []float64{0, 0, 0, 0}, w2.Vector())

	m := table.Matrix()
	require.Len(t, m, 2)
	require.Len(t, m[0], NumFeatures)
	require.Equal(t, w1.Vector(), m[0])
}

func TestExtract_IsDeterministic(t *testing.T) {
	e := NewExtractor(weekConfig())
	users := []attendance.User{{ID: "w1"}, {ID: "w2"}}
	records := append(approvedDays("w1", 3, 450), approvedDays("w2", 2, 500)...)

	require.Equal(t, e.Extract(users, records), e.Extract(users, records))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Default().Analysis)

	require.Equal(t, day(2025, 1, 1), cfg.Start)
	require.Equal(t, day(2025, 12, 31), cfg.End)
	require.Equal(t, 7, cfg.PunctualityCutoffHour)
	require.Equal(t, 4.0, cfg.MaxStdHours)
	require.Equal(t, []string{"admin"}, cfg.ExcludedRoles)
}

func TestFeatureNames(t *testing.T) {
	names := FeatureNames()
	require.Equal(t, []string{"attendance_rate", "avg_work_hours", "punctuality_score", "consistency_score"}, names)

	names[0] = "mutated"
	require.Equal(t, "attendance_rate", Names[0])
}
