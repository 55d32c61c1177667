// Package testutil provides fixtures shared by the workertiers tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// Feature profiles of the three reference tiers.
var (
	HighProfile   = []float64{95, 8.5, 90, 85}
	MediumProfile = []float64{75, 7, 70, 60}
	LowProfile    = []float64{50, 5.5, 40, 30}
)

// TieredTable returns a feature table with n workers jittered around each
// reference profile, high tier first.
func TieredTable(n int) features.Table {
	var workers []features.Worker
	for tier, base := range [][]float64{HighProfile, MediumProfile, LowProfile} {
		for i := range n {
			off := float64(i) - float64(n-1)/2
			workers = append(workers, features.Worker{
				WorkerID:         fmt.Sprintf("t%d-w%02d", tier, i),
				Name:             fmt.Sprintf("Worker %d.%d", tier, i),
				Email:            fmt.Sprintf("w%d.%d@example.com", tier, i),
				WorkerCode:       fmt.Sprintf("EMP-%d%02d", tier, i),
				AttendanceRate:   base[0] + off*0.4,
				AvgWorkHours:     base[1] + off*0.05,
				PunctualityScore: base[2] - off*0.3,
				ConsistencyScore: base[3] + off*0.5,
				TotalRecords:     20 + i,
			})
		}
	}
	return features.Table{Workers: workers}
}

// TrainedState fits the default engine on TieredTable(10) and assigns
// labels. It fails the test on any error.
func TrainedState(t testing.TB) (cluster.State, cluster.Labeling) {
	t.Helper()

	table := TieredTable(10)
	engine := cluster.NewEngine(cluster.DefaultConfig(), nil)
	clusters, err := engine.FitTable(table)
	if err != nil {
		t.Fatalf("failed to fit engine: %v", err)
	}
	labeling, err := engine.AssignLabels(table, clusters)
	if err != nil {
		t.Fatalf("failed to assign labels: %v", err)
	}
	state, err := engine.State()
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}
	return state, labeling
}

// tierPattern shapes the synthetic attendance of one tier.
type tierPattern struct {
	skip      int     // every skip-th working day is missed; 0 misses none
	minutes   float64 // base work minutes per day
	clockHour int
}

var patterns = []tierPattern{
	{skip: 0, minutes: 510, clockHour: 6},
	{skip: 4, minutes: 420, clockHour: 7},
	{skip: 2, minutes: 330, clockHour: 9},
}

// Attendance generates users and attendance records for the weekdays from
// start through days calendar days later. perTier workers are created for
// each of the high, medium and low patterns, plus one admin who must be
// excluded from analysis.
func Attendance(start time.Time, days, perTier int) ([]attendance.User, []attendance.Record) {
	var (
		users   []attendance.User
		records []attendance.Record
	)

	users = append(users, attendance.User{ID: "admin-1", Name: "Site Admin", Email: "admin@example.com", Role: "Admin"})

	for tier, p := range patterns {
		for i := range perTier {
			id := fmt.Sprintf("t%d-w%02d", tier, i)
			users = append(users, attendance.User{
				ID:         id,
				Name:       fmt.Sprintf("Worker %d.%d", tier, i),
				Email:      fmt.Sprintf("%s@example.com", id),
				Role:       "worker",
				WorkerCode: fmt.Sprintf("EMP-%d%02d", tier, i),
			})

			workday := 0
			for d := range days {
				day := start.AddDate(0, 0, d)
				if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
					continue
				}
				workday++
				if p.skip > 0 && workday%p.skip == 0 {
					continue
				}

				minutes := p.minutes + float64((workday+i)%5)*6
				in := time.Date(day.Year(), day.Month(), day.Day(), p.clockHour, (workday*7+i)%60, 0, 0, time.UTC)
				out := in.Add(time.Duration(minutes) * time.Minute)
				records = append(records, attendance.Record{
					ID:          fmt.Sprintf("%s-%s", id, day.Format(attendance.DateLayout)),
					WorkerID:    id,
					Status:      attendance.StatusApproved,
					WorkMinutes: minutes,
					Date:        day.Format(attendance.DateLayout),
					ClockIn:     attendance.StringPtr(attendance.FormatTimestamp(in, time.UTC)),
					ClockOut:    attendance.StringPtr(attendance.FormatTimestamp(out, time.UTC)),
				})
			}
		}
	}

	return users, records
}

// WriteFile writes content to name under dir, creating parents.
// Returns the full path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}
