// Package features derives the per-worker performance features that drive
// clustering.
//
// Every metric is a pure function of a worker id and the attendance
// collection. Malformed inputs never fail a metric: they degrade to a
// non-punctual day or a zero score.
package features

import (
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Iron-Ham/workertiers/internal/attendance"
	"github.com/Iron-Ham/workertiers/internal/config"
)

// NumFeatures is the width of a feature vector.
const NumFeatures = 4

// Names is the fixed feature order used by training, scaling and export.
var Names = [NumFeatures]string{
	"attendance_rate",
	"avg_work_hours",
	"punctuality_score",
	"consistency_score",
}

// FeatureNames returns Names as a slice.
func FeatureNames() []string {
	out := make([]string, NumFeatures)
	copy(out, Names[:])
	return out
}

// Config holds the extraction parameters. It is copied into the Extractor
// and never mutated afterwards.
type Config struct {
	Start                 time.Time
	End                   time.Time
	PunctualityCutoffHour int
	MaxStdHours           float64
	ExcludedRoles         []string
}

// ConfigFrom builds an extraction Config from the analysis settings.
func ConfigFrom(a config.AnalysisConfig) Config {
	start, end := a.DateRange()
	return Config{
		Start:                 start,
		End:                   end,
		PunctualityCutoffHour: a.PunctualityCutoffHour,
		MaxStdHours:           a.MaxStdHours,
		ExcludedRoles:         append([]string(nil), a.ExcludedRoles...),
	}
}

// Worker is one row of the feature table.
type Worker struct {
	WorkerID         string  `json:"worker_id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	WorkerCode       string  `json:"worker_code"`
	AttendanceRate   float64 `json:"attendance_rate"`
	AvgWorkHours     float64 `json:"avg_work_hours"`
	PunctualityScore float64 `json:"punctuality_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	TotalRecords     int     `json:"total_records"`
}

// Vector returns the worker's features in Names order.
func (w Worker) Vector() []float64 {
	return []float64{w.AttendanceRate, w.AvgWorkHours, w.PunctualityScore, w.ConsistencyScore}
}

// Table is the feature table produced by Extract.
type Table struct {
	Workers []Worker
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Workers) }

// Matrix returns the feature matrix in Names order, one row per worker.
func (t Table) Matrix() [][]float64 {
	m := make([][]float64, len(t.Workers))
	for i, w := range t.Workers {
		m[i] = w.Vector()
	}
	return m
}

// IDs returns the worker ids in row order.
func (t Table) IDs() []string {
	ids := make([]string, len(t.Workers))
	for i, w := range t.Workers {
		ids[i] = w.WorkerID
	}
	return ids
}

// Extractor computes features for a fixed configuration.
type Extractor struct {
	cfg         Config
	workingDays int
}

// NewExtractor creates an Extractor. The working-day count for the range is
// computed once.
func NewExtractor(cfg Config) *Extractor {
	cfg.ExcludedRoles = append([]string(nil), cfg.ExcludedRoles...)
	return &Extractor{cfg: cfg, workingDays: WorkingDays(cfg.Start, cfg.End)}
}

// WorkingDays returns the number of Monday–Friday dates in [start, end].
// It returns 0 when end is before start.
func WorkingDays(start, end time.Time) int {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return 0
	}

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// approved returns the approved records belonging to workerID.
func approved(workerID string, records []attendance.Record) []attendance.Record {
	var out []attendance.Record
	for _, r := range records {
		if r.WorkerID == workerID && r.Approved() {
			out = append(out, r)
		}
	}
	return out
}

func hours(records []attendance.Record) []float64 {
	h := make([]float64, len(records))
	for i, r := range records {
		h[i] = r.WorkHours()
	}
	return h
}

// AttendanceRate is approved days over working days in the range, as a
// percentage capped at 100.
func (e *Extractor) AttendanceRate(workerID string, records []attendance.Record) float64 {
	return e.attendanceRate(approved(workerID, records))
}

func (e *Extractor) attendanceRate(approved []attendance.Record) float64 {
	if e.workingDays == 0 {
		return 0
	}
	return math.Min(float64(len(approved))/float64(e.workingDays)*100, 100)
}

// AvgWorkHours is the mean of approved work hours, or 0 without approved records.
func (e *Extractor) AvgWorkHours(workerID string, records []attendance.Record) float64 {
	return avgWorkHours(approved(workerID, records))
}

func avgWorkHours(approved []attendance.Record) float64 {
	if len(approved) == 0 {
		return 0
	}
	return finiteOrZero(stat.Mean(hours(approved), nil))
}

// PunctualityScore is the percentage of approved records that clocked in at
// or before the cutoff hour.
func (e *Extractor) PunctualityScore(workerID string, records []attendance.Record) float64 {
	return e.punctualityScore(approved(workerID, records))
}

func (e *Extractor) punctualityScore(approved []attendance.Record) float64 {
	if len(approved) == 0 {
		return 0
	}
	punctual := 0
	for _, r := range approved {
		if e.IsPunctual(r.ClockIn, r.ClockOut) {
			punctual++
		}
	}
	return float64(punctual) / float64(len(approved)) * 100
}

// IsPunctual reports whether a day with the given clock-in and clock-out
// strings counts as punctual. Both must be present and clock-in must parse.
func (e *Extractor) IsPunctual(clockIn, clockOut *string) bool {
	if clockIn == nil || clockOut == nil || *clockIn == "" || *clockOut == "" {
		return false
	}
	hour, ok := ClockInHour(*clockIn)
	if !ok {
		return false
	}
	return hour <= e.cfg.PunctualityCutoffHour
}

// ClockInHour extracts the hour from a "YYYY-MM-DD HH:MM:SS" string.
func ClockInHour(ts string) (int, bool) {
	parts := strings.Split(ts, " ")
	if len(parts) < 2 {
		return 0, false
	}
	hourPart, _, _ := strings.Cut(parts[1], ":")
	hour, err := strconv.Atoi(strings.TrimSpace(hourPart))
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// ConsistencyScore maps the sample standard deviation of approved work hours
// onto [0, 100], where MaxStdHours or more scores 0. Fewer than two approved
// records score 0.
func (e *Extractor) ConsistencyScore(workerID string, records []attendance.Record) float64 {
	return e.consistencyScore(approved(workerID, records))
}

func (e *Extractor) consistencyScore(approved []attendance.Record) float64 {
	if len(approved) < 2 || e.cfg.MaxStdHours <= 0 {
		return 0
	}
	std := stat.StdDev(hours(approved), nil)
	if math.IsNaN(std) {
		return 0
	}
	return math.Max(0, (e.cfg.MaxStdHours-std)/e.cfg.MaxStdHours*100)
}

// Extract builds one feature row per user whose role is not excluded.
// TotalRecords counts every record of the worker regardless of status.
func (e *Extractor) Extract(users []attendance.User, records []attendance.Record) Table {
	byWorker := make(map[string][]attendance.Record)
	for _, r := range records {
		byWorker[r.WorkerID] = append(byWorker[r.WorkerID], r)
	}

	workers := make([]Worker, 0, len(users))
	for _, u := range users {
		if e.excluded(u.Role) {
			continue
		}
		all := byWorker[u.ID]
		ok := approved(u.ID, all)
		workers = append(workers, Worker{
			WorkerID:         u.ID,
			Name:             u.DisplayName(),
			Email:            u.Email,
			WorkerCode:       u.WorkerCode,
			AttendanceRate:   e.attendanceRate(ok),
			AvgWorkHours:     avgWorkHours(ok),
			PunctualityScore: e.punctualityScore(ok),
			ConsistencyScore: e.consistencyScore(ok),
			TotalRecords:     len(all),
		})
	}
	return Table{Workers: workers}
}

func (e *Extractor) excluded(role string) bool {
	for _, r := range e.cfg.ExcludedRoles {
		if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
