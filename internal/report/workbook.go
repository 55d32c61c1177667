package report

import (
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// Sheet names in the workbook report.
const (
	WorkersSheet = "Workers"
	TiersSheet   = "Tiers"
)

var workerHeader = []any{
	"Worker ID", "Name", "Email", "Worker Code",
	"Attendance Rate", "Avg Work Hours", "Punctuality Score", "Consistency Score",
	"Total Records", "Cluster", "Performance Label",
}

var tierHeader = []any{
	"Performance Label", "Cluster", "Score", "Workers", "Share (%)",
	"Attendance Rate", "Avg Work Hours", "Punctuality Score", "Consistency Score",
}

// Workbook renders the labeling as an XLSX workbook with a Workers sheet
// (one row per worker) and a Tiers sheet (one row per tier).
func Workbook(l cluster.Labeling) ([]byte, error) {
	if len(l.Workers) == 0 {
		return nil, tierrors.NewValidationError("no labeled workers to report")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", WorkersSheet); err != nil {
		return nil, tierrors.Wrap(err, "failed to name workers sheet")
	}
	if _, err := f.NewSheet(TiersSheet); err != nil {
		return nil, tierrors.Wrap(err, "failed to create tiers sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, tierrors.Wrap(err, "failed to create header style")
	}

	if err := writeWorkers(f, l, headerStyle); err != nil {
		return nil, err
	}
	if err := writeTiers(f, Summarize(l, nil), headerStyle); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, tierrors.Wrap(err, "failed to encode workbook")
	}
	return buf.Bytes(), nil
}

func writeWorkers(f *excelize.File, l cluster.Labeling, headerStyle int) error {
	df, err := WorkerFrame(l)
	if err != nil {
		return err
	}
	if err := writeHeader(f, WorkersSheet, workerHeader, headerStyle); err != nil {
		return err
	}

	byID := make(map[string]cluster.LabeledWorker, len(l.Workers))
	for _, w := range l.Workers {
		byID[w.WorkerID] = w
	}
	for i, id := range df.Col("worker_id").Records() {
		w := byID[id]
		row := []any{
			w.WorkerID, w.Name, w.Email, w.WorkerCode,
			round2(w.AttendanceRate), round2(w.AvgWorkHours), round2(w.PunctualityScore), round2(w.ConsistencyScore),
			w.TotalRecords, w.Cluster, w.Label,
		}
		if err := setRow(f, WorkersSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(WorkersSheet, "A", "D", 20); err != nil {
		return tierrors.Wrap(err, "failed to size workers sheet")
	}
	if err := f.SetColWidth(WorkersSheet, "E", "K", 18); err != nil {
		return tierrors.Wrap(err, "failed to size workers sheet")
	}
	return f.SetPanes(WorkersSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeTiers(f *excelize.File, s Summary, headerStyle int) error {
	if err := writeHeader(f, TiersSheet, tierHeader, headerStyle); err != nil {
		return err
	}
	for i, t := range s.Tiers {
		row := []any{t.Label, t.Cluster, round2(t.Score), t.Count, round2(t.Percent)}
		for j := range features.NumFeatures {
			if j < len(t.Means) {
				row = append(row, round2(t.Means[j]))
			}
		}
		if err := setRow(f, TiersSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(TiersSheet, "A", "A", 22); err != nil {
		return tierrors.Wrap(err, "failed to size tiers sheet")
	}
	if err := f.SetColWidth(TiersSheet, "B", "I", 18); err != nil {
		return tierrors.Wrap(err, "failed to size tiers sheet")
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return tierrors.Wrap(err, "failed to address header")
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return tierrors.Wrapf(err, "failed to style %s header", sheet)
	}
	return f.SetRowHeight(sheet, 1, 22)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return tierrors.Wrapf(err, "failed to address row %d", row)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return tierrors.Wrapf(err, "failed to write %s row %d", sheet, row)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
