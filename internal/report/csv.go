package report

import (
	"bytes"

	"github.com/go-gota/gota/dataframe"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
)

// csvRow is one labeled worker as written to the CSV report.
type csvRow struct {
	WorkerID         string  `dataframe:"worker_id"`
	Name             string  `dataframe:"name"`
	Email            string  `dataframe:"email"`
	WorkerCode       string  `dataframe:"worker_code"`
	AttendanceRate   float64 `dataframe:"attendance_rate"`
	AvgWorkHours     float64 `dataframe:"avg_work_hours"`
	PunctualityScore float64 `dataframe:"punctuality_score"`
	ConsistencyScore float64 `dataframe:"consistency_score"`
	TotalRecords     int     `dataframe:"total_records"`
	Cluster          int     `dataframe:"cluster"`
	Label            string  `dataframe:"performance_label"`
}

// WorkerFrame loads the labeled workers into a dataframe sorted by worker id.
func WorkerFrame(l cluster.Labeling) (dataframe.DataFrame, error) {
	if len(l.Workers) == 0 {
		return dataframe.DataFrame{}, tierrors.NewValidationError("no labeled workers to report")
	}

	rows := make([]csvRow, len(l.Workers))
	for i, w := range l.Workers {
		rows[i] = csvRow{
			WorkerID:         w.WorkerID,
			Name:             w.Name,
			Email:            w.Email,
			WorkerCode:       w.WorkerCode,
			AttendanceRate:   w.AttendanceRate,
			AvgWorkHours:     w.AvgWorkHours,
			PunctualityScore: w.PunctualityScore,
			ConsistencyScore: w.ConsistencyScore,
			TotalRecords:     w.TotalRecords,
			Cluster:          w.Cluster,
			Label:            w.Label,
		}
	}

	df := dataframe.LoadStructs(rows)
	if df.Err != nil {
		return dataframe.DataFrame{}, tierrors.Wrap(df.Err, "failed to build worker frame")
	}
	df = df.Arrange(dataframe.Sort("worker_id"))
	if df.Err != nil {
		return dataframe.DataFrame{}, tierrors.Wrap(df.Err, "failed to sort worker frame")
	}
	return df, nil
}

// CSV renders the labeled workers as CSV with a header row.
func CSV(l cluster.Labeling) ([]byte, error) {
	df, err := WorkerFrame(l)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := df.WriteCSV(&buf); err != nil {
		return nil, tierrors.Wrap(err, "failed to encode worker csv")
	}
	return buf.Bytes(), nil
}
