package report

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/config"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// Report file names inside the report directory.
const (
	CSVFile           = "worker_performance.csv"
	WorkbookFile      = "worker_performance.xlsx"
	VisualizationFile = "cluster_visualization.pdf"
)

const reportPerm = 0644

// Writer renders the enabled report files into one directory.
type Writer struct {
	dir    string
	cfg    config.ReportConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewWriter creates a Writer for dir. A nil logger discards output.
func NewWriter(dir string, cfg config.ReportConfig, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Writer{dir: dir, cfg: cfg, logger: logger, now: time.Now}
}

// Write renders every enabled report for l and returns the paths written.
// Each file is replaced atomically; a failure leaves earlier files in place.
func (w *Writer) Write(ctx context.Context, l cluster.Labeling) ([]string, error) {
	type job struct {
		enabled bool
		name    string
		render  func() ([]byte, error)
	}
	jobs := []job{
		{w.cfg.CSV, CSVFile, func() ([]byte, error) { return CSV(l) }},
		{w.cfg.Workbook, WorkbookFile, func() ([]byte, error) { return Workbook(l) }},
		{w.cfg.Visualization, VisualizationFile, func() ([]byte, error) { return Visualization(l, w.now()) }},
	}

	var written []string
	for _, j := range jobs {
		if !j.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		data, err := j.render()
		if err != nil {
			return written, err
		}
		path := filepath.Join(w.dir, j.name)
		if err := artifact.WriteFileAtomic(path, data, reportPerm); err != nil {
			return written, err
		}
		w.logger.Info("report written", "path", path, "bytes", len(data))
		written = append(written, path)
	}
	return written, nil
}
