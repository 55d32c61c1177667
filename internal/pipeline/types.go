package pipeline

import (
	"time"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/export"
	"github.com/Iron-Ham/workertiers/internal/features"
	"github.com/Iron-Ham/workertiers/internal/source"
)

// Stage is one step of a training run.
type Stage string

const (
	// StageLoad fetches users and attendance from the source.
	StageLoad Stage = "load"

	// StageExtract derives the per-worker feature table.
	StageExtract Stage = "extract"

	// StageTrain fits the k-means model.
	StageTrain Stage = "train"

	// StageLabel ranks clusters into performance tiers.
	StageLabel Stage = "label"

	// StagePersist saves the fitted model to the model directory.
	StagePersist Stage = "persist"

	// StageExport writes the inference graph and its manifest.
	StageExport Stage = "export"

	// StageVerify compares the exported graph against the engine.
	StageVerify Stage = "verify"

	// StageReport renders the report files.
	StageReport Stage = "report"

	// StagePublish pushes results to the results store.
	StagePublish Stage = "publish"

	// StageDone indicates every stage completed.
	StageDone Stage = "done"

	// StageFailed indicates a stage returned an error.
	StageFailed Stage = "failed"
)

// Stages returns the executable stages in run order.
func Stages() []Stage {
	return []Stage{
		StageLoad, StageExtract, StageTrain, StageLabel, StagePersist,
		StageExport, StageVerify, StageReport, StagePublish,
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsTerminal returns true if this stage represents a final state.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Result collects what a run produced. Fields are filled as stages
// complete, so a failed run returns the outputs of the stages before it.
type Result struct {
	RunID     string
	StartedAt time.Time

	Dataset      source.Dataset
	Table        features.Table
	State        cluster.State
	Labeling     cluster.Labeling
	Export       export.Result
	Verification export.Report
	Reports      []string
	Published    int

	// Durations records the wall time of every stage that ran.
	Durations map[Stage]time.Duration
}
