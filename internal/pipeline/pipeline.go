package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/config"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/export"
	"github.com/Iron-Ham/workertiers/internal/features"
	"github.com/Iron-Ham/workertiers/internal/logging"
	"github.com/Iron-Ham/workertiers/internal/report"
	"github.com/Iron-Ham/workertiers/internal/source"
	"github.com/Iron-Ham/workertiers/internal/telemetry"
)

// Pipeline runs the training stages against one data source.
//
// A Pipeline is single-use: Run may be called once.
type Pipeline struct {
	mu      sync.RWMutex
	cfg     config.Config
	src     source.Source
	store   *artifact.Store
	opts    options
	logger  *logging.Logger
	stage   Stage
	started bool

	engine *cluster.Engine
}

// New creates a Pipeline. cfg is copied; src is not closed by the pipeline.
func New(cfg config.Config, src source.Source, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.metrics == nil {
		o.metrics = telemetry.New()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	return &Pipeline{
		cfg:    cfg,
		src:    src,
		store:  artifact.NewStore(cfg.Paths.ModelDir),
		opts:   o,
		logger: o.logger.WithRun(o.runID),
	}, nil
}

// RunID returns the identifier stamped on logs, metadata and metrics.
func (p *Pipeline) RunID() string { return p.opts.runID }

// Stage returns the stage currently running, or the terminal stage once
// Run has returned.
func (p *Pipeline) Stage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// Metrics returns the registry the run records into.
func (p *Pipeline) Metrics() *telemetry.Metrics { return p.opts.metrics }

// Store returns the artifact store under the model directory.
func (p *Pipeline) Store() *artifact.Store { return p.store }

func (p *Pipeline) setStage(s Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

// Run executes every stage in order. On failure it returns the partial
// result together with a PipelineError naming the failed stage.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, errors.New("pipeline: already run")
	}
	p.started = true
	p.mu.Unlock()

	res := &Result{
		RunID:     p.opts.runID,
		StartedAt: p.opts.now(),
		Durations: make(map[Stage]time.Duration),
	}
	p.opts.metrics.SetRun(p.opts.runID)
	defer p.writeTextfile()

	p.logger.Info("training run started",
		"source", p.src.Name(),
		"range", source.RangeFrom(p.cfg.Analysis).String(),
		"clusters", p.cfg.Model.Clusters(),
	)

	steps := []struct {
		stage Stage
		run   func(context.Context, *Result) error
	}{
		{StageLoad, p.load},
		{StageExtract, p.extract},
		{StageTrain, p.train},
		{StageLabel, p.label},
		{StagePersist, p.persist},
		{StageExport, p.export},
		{StageVerify, p.verify},
		{StageReport, p.report},
		{StagePublish, p.publish},
	}

	for _, step := range steps {
		p.setStage(step.stage)
		if err := ctx.Err(); err != nil {
			return res, p.fail(step.stage, 0, err)
		}

		start := p.opts.now()
		err := step.run(ctx, res)
		elapsed := p.opts.now().Sub(start)
		res.Durations[step.stage] = elapsed
		if err != nil {
			return res, p.fail(step.stage, elapsed, err)
		}
		p.opts.metrics.ObserveStage(step.stage.String(), elapsed, "")
		p.logger.Debug("stage completed", "stage", step.stage.String(), "duration", elapsed.String())
	}

	p.setStage(StageDone)
	finished := p.opts.now()
	p.opts.metrics.MarkSuccess(finished)
	p.logger.Info("training run completed",
		"workers", res.Table.Len(),
		"duration", finished.Sub(res.StartedAt).String(),
	)
	return res, nil
}

func (p *Pipeline) fail(stage Stage, elapsed time.Duration, err error) error {
	p.setStage(StageFailed)
	p.opts.metrics.ObserveStage(stage.String(), elapsed, tierrors.Kind(err))

	perr := tierrors.NewPipelineError(stage.String(), err).WithRunID(p.opts.runID)
	p.logger.WithStage(stage.String()).Error("stage failed",
		"error", err.Error(),
		"kind", tierrors.Kind(err),
		"severity", tierrors.GetSeverity(err).String(),
		"retryable", tierrors.IsRetryable(err),
	)
	return perr
}

func (p *Pipeline) writeTextfile() {
	path := p.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := p.opts.metrics.WriteTextfile(path); err != nil {
		p.logger.Warn("failed to write metrics textfile", "path", path, "error", err.Error())
	}
}

func (p *Pipeline) load(ctx context.Context, res *Result) error {
	rng := source.RangeFrom(p.cfg.Analysis)
	ds, err := source.Load(ctx, p.src, rng, p.cfg.Source.FallbackLimit)
	if err != nil {
		return err
	}
	res.Dataset = ds

	log := p.logger.WithStage(StageLoad.String())
	if ds.Fallback {
		log.Warn("no attendance in range, using most recent records",
			"range", rng.String(),
			"records", len(ds.Records),
		)
	}
	log.Info("data loaded", "users", len(ds.Users), "records", len(ds.Records))
	return nil
}

func (p *Pipeline) extract(_ context.Context, res *Result) error {
	ex := features.NewExtractor(features.ConfigFrom(p.cfg.Analysis))
	res.Table = ex.Extract(res.Dataset.Users, res.Dataset.Records)
	if res.Table.Len() == 0 {
		return tierrors.NewValidationError("no workers left after role exclusion").
			WithField("analysis.excluded_roles").WithCause(tierrors.ErrEmptyWorkers)
	}

	p.opts.metrics.SetDataset(res.Table.Len(), len(res.Dataset.Records), res.Dataset.Fallback)
	p.logger.WithStage(StageExtract.String()).Info("features extracted",
		"workers", res.Table.Len(),
		"features", features.FeatureNames(),
	)
	return nil
}

func (p *Pipeline) train(_ context.Context, res *Result) error {
	p.engine = cluster.NewEngine(cluster.ConfigFrom(p.cfg.Model), p.logger.WithStage(StageTrain.String()))
	clusters, err := p.engine.FitTable(res.Table)
	if err != nil {
		return err
	}
	res.Labeling.Workers = make([]cluster.LabeledWorker, len(clusters))
	for i, c := range clusters {
		res.Labeling.Workers[i] = cluster.LabeledWorker{Worker: res.Table.Workers[i], Cluster: c}
	}
	return nil
}

func (p *Pipeline) label(_ context.Context, res *Result) error {
	clusters := make([]int, len(res.Labeling.Workers))
	for i, w := range res.Labeling.Workers {
		clusters[i] = w.Cluster
	}

	labeling, err := p.engine.AssignLabels(res.Table, clusters)
	if err != nil {
		return err
	}
	state, err := p.engine.State()
	if err != nil {
		return err
	}
	res.Labeling = labeling
	res.State = state

	counts := make(map[int]int, state.K())
	for c := range state.K() {
		counts[c] = 0
	}
	for _, c := range clusters {
		counts[c]++
	}
	p.opts.metrics.SetModel(state.Inertia, state.Silhouette, state.Iterations)
	p.opts.metrics.SetClusters(counts, labeling.Mapping)
	return nil
}

func (p *Pipeline) persist(_ context.Context, res *Result) error {
	meta := artifact.NewMetadata(res.State, p.engine.Config().Weights, p.opts.runID, p.opts.now())
	if err := p.store.SaveModel(res.State, meta); err != nil {
		return err
	}
	p.logger.WithStage(StagePersist.String()).Info("model saved", "dir", p.store.Dir())
	return nil
}

func (p *Pipeline) export(ctx context.Context, res *Result) error {
	precision, err := export.ParsePrecision(p.cfg.Model.Precision)
	if err != nil {
		return err
	}
	out, err := export.NewExporter(p.store, precision, p.logger.WithStage(StageExport.String())).Export(ctx)
	if err != nil {
		return err
	}
	res.Export = out
	return nil
}

func (p *Pipeline) verify(_ context.Context, res *Result) error {
	samples := export.Samples(p.cfg.Model.VerifySamples, p.cfg.Model.Seed)
	rep, err := export.Verify(res.Export.State, res.Export.Graph, samples)
	if err != nil {
		return err
	}
	res.Verification = rep
	p.opts.metrics.SetVerification(len(rep.Comparisons), rep.Mismatches, rep.MaxRelError)

	log := p.logger.WithStage(StageVerify.String())
	if !rep.OK() {
		log.Error("exported graph disagrees with the engine",
			"samples", len(rep.Comparisons),
			"mismatches", rep.Mismatches,
			"max_rel_error", rep.MaxRelError,
		)
		return tierrors.NewModelStateError("verify export",
			tierrors.Wrapf(tierrors.ErrArtifactCorrupt, "%d of %d samples disagree", rep.Mismatches, len(rep.Comparisons))).
			WithArtifact(artifact.GraphFile).WithPath(res.Export.GraphPath)
	}
	log.Info("exported graph verified",
		"samples", len(rep.Comparisons),
		"max_rel_error", rep.MaxRelError,
	)
	return nil
}

func (p *Pipeline) report(ctx context.Context, res *Result) error {
	w := report.NewWriter(p.cfg.Paths.ReportDir, p.cfg.Report, p.logger.WithStage(StageReport.String()))
	paths, err := w.Write(ctx, res.Labeling)
	res.Reports = paths
	return err
}

func (p *Pipeline) publish(ctx context.Context, res *Result) error {
	log := p.logger.WithStage(StagePublish.String())
	if p.opts.publisher == nil {
		log.Debug("publishing disabled")
		return nil
	}

	manifest, err := res.Export.Manifest.Marshal()
	if err != nil {
		return tierrors.NewModelStateError("encode manifest", err).WithArtifact(artifact.ManifestFile)
	}
	n, err := p.opts.publisher.Publish(ctx, res.Labeling, manifest, p.opts.runID)
	if err != nil {
		return err
	}
	res.Published = n
	p.opts.metrics.SetPublished(n)
	return nil
}

// Files lists the artifacts and reports a run produced, plus the run log
// when logging to a file.
func (p *Pipeline) Files(res *Result) []string {
	files := []string{
		p.store.Path(artifact.ModelFile),
		p.store.Path(artifact.ScalerFile),
		p.store.Path(artifact.MetadataFile),
	}
	if res.Export.GraphPath != "" {
		files = append(files, res.Export.GraphPath, res.Export.ManifestPath)
	}
	files = append(files, res.Reports...)
	if path := p.logger.Path(); path != "" {
		files = append(files, path)
	}
	if p.cfg.Metrics.Textfile != "" {
		files = append(files, p.cfg.Metrics.Textfile)
	}
	return files
}
