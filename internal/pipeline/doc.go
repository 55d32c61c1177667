// Package pipeline runs one training run end to end.
//
// A run executes its stages synchronously in a fixed order:
//
//	load → extract → train → label → persist → export → verify → report → publish
//
// Each stage reads the outputs of the earlier stages from the run [Result].
// The first stage to fail stops the run and is reported as an
// [errors.PipelineError] naming the stage. Stage durations, dataset sizes,
// cluster sizes and fit quality are recorded in a [telemetry.Metrics]
// registry, which is written to the configured textfile whether the run
// succeeds or not.
//
// # Usage
//
//	src, _ := source.Open(ctx, cfg.Source, cfg.Analysis.Location(), logger)
//	defer src.Close()
//
//	p, _ := pipeline.New(*cfg, src,
//	    pipeline.WithLogger(logger),
//	    pipeline.WithMetrics(telemetry.New()),
//	)
//	result, err := p.Run(ctx)
package pipeline
