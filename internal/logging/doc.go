// Package logging provides structured logging for training runs.
//
// Every run writes JSON lines to {log_dir}/training.log through a size-based
// [RotatingWriter] and can mirror the same records as human-readable text to
// a console writer (usually stderr). Child loggers created with [Logger.WithRun]
// and [Logger.WithStage] stamp run_id and stage on every record so a single
// run can be followed through the log with a filter such as:
//
//	jq 'select(.run_id == "…")' logs/training.log
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{
//	    Dir:      "logs",
//	    Level:    logging.LevelInfo,
//	    Rotation: logging.DefaultRotationConfig(),
//	    Console:  os.Stderr,
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun(runID)
//	runLog.WithStage("train").Info("k-means converged", "inertia", 12.7)
//
// Rotated files are named training.log.1 (newest) through training.log.N.
// With compression enabled they become training.log.1.gz and so on.
//
// For tests, use [NopLogger] to discard all output.
package logging
