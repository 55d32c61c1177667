package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/workertiers/internal/config"
	"github.com/Iron-Ham/workertiers/internal/logging"
	"github.com/Iron-Ham/workertiers/internal/pipeline"
	"github.com/Iron-Ham/workertiers/internal/publish"
	"github.com/Iron-Ham/workertiers/internal/report"
	"github.com/Iron-Ham/workertiers/internal/source"
	"github.com/Iron-Ham/workertiers/internal/telemetry"
	"github.com/Iron-Ham/workertiers/internal/watch"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the tier model and write all artifacts",
	Long: `Train loads users and attendance from the configured source, derives the
four performance features per worker, fits k-means, ranks the clusters into
tiers and writes the model, the exported graph and the reports.

The exported graph is checked against the engine before the run succeeds.
Results are published to Redis when publish.redis_addr is set.

With --watch and the json source, train runs once and then again every
time the snapshot file changes, until interrupted.`,
	RunE: runTrain,
}

var (
	trainStart     string
	trainEnd       string
	trainSource    string
	trainNoReports bool
	trainNoPublish bool
	trainRunID     string
	trainWatch     bool
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainStart, "start", "", "analysis start date (YYYY-MM-DD)")
	trainCmd.Flags().StringVar(&trainEnd, "end", "", "analysis end date (YYYY-MM-DD)")
	trainCmd.Flags().StringVar(&trainSource, "source", "", "source kind override (json, postgres, firestore)")
	trainCmd.Flags().BoolVar(&trainNoReports, "no-reports", false, "skip CSV, workbook and visualization output")
	trainCmd.Flags().BoolVar(&trainNoPublish, "no-publish", false, "skip publishing even when Redis is configured")
	trainCmd.Flags().StringVar(&trainRunID, "run-id", "", "run identifier (default: random UUID)")
	trainCmd.Flags().BoolVarP(&trainWatch, "watch", "w", false, "retrain whenever the json snapshot changes")

	_ = viper.BindPFlag("analysis.start_date", trainCmd.Flags().Lookup("start"))
	_ = viper.BindPFlag("analysis.end_date", trainCmd.Flags().Lookup("end"))
	_ = viper.BindPFlag("source.kind", trainCmd.Flags().Lookup("source"))
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if trainNoReports {
		cfg.Report = config.ReportConfig{}
	}
	if trainWatch && cfg.Source.Kind != source.KindJSON {
		return fmt.Errorf("--watch requires the %s source, got %q", source.KindJSON, cfg.Source.Kind)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	var pub *publish.Publisher
	if cfg.Publish.Enabled() && !trainNoPublish {
		p, client, err := publish.Open(ctx, cfg.Publish, logger)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		pub = p
	}

	t := &trainer{cfg: cfg, logger: logger, publisher: pub, cmd: cmd}
	err = t.run(ctx)
	if !trainWatch {
		return err
	}
	if err != nil {
		logger.Error("initial run failed", "error", err.Error())
	}

	w, err := watch.New(watch.DefaultDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(cfg.Source.SnapshotPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Source.SnapshotPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s for changes (Ctrl+C to stop)\n", cfg.Source.SnapshotPath)
	return w.Run(ctx, t.run)
}

// trainer runs one pipeline per call; a Pipeline is single-use.
type trainer struct {
	cfg       *config.Config
	logger    *logging.Logger
	publisher *publish.Publisher
	cmd       *cobra.Command
	runs      int
}

func (t *trainer) run(ctx context.Context) error {
	t.runs++

	src, err := source.Open(ctx, t.cfg.Source, t.cfg.Analysis.Location(), t.logger)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	opts := []pipeline.Option{
		pipeline.WithLogger(t.logger),
		pipeline.WithMetrics(telemetry.New()),
	}
	// A fixed run id only applies to the first run
	if trainRunID != "" && t.runs == 1 {
		opts = append(opts, pipeline.WithRunID(trainRunID))
	}
	if t.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(t.publisher))
	}

	p, err := pipeline.New(*t.cfg, src, opts...)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := t.cmd.OutOrStdout()
	if err := report.WriteSummary(out, report.Summarize(res.Labeling, p.Files(res))); err != nil {
		return err
	}
	if res.Published > 0 {
		fmt.Fprintf(out, "\nPublished %d workers under %q\n", res.Published, t.cfg.Publish.KeyPrefix)
	}
	return nil
}
