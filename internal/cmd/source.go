package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workertiers/internal/source"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Inspect the configured attendance source",
}

var sourceDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Copy users and in-range attendance into a JSON snapshot",
	Long: `Dump reads users and the attendance of the analysis range from the
configured source and writes them as a snapshot that the json source can
train from offline. The most-recent-records fallback applies as in train.`,
	RunE: runSourceDump,
}

var sourceDumpOut string

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceDumpCmd)

	sourceDumpCmd.Flags().StringVarP(&sourceDumpOut, "out", "o", "attendance.json", "snapshot file to write")
}

func runSourceDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx := cmd.Context()
	src, err := source.Open(ctx, cfg.Source, cfg.Analysis.Location(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	snap, err := source.Dump(ctx, src, source.RangeFrom(cfg.Analysis), cfg.Source.FallbackLimit, time.Now())
	if err != nil {
		return err
	}
	if err := source.WriteSnapshot(sourceDumpOut, snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d users and %d attendance records from %s to %s\n",
		len(snap.Users), len(snap.Attendance), snap.Source, sourceDumpOut)
	return nil
}
