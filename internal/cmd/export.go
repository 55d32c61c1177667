package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export the fitted model as an inference graph",
	Long: `Export reads the fitted model from the model directory and writes the
portable inference graph together with its manifest. Training already
exports once; use this to change precision without retraining.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("precision", "", "graph arithmetic: float32 or float64")
	_ = viper.BindPFlag("model.precision", exportCmd.Flags().Lookup("precision"))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	precision, err := export.ParsePrecision(cfg.Model.Precision)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	res, err := export.NewExporter(artifact.NewStore(cfg.Paths.ModelDir), precision, logger).Export(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Graph:     %s (%d bytes, %s)\n", res.GraphPath, res.Size, res.Manifest.Precision)
	fmt.Fprintf(out, "Manifest:  %s\n", res.ManifestPath)
	fmt.Fprintf(out, "Checksum:  %s\n", res.Manifest.GraphChecksum)
	return nil
}
