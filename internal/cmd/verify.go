package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/export"
	"github.com/Iron-Ham/workertiers/internal/util"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the exported graph against the fitted model",
	Long: `Verify runs the reference vectors plus random samples through both the
fitted model and the exported graph and fails when any cluster or distance
disagrees beyond tolerance.`,
	RunE: runVerify,
}

var verifyVerbose bool

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Int("samples", 0, "number of random samples in addition to the reference vectors")
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "print every comparison")
	_ = viper.BindPFlag("model.verify_samples", verifyCmd.Flags().Lookup("samples"))
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := artifact.NewStore(cfg.Paths.ModelDir)
	state, _, err := store.LoadModel()
	if err != nil {
		return err
	}
	g, manifest, err := export.Load(store)
	if err != nil {
		return err
	}

	rep, err := export.Verify(state, g, export.Samples(cfg.Model.VerifySamples, cfg.Model.Seed))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Graph %s (%s, checksum %s)\n", store.Path(artifact.GraphFile), manifest.Precision, manifest.GraphChecksum)
	for i, c := range rep.Comparisons {
		if verifyVerbose || c.Mismatch() {
			printComparison(out, i, c)
		}
	}
	fmt.Fprintf(out, "Samples: %d  Mismatches: %d  Max relative error: %.2e\n",
		len(rep.Comparisons), rep.Mismatches, rep.MaxRelError)

	if !rep.OK() {
		return tierrors.NewModelStateError("verify export",
			tierrors.Wrapf(tierrors.ErrArtifactCorrupt, "%d of %d samples disagree", rep.Mismatches, len(rep.Comparisons))).
			WithArtifact(artifact.GraphFile).WithPath(store.Path(artifact.GraphFile))
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func printComparison(w io.Writer, i int, c export.Comparison) {
	status := "ok"
	switch {
	case c.Mismatch():
		status = "MISMATCH"
	case c.Tie:
		status = "tie"
	}
	input := fmt.Sprintf("[%.2f %.2f %.2f %.2f]", c.Input[0], c.Input[1], c.Input[2], c.Input[3])
	fmt.Fprintf(w, "%4d %s engine=%d (%.6f) graph=%d (%.6f) %s\n",
		i, util.PadRight(input, 32), c.EngineCluster, c.EngineDistance, c.GraphCluster, c.GraphDistance, status)
}
