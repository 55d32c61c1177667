package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/export"
	"github.com/Iron-Ham/workertiers/internal/features"
)

var predictCmd = &cobra.Command{
	Use:   "predict ATTENDANCE_RATE AVG_WORK_HOURS PUNCTUALITY CONSISTENCY",
	Short: "Assign a performance tier to one feature vector",
	Long: `Predict classifies a single worker from its four raw features using the
fitted model, or the exported graph with --graph.

Example:
  workertiers predict 95 8.5 90 85`,
	Args: cobra.ExactArgs(features.NumFeatures),
	RunE: runPredict,
}

var predictUseGraph bool

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().BoolVar(&predictUseGraph, "graph", false, "evaluate the exported graph instead of the fitted model")
}

func parseFeatures(args []string) ([features.NumFeatures]float64, error) {
	var input [features.NumFeatures]float64
	names := features.FeatureNames()
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return input, tierrors.NewValidationError("feature is not a number").
				WithField(names[i]).WithValue(arg).WithCause(tierrors.ErrInvalidInput)
		}
		input[i] = v
	}
	return input, nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	input, err := parseFeatures(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := artifact.NewStore(cfg.Paths.ModelDir)

	var (
		c     int
		dist  float64
		label string
	)
	if predictUseGraph {
		g, manifest, err := export.Load(store)
		if err != nil {
			return err
		}
		interp, err := export.NewInterpreter(g)
		if err != nil {
			return err
		}
		if c, dist, err = interp.Run(input); err != nil {
			return err
		}
		label = manifest.PerformanceMapping[strconv.Itoa(c)]
	} else {
		state, _, err := store.LoadModel()
		if err != nil {
			return err
		}
		engine := cluster.NewEngine(cluster.ConfigFrom(cfg.Model), nil)
		if err := engine.Restore(state); err != nil {
			return err
		}
		clusters, dists, err := engine.PredictWithDistance([][]float64{input[:]})
		if err != nil {
			return err
		}
		c, dist, label = clusters[0], dists[0], state.Label(clusters[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cluster:     %d\n", c)
	fmt.Fprintf(out, "Performance: %s\n", label)
	fmt.Fprintf(out, "Distance:    %.4f\n", dist)
	return nil
}
