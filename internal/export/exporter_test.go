package export

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/testutil"
)

func savedStore(t *testing.T, state cluster.State) *artifact.Store {
	t.Helper()
	store := artifact.NewStore(t.TempDir())
	meta := artifact.NewMetadata(state, cluster.DefaultConfig().Weights, "run-7", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveModel(state, meta))
	return store
}

func TestExporter_Export(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	store := savedStore(t, state)

	res, err := NewExporter(store, Float32, nil).Export(context.Background())
	require.NoError(t, err)

	require.FileExists(t, res.GraphPath)
	require.FileExists(t, res.ManifestPath)
	require.Equal(t, store.Path(artifact.GraphFile), res.Manifest.ModelPath)

	m := res.Manifest
	require.Equal(t, artifact.ModelType, m.ModelType)
	require.Equal(t, "run-7", m.RunID)
	require.Equal(t, state.StringLabels(), m.PerformanceMapping)
	require.Equal(t, []int{1, 4}, m.InputShape)
	require.Equal(t, []int{1}, m.OutputShape)
	require.Equal(t, []string{"input_features"}, m.InputNames)
	require.Equal(t, []string{"cluster", "distance"}, m.OutputNames)
	require.Equal(t, []string{"attendance_rate", "avg_work_hours", "punctuality_score", "consistency_score"}, m.FeatureOrder)
	require.Equal(t, state.Scaler.Mean, m.ScalerParams.Mean)
	require.Equal(t, state.Centroids, m.ClusterCenters)
	require.Equal(t, "float32", m.Precision)
	require.Equal(t, FormatVersion, m.FormatVersion)

	g, loaded, err := Load(store)
	require.NoError(t, err)
	require.Equal(t, res.Graph, g)
	require.Equal(t, m.GraphChecksum, loaded.GraphChecksum)
}

func TestExporter_ManifestJSON(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	store := savedStore(t, state)

	_, err := NewExporter(store, Float64, nil).Export(context.Background())
	require.NoError(t, err)

	raw, err := store.ReadFile(artifact.ManifestFile)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{
		"model_type", "n_clusters", "cluster_labels", "feature_weights", "created_at",
		"model_path", "input_shape", "scaler_params", "cluster_centers",
		"performance_mapping", "graph_checksum", "format_version", "precision",
	} {
		require.Contains(t, doc, key)
	}
	require.NotContains(t, doc, "Metadata")
}

func TestExporter_MissingModel(t *testing.T) {
	store := artifact.NewStore(t.TempDir())

	_, err := NewExporter(store, Float32, nil).Export(context.Background())
	require.ErrorIs(t, err, tierrors.ErrArtifactMissing)
	require.False(t, store.Exists(artifact.GraphFile))
}

func TestExporter_UnlabeledModel(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	state.Labels = nil
	state.Scores = nil
	store := savedStore(t, state)

	_, err := NewExporter(store, Float32, nil).Export(context.Background())
	require.ErrorIs(t, err, tierrors.ErrArtifactCorrupt)
}

func TestExporter_Canceled(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	store := savedStore(t, state)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExporter(store, Float32, nil).Export(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, store.Exists(artifact.GraphFile))
}

func TestLoad_ChecksumMismatch(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	store := savedStore(t, state)

	res, err := NewExporter(store, Float32, nil).Export(context.Background())
	require.NoError(t, err)

	tampered := Encode(res.Graph)
	tampered[len(tampered)-1] ^= 0xff
	require.NoError(t, artifact.WriteFileAtomic(res.GraphPath, tampered, 0644))

	_, _, err = Load(store)
	require.ErrorIs(t, err, tierrors.ErrArtifactCorrupt)
}

func TestExporter_Reexport(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	store := savedStore(t, state)
	exporter := NewExporter(store, Float32, nil)

	first, err := exporter.Export(context.Background())
	require.NoError(t, err)
	second, err := exporter.Export(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.Manifest.GraphChecksum, second.Manifest.GraphChecksum)
}
