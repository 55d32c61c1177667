package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

var (
	highProfile   = []float64{95, 8.5, 90, 85}
	mediumProfile = []float64{75, 7, 70, 60}
	lowProfile    = []float64{50, 5.5, 40, 30}
)

// tieredMatrix returns n rows jittered around each of the three profiles.
func tieredMatrix(n int) [][]float64 {
	var X [][]float64
	for _, base := range [][]float64{highProfile, mediumProfile, lowProfile} {
		for i := range n {
			off := float64(i) - float64(n-1)/2
			X = append(X, []float64{
				base[0] + off*0.4,
				base[1] + off*0.05,
				base[2] - off*0.3,
				base[3] + off*0.5,
			})
		}
	}
	return X
}

func tieredTable(n int) features.Table {
	X := tieredMatrix(n)
	workers := make([]features.Worker, len(X))
	for i, row := range X {
		workers[i] = features.Worker{
			WorkerID:         fmt.Sprintf("w%02d", i),
			AttendanceRate:   row[0],
			AvgWorkHours:     row[1],
			PunctualityScore: row[2],
			ConsistencyScore: row[3],
		}
	}
	return features.Table{Workers: workers}
}

func randomMatrix(n int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	X := make([][]float64, n)
	for i := range X {
		X[i] = []float64{rng.Float64() * 100, rng.Float64() * 10, rng.Float64() * 100, rng.Float64() * 100}
	}
	return X
}

func TestFit_Validation(t *testing.T) {
	tests := []struct {
		name  string
		X     [][]float64
		cause error
	}{
		{"empty", nil, tierrors.ErrEmptyWorkers},
		{"fewer rows than clusters", [][]float64{highProfile, lowProfile}, tierrors.ErrInsufficientWorkers},
		{"fewer distinct rows than clusters", [][]float64{highProfile, highProfile, highProfile, lowProfile}, tierrors.ErrInsufficientWorkers},
		{"wrong width", [][]float64{{1, 2, 3}, highProfile, lowProfile}, tierrors.ErrFeatureShape},
		{"nan feature", [][]float64{highProfile, {50, math.NaN(), 40, 30}, mediumProfile}, tierrors.ErrNonFiniteFeature},
		{"inf feature", [][]float64{highProfile, mediumProfile, {50, 5, 40, math.Inf(1)}}, tierrors.ErrNonFiniteFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultConfig(), nil)
			_, err := e.Fit(tt.X)

			require.Error(t, err)
			require.ErrorIs(t, err, tt.cause)
			require.ErrorIs(t, err, tierrors.ErrInvalidInput)
			require.False(t, e.Trained(), "a failed Fit must leave the engine untrained")
		})
	}
}

func TestFit_NonFiniteNamesRowAndFeature(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	_, err := e.Fit([][]float64{highProfile, mediumProfile, {50, 5.5, math.NaN(), 30}})

	var verr *tierrors.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "punctuality_score", verr.Field)
	require.Equal(t, 2, verr.Row)
}

func TestPredict_BeforeFit(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	_, err := e.Predict([][]float64{highProfile})
	require.ErrorIs(t, err, tierrors.ErrModelNotTrained)

	var mse *tierrors.ModelStateError
	require.True(t, errors.As(err, &mse))

	_, err = e.State()
	require.ErrorIs(t, err, tierrors.ErrModelNotTrained)

	_, err = e.AssignLabels(tieredTable(2), []int{0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, tierrors.ErrModelNotTrained)
}

func TestFit_PredictReproducesTrainingLabels(t *testing.T) {
	tests := []struct {
		name  string
		X     [][]float64
		tiers []string
	}{
		{"tiered", tieredMatrix(10), []string{"Low", "Medium", "High"}},
		{"uniform random k=3", randomMatrix(200, 7), []string{"Low", "Medium", "High"}},
		{"uniform random k=5", randomMatrix(150, 11), []string{"E", "D", "C", "B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Tiers = tt.tiers
			e := NewEngine(cfg, nil)

			labels, err := e.Fit(tt.X)
			require.NoError(t, err)
			require.Len(t, labels, len(tt.X))

			predicted, err := e.Predict(tt.X)
			require.NoError(t, err)
			require.Equal(t, labels, predicted)

			for _, l := range labels {
				require.GreaterOrEqual(t, l, 0)
				require.Less(t, l, len(tt.tiers))
			}
		})
	}
}

func TestFit_IsDeterministic(t *testing.T) {
	X := randomMatrix(120, 3)

	a := NewEngine(DefaultConfig(), nil)
	b := NewEngine(DefaultConfig(), nil)
	la, err := a.Fit(X)
	require.NoError(t, err)
	lb, err := b.Fit(X)
	require.NoError(t, err)

	require.Equal(t, la, lb)
	sa, _ := a.State()
	sb, _ := b.State()
	require.Equal(t, sa.Centroids, sb.Centroids)
	require.Equal(t, sa.Inertia, sb.Inertia)
}

func TestFit_StateContents(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	_, err := e.Fit(tieredMatrix(8))
	require.NoError(t, err)

	s, err := e.State()
	require.NoError(t, err)
	require.Equal(t, 3, s.K())
	require.Len(t, s.Scaler.Mean, features.NumFeatures)
	require.Len(t, s.Scaler.Scale, features.NumFeatures)
	require.Positive(t, s.Iterations)
	require.GreaterOrEqual(t, s.Inertia, 0.0)
	require.Greater(t, s.Silhouette, 0.8, "well separated tiers should score a high silhouette")
	require.Equal(t, uint64(42), s.Seed)
	require.NoError(t, s.Validate())
}

func TestAssignLabels_ExampleVectors(t *testing.T) {
	table := tieredTable(10)
	e := NewEngine(DefaultConfig(), nil)

	clusters, err := e.FitTable(table)
	require.NoError(t, err)

	labeling, err := e.AssignLabels(table, clusters)
	require.NoError(t, err)
	require.Len(t, labeling.Workers, table.Len())

	predicted, err := e.Predict([][]float64{highProfile, lowProfile, mediumProfile})
	require.NoError(t, err)
	require.Equal(t, "High Performer", labeling.Mapping[predicted[0]])
	require.Equal(t, "Low Performer", labeling.Mapping[predicted[1]])
	require.Equal(t, "Medium Performer", labeling.Mapping[predicted[2]])

	counts := labeling.Counts()
	require.Equal(t, 10, counts["High Performer"])
	require.Equal(t, 10, counts["Medium Performer"])
	require.Equal(t, 10, counts["Low Performer"])

	s, _ := e.State()
	require.Equal(t, labeling.Mapping, s.Labels)
	require.Equal(t, "High Performer", s.Label(predicted[0]))
}

func TestAssignLabels_IsStable(t *testing.T) {
	table := tieredTable(6)
	e := NewEngine(DefaultConfig(), nil)
	clusters, err := e.FitTable(table)
	require.NoError(t, err)

	first, err := e.AssignLabels(table, clusters)
	require.NoError(t, err)
	second, err := e.AssignLabels(table, clusters)
	require.NoError(t, err)
	require.Equal(t, first.Mapping, second.Mapping)
	require.Equal(t, first.Scores, second.Scores)

	s, _ := e.State()
	w := DefaultConfig().Weights
	m1, _, err := LabelCentroids(s, w, DefaultConfig().Tiers)
	require.NoError(t, err)
	m2, _, err := LabelCentroids(s, w, DefaultConfig().Tiers)
	require.NoError(t, err)
	require.Equal(t, m1, m2)
	require.Equal(t, first.Mapping, m1)
}

func TestAssignLabels_ScoreIncreasesWithTier(t *testing.T) {
	table := tieredTable(5)
	e := NewEngine(DefaultConfig(), nil)
	clusters, err := e.FitTable(table)
	require.NoError(t, err)
	labeling, err := e.AssignLabels(table, clusters)
	require.NoError(t, err)

	rank := map[string]int{"Low Performer": 0, "Medium Performer": 1, "High Performer": 2}
	for a, la := range labeling.Mapping {
		for b, lb := range labeling.Mapping {
			if rank[la] < rank[lb] {
				require.Less(t, labeling.Scores[a], labeling.Scores[b])
			}
		}
	}
}

func TestAssignLabels_Mismatch(t *testing.T) {
	table := tieredTable(3)
	e := NewEngine(DefaultConfig(), nil)
	clusters, err := e.FitTable(table)
	require.NoError(t, err)

	_, err = e.AssignLabels(table, clusters[:2])
	require.ErrorIs(t, err, tierrors.ErrInvalidInput)

	bad := append([]int(nil), clusters...)
	bad[0] = 7
	_, err = e.AssignLabels(table, bad)
	require.ErrorIs(t, err, tierrors.ErrInvalidInput)
}

func TestFitTable_DistinctWorkerIDs(t *testing.T) {
	table := features.Table{Workers: []features.Worker{
		{WorkerID: "a", AttendanceRate: 90, AvgWorkHours: 8},
		{WorkerID: "a", AttendanceRate: 50, AvgWorkHours: 5},
		{WorkerID: "b", AttendanceRate: 70, AvgWorkHours: 6},
	}}

	_, err := NewEngine(DefaultConfig(), nil).FitTable(table)
	require.ErrorIs(t, err, tierrors.ErrInsufficientWorkers)
}

func TestRankClusters(t *testing.T) {
	w := DefaultConfig().Weights
	tiers := []string{"Low", "Medium", "High"}

	t.Run("ascending score order", func(t *testing.T) {
		means := [][]float64{mediumProfile, highProfile, lowProfile}
		mapping, scores, err := RankClusters(means, w, tiers)
		require.NoError(t, err)
		require.Equal(t, map[int]string{0: "Medium", 1: "High", 2: "Low"}, mapping)
		require.Less(t, scores[2], scores[0])
		require.Less(t, scores[0], scores[1])
	})

	t.Run("ties rank lower cluster id first", func(t *testing.T) {
		means := [][]float64{highProfile, lowProfile, lowProfile}
		mapping, _, err := RankClusters(means, w, tiers)
		require.NoError(t, err)
		require.Equal(t, "Low", mapping[1])
		require.Equal(t, "Medium", mapping[2])
		require.Equal(t, "High", mapping[0])
	})

	t.Run("cluster and tier count must match", func(t *testing.T) {
		_, _, err := RankClusters([][]float64{highProfile}, w, tiers)
		require.Error(t, err)
	})
}

func TestWeights_Score(t *testing.T) {
	w := Weights{AttendanceRate: 0.3, AvgWorkHours: 0.25, PunctualityScore: 0.25, ConsistencyScore: 0.2}

	require.InDelta(t, 0.3*95+0.25*100+0.25*90+0.2*85, w.Score(highProfile), 1e-9)
	require.InDelta(t, 0.3*50+0.25*(5.5/8*100)+0.25*40+0.2*30, w.Score(lowProfile), 1e-9)
	require.Len(t, w.Map(), features.NumFeatures)
}

func TestScaler(t *testing.T) {
	X := [][]float64{
		{1, 10, 5, 0},
		{3, 10, 7, 0},
		{5, 10, 9, 0},
	}
	s := FitScaler(X)

	require.InDeltaSlice(t, []float64{3, 10, 7, 0}, s.Mean, 1e-12)
	require.InDelta(t, math.Sqrt(8.0/3.0), s.Scale[0], 1e-12, "population standard deviation")
	require.Equal(t, 1.0, s.Scale[1], "zero variance column keeps scale 1")
	require.Equal(t, 1.0, s.Scale[3])

	z := s.Transform(X[2])
	require.InDeltaSlice(t, X[2], s.Inverse(z), 1e-12)
	require.NoError(t, s.Validate(4))
	require.Error(t, Scaler{Mean: []float64{0}, Scale: []float64{0}}.Validate(1))
}

func TestSilhouette(t *testing.T) {
	t.Run("separated clusters score near 1", func(t *testing.T) {
		X := [][]float64{{0, 0}, {0, 0.1}, {10, 10}, {10, 10.1}}
		score, ok := Silhouette(X, []int{0, 0, 1, 1})
		require.True(t, ok)
		require.Greater(t, score, 0.95)
	})

	t.Run("undefined for a single cluster", func(t *testing.T) {
		_, ok := Silhouette([][]float64{{0}, {1}}, []int{0, 0})
		require.False(t, ok)
	})

	t.Run("undefined when every point is alone", func(t *testing.T) {
		_, ok := Silhouette([][]float64{{0}, {1}}, []int{0, 1})
		require.False(t, ok)
	})
}

func TestRelocateEmpty(t *testing.T) {
	X := [][]float64{{0}, {1}, {10}}
	labels := []int{0, 0, 0}
	dists := []float64{4, 1, 81}
	sums := [][]float64{{11}, {0}}
	counts := []int{3, 0}

	relocateEmpty(X, labels, dists, sums, counts)

	require.Equal(t, []int{0, 0, 1}, labels)
	require.Equal(t, []int{2, 1}, counts)
	require.Equal(t, []float64{1}, sums[0])
	require.Equal(t, []float64{10}, sums[1])
}

func TestRestore(t *testing.T) {
	trained := NewEngine(DefaultConfig(), nil)
	X := tieredMatrix(4)
	labels, err := trained.Fit(X)
	require.NoError(t, err)
	state, err := trained.State()
	require.NoError(t, err)

	t.Run("restored engine predicts identically", func(t *testing.T) {
		e := NewEngine(DefaultConfig(), nil)
		require.NoError(t, e.Restore(state))
		require.True(t, e.Trained())

		got, err := e.Predict(X)
		require.NoError(t, err)
		require.Equal(t, labels, got)
	})

	t.Run("state is copied", func(t *testing.T) {
		e := NewEngine(DefaultConfig(), nil)
		s := state.Clone()
		require.NoError(t, e.Restore(s))
		s.Centroids[0][0] = 1e9

		got, _ := e.State()
		require.NotEqual(t, 1e9, got.Centroids[0][0])
	})

	t.Run("corrupt state is rejected", func(t *testing.T) {
		bad := state.Clone()
		bad.Centroids[1] = bad.Centroids[1][:2]

		e := NewEngine(DefaultConfig(), nil)
		err := e.Restore(bad)
		require.ErrorIs(t, err, tierrors.ErrArtifactCorrupt)
		require.False(t, e.Trained())
	})
}

func TestPredictWithDistance(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	_, err := e.Fit(tieredMatrix(5))
	require.NoError(t, err)
	s, _ := e.State()

	clusters, dists, err := e.PredictWithDistance([][]float64{highProfile})
	require.NoError(t, err)

	z := s.Scaler.Transform(highProfile)
	for c, centroid := range s.Centroids {
		require.LessOrEqual(t, dists[0], sqDist(z, centroid), "cluster %d is closer than the chosen one", c)
	}
	require.InDelta(t, sqDist(z, s.Centroids[clusters[0]]), dists[0], 1e-12)
}

func TestNearest_TiesPickFirst(t *testing.T) {
	c, d := nearest([]float64{0, 0}, [][]float64{{1, 0}, {0, 1}, {-1, 0}})
	require.Equal(t, 0, c)
	require.Equal(t, 1.0, d)
}
