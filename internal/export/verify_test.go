package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workertiers/internal/features"
	"github.com/Iron-Ham/workertiers/internal/testutil"
)

func TestVerify_RandomSamples(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	samples := Samples(100, 11)

	for _, p := range []Precision{Float32, Float64} {
		t.Run(p.String(), func(t *testing.T) {
			g, err := BuildGraph(state, p)
			require.NoError(t, err)

			report, err := Verify(state, g, samples)
			require.NoError(t, err)
			require.Len(t, report.Comparisons, len(ReferenceSamples)+100)
			require.True(t, report.OK(), "mismatches: %d", report.Mismatches)
			require.LessOrEqual(t, report.MaxRelError, DistanceTolerance)
		})
	}
}

func TestVerify_DetectsTamperedGraph(t *testing.T) {
	state, _ := testutil.TrainedState(t)
	g, err := BuildGraph(state, Float64)
	require.NoError(t, err)

	// Reverse the centroid rows so every cluster id is wrong.
	for i, c := range g.Constants {
		if c.Name != CentersConst {
			continue
		}
		d := features.NumFeatures
		k := len(c.Data) / d
		swapped := make([]float64, len(c.Data))
		for r := range k {
			copy(swapped[r*d:(r+1)*d], c.Data[(k-1-r)*d:(k-r)*d])
		}
		g.Constants[i].Data = swapped
	}

	report, err := Verify(state, g, Samples(0, 1))
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Positive(t, report.Mismatches)
}

func TestSamples(t *testing.T) {
	a := Samples(20, 5)
	b := Samples(20, 5)

	require.Len(t, a, len(ReferenceSamples)+20)
	require.Equal(t, a, b)
	require.Equal(t, ReferenceSamples, a[:len(ReferenceSamples)])
	for _, s := range a {
		require.GreaterOrEqual(t, s[0], 0.0)
		require.LessOrEqual(t, s[0], 100.0)
		require.LessOrEqual(t, s[1], 12.0)
	}
	require.NotEqual(t, a, Samples(20, 6))
}

func TestComparisonMismatch(t *testing.T) {
	tests := []struct {
		name string
		cmp  Comparison
		want bool
	}{
		{"agree", Comparison{EngineCluster: 1, GraphCluster: 1, EngineDistance: 2, GraphDistance: 2.00001}, false},
		{"cluster differs", Comparison{EngineCluster: 1, GraphCluster: 2, EngineDistance: 2, GraphDistance: 2}, true},
		{"tie", Comparison{EngineCluster: 1, GraphCluster: 2, EngineDistance: 2, GraphDistance: 2, Tie: true}, false},
		{"distance off", Comparison{EngineCluster: 0, GraphCluster: 0, EngineDistance: 2, GraphDistance: 2.1}, true},
		{"near zero", Comparison{EngineCluster: 0, GraphCluster: 0, EngineDistance: 0, GraphDistance: 1e-6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.cmp.Mismatch())
		})
	}
}
