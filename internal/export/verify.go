package export

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// DistanceTolerance is the relative tolerance allowed between engine and
// graph distances.
const DistanceTolerance = 1e-4

// ReferenceSamples are the hand-picked vectors every verification includes.
var ReferenceSamples = [][features.NumFeatures]float64{
	{95.0, 8.5, 90.0, 85.0},
	{75.0, 7.0, 70.0, 60.0},
	{50.0, 5.5, 40.0, 30.0},
	{85.0, 8.0, 80.0, 75.0},
	{65.0, 6.5, 60.0, 55.0},
}

// Comparison is the engine and graph output for one sample.
type Comparison struct {
	Input          [features.NumFeatures]float64
	EngineCluster  int
	EngineDistance float64
	GraphCluster   int
	GraphDistance  float64
	// Tie is set when the clusters differ only because two centroids are
	// equidistant within tolerance.
	Tie bool
}

// Mismatch reports whether the graph disagrees with the engine.
func (c Comparison) Mismatch() bool {
	if c.EngineCluster != c.GraphCluster && !c.Tie {
		return true
	}
	return !withinTolerance(c.EngineDistance, c.GraphDistance)
}

// Report is the outcome of a verification run.
type Report struct {
	Comparisons []Comparison
	Mismatches  int
	MaxRelError float64
}

// OK reports whether every sample agreed.
func (r Report) OK() bool { return r.Mismatches == 0 }

// Verify runs every sample through the engine and the graph and compares
// cluster and distance.
func Verify(state cluster.State, g *Graph, samples [][features.NumFeatures]float64) (Report, error) {
	engine := cluster.NewEngine(cluster.Config{}, nil)
	if err := engine.Restore(state); err != nil {
		return Report{}, err
	}
	interp, err := NewInterpreter(g)
	if err != nil {
		return Report{}, err
	}

	X := make([][]float64, len(samples))
	for i := range samples {
		X[i] = samples[i][:]
	}
	clusters, dists, err := engine.PredictWithDistance(X)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for i, sample := range samples {
		gc, gd, err := interp.Run(sample)
		if err != nil {
			return Report{}, err
		}
		cmp := Comparison{
			Input:          sample,
			EngineCluster:  clusters[i],
			EngineDistance: dists[i],
			GraphCluster:   gc,
			GraphDistance:  gd,
		}
		if gc != clusters[i] && gc >= 0 && gc < state.K() {
			z := state.Scaler.Transform(X[i])
			cmp.Tie = withinTolerance(dists[i], sqDistance(z, state.Centroids[gc]))
		}
		if cmp.Mismatch() {
			report.Mismatches++
		}
		report.MaxRelError = math.Max(report.MaxRelError, relError(dists[i], gd))
		report.Comparisons = append(report.Comparisons, cmp)
	}
	return report, nil
}

// Samples returns the reference vectors followed by n random vectors drawn
// from the plausible feature ranges.
func Samples(n int, seed uint64) [][features.NumFeatures]float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x5deece66d))
	out := make([][features.NumFeatures]float64, 0, len(ReferenceSamples)+n)
	out = append(out, ReferenceSamples...)
	for range n {
		out = append(out, [features.NumFeatures]float64{
			rng.Float64() * 100,
			rng.Float64() * 12,
			rng.Float64() * 100,
			rng.Float64() * 100,
		})
	}
	return out
}

func sqDistance(a, b []float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff)
}

// relError is |a-b| relative to max(|a|, 1), so distances near zero are
// compared absolutely.
func relError(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(a), 1)
}

func withinTolerance(a, b float64) bool {
	return relError(a, b) <= DistanceTolerance
}
