package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/Iron-Ham/workertiers/internal/features"
)

// Weights score a cluster's mean raw features.
type Weights struct {
	AttendanceRate   float64 `json:"attendance_rate"`
	AvgWorkHours     float64 `json:"avg_work_hours"`
	PunctualityScore float64 `json:"punctuality_score"`
	ConsistencyScore float64 `json:"consistency_score"`
}

// FullDayHours is the shift length at which the hours component saturates.
const FullDayHours = 8.0

// Score returns the weighted performance score of a raw feature vector.
// Work hours are mapped to a percentage of FullDayHours, capped at 100.
func (w Weights) Score(v []float64) float64 {
	hoursPct := math.Min(v[1]/FullDayHours*100, 100)
	return v[0]*w.AttendanceRate +
		hoursPct*w.AvgWorkHours +
		v[2]*w.PunctualityScore +
		v[3]*w.ConsistencyScore
}

// Map returns the weights keyed by feature name.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		features.Names[0]: w.AttendanceRate,
		features.Names[1]: w.AvgWorkHours,
		features.Names[2]: w.PunctualityScore,
		features.Names[3]: w.ConsistencyScore,
	}
}

// Assignment ties a worker to a cluster and its tier label.
type Assignment struct {
	WorkerID string `json:"worker_id"`
	Cluster  int    `json:"cluster"`
	Label    string `json:"performance_label"`
}

// LabeledWorker is a feature row with its cluster and tier.
type LabeledWorker struct {
	features.Worker
	Cluster int    `json:"cluster"`
	Label   string `json:"performance_label"`
}

// Labeling is the result of ranking clusters into tiers.
type Labeling struct {
	Workers []LabeledWorker
	// Mapping is cluster id → tier label.
	Mapping map[int]string
	// Scores is cluster id → weighted score.
	Scores map[int]float64
	// Means is the raw feature mean of each cluster, indexed by cluster id.
	Means [][]float64
}

// Assignments returns the bare worker → cluster → label triples.
func (l Labeling) Assignments() []Assignment {
	out := make([]Assignment, len(l.Workers))
	for i, w := range l.Workers {
		out[i] = Assignment{WorkerID: w.WorkerID, Cluster: w.Cluster, Label: w.Label}
	}
	return out
}

// Counts returns the number of workers per tier label.
func (l Labeling) Counts() map[string]int {
	counts := make(map[string]int, len(l.Mapping))
	for _, label := range l.Mapping {
		counts[label] = 0
	}
	for _, w := range l.Workers {
		counts[w.Label]++
	}
	return counts
}

// RankClusters scores each cluster mean and assigns tiers in ascending score
// order, so tiers[0] goes to the lowest score. Ties rank the lower cluster id
// first. len(means) must equal len(tiers).
func RankClusters(means [][]float64, w Weights, tiers []string) (map[int]string, map[int]float64, error) {
	if len(means) != len(tiers) {
		return nil, nil, fmt.Errorf("have %d clusters but %d tier labels", len(means), len(tiers))
	}

	scores := make(map[int]float64, len(means))
	order := make([]int, len(means))
	for c, m := range means {
		scores[c] = w.Score(m)
		order[c] = c
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] < scores[order[j]]
	})

	mapping := make(map[int]string, len(means))
	for rank, c := range order {
		mapping[c] = tiers[rank]
	}
	return mapping, scores, nil
}

// clusterMeans averages the raw features of the rows in each cluster. An
// empty cluster falls back to its centroid mapped back to raw units.
func clusterMeans(X [][]float64, labels []int, centroids [][]float64, scaler Scaler) [][]float64 {
	k := len(centroids)
	dims := scaler.Dims()
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, row := range X {
		c := labels[i]
		for j, v := range row {
			sums[c][j] += v
		}
		counts[c]++
	}

	means := make([][]float64, k)
	for c := range sums {
		if counts[c] == 0 {
			means[c] = scaler.Inverse(centroids[c])
			continue
		}
		means[c] = make([]float64, dims)
		for j := range sums[c] {
			means[c][j] = sums[c][j] / float64(counts[c])
		}
	}
	return means
}
