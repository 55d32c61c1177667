package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Silhouette returns the mean silhouette coefficient of labels over X using
// Euclidean distance. ok is false when the score is undefined, i.e. fewer
// than two clusters are populated or every point is its own cluster.
func Silhouette(X [][]float64, labels []int) (float64, bool) {
	n := len(X)
	if n == 0 || len(labels) != n {
		return 0, false
	}

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) >= n {
		return 0, false
	}

	var total float64
	sums := make(map[int]float64, len(sizes))
	for i := range X {
		clear(sums)
		for j := range X {
			if i == j {
				continue
			}
			sums[labels[j]] += floats.Distance(X[i], X[j], 2)
		}

		own := labels[i]
		if sizes[own] == 1 {
			continue // singleton clusters score 0
		}
		a := sums[own] / float64(sizes[own]-1)

		b := math.Inf(1)
		for c, size := range sizes {
			if c == own {
				continue
			}
			b = math.Min(b, sums[c]/float64(size))
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n), true
}
