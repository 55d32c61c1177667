package cluster

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// lloydResult is the outcome of one k-means restart.
type lloydResult struct {
	centroids  [][]float64
	labels     []int
	inertia    float64
	iterations int
}

// sqDist returns the squared Euclidean distance between a and b.
func sqDist(a, b []float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff)
}

// nearest returns the index of the closest centroid and the squared distance
// to it. Ties resolve to the lowest index.
func nearest(x []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(x, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// scaledTolerance converts a relative tolerance into an absolute bound on
// the total squared centroid shift, using the mean column variance of X.
func scaledTolerance(X [][]float64, tol float64) float64 {
	if tol == 0 || len(X) == 0 {
		return 0
	}
	dims := len(X[0])
	col := make([]float64, len(X))
	var sum float64
	for j := 0; j < dims; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		sum += std * std
	}
	return sum / float64(dims) * tol
}

// seedPlusPlus picks k initial centroids with greedy k-means++: each new
// centroid is the best of several candidates sampled proportionally to
// their squared distance from the nearest existing centroid.
func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	trials := 2 + int(math.Log(float64(k)))

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(X[rng.IntN(n)]))

	closest := make([]float64, n)
	for i, x := range X {
		closest[i] = sqDist(x, centroids[0])
	}
	potential := floats.Sum(closest)

	for len(centroids) < k {
		bestCandidate, bestPotential := -1, math.Inf(1)
		var bestClosest []float64

		for t := 0; t < trials; t++ {
			candidate := sampleWeighted(closest, potential, rng)
			trial := make([]float64, n)
			for i, x := range X {
				trial[i] = math.Min(closest[i], sqDist(x, X[candidate]))
			}
			if p := floats.Sum(trial); p < bestPotential {
				bestCandidate, bestPotential, bestClosest = candidate, p, trial
			}
		}

		centroids = append(centroids, clone(X[bestCandidate]))
		closest, potential = bestClosest, bestPotential
	}
	return centroids
}

// sampleWeighted draws an index with probability weights[i]/total. When all
// weights are zero it draws uniformly.
func sampleWeighted(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	r := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

// lloyd runs Lloyd iterations from the given initial centroids.
func lloyd(X [][]float64, centroids [][]float64, maxIter int, tol float64) lloydResult {
	n, k := len(X), len(centroids)
	dims := len(X[0])
	labels := make([]int, n)
	dists := make([]float64, n)

	iterations := 0
	for iter := 0; iter < maxIter; iter++ {
		iterations = iter + 1

		changed := iter == 0
		for i, x := range X {
			c, d := nearest(x, centroids)
			if c != labels[i] {
				changed = true
			}
			labels[i], dists[i] = c, d
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, x := range X {
			floats.Add(next[labels[i]], x)
			counts[labels[i]]++
		}
		relocateEmpty(X, labels, dists, next, counts)
		for c := range next {
			if counts[c] == 0 {
				next[c] = clone(centroids[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range next {
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next

		if !changed || shift <= tol {
			break
		}
	}

	// Final assignment so labels always agree with the returned centroids.
	var inertia float64
	for i, x := range X {
		c, d := nearest(x, centroids)
		labels[i] = c
		inertia += d
	}

	return lloydResult{centroids: centroids, labels: labels, inertia: inertia, iterations: iterations}
}

// relocateEmpty moves each empty cluster onto the point farthest from its
// current centroid, taking that point out of its previous cluster. sums and
// counts are updated in place.
func relocateEmpty(X [][]float64, labels []int, dists []float64, sums [][]float64, counts []int) {
	var taken map[int]bool
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		if taken == nil {
			taken = make(map[int]bool)
		}

		far, farDist := -1, -1.0
		for i, d := range dists {
			if taken[i] || counts[labels[i]] <= 1 {
				continue
			}
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}

		taken[far] = true
		old := labels[far]
		floats.Sub(sums[old], X[far])
		counts[old]--
		copy(sums[c], X[far])
		counts[c] = 1
		labels[far] = c
		dists[far] = 0
	}
}

// kmeans runs nInit seeded restarts and keeps the lowest-inertia result.
func kmeans(X [][]float64, k, nInit, maxIter int, tol float64, seed uint64) lloydResult {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	absTol := scaledTolerance(X, tol)

	var best lloydResult
	for run := 0; run < nInit; run++ {
		res := lloyd(X, seedPlusPlus(X, k, rng), maxIter, absTol)
		if run == 0 || res.inertia < best.inertia {
			best = res
		}
	}
	return best
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
