// Package cluster fits and applies the k-means model that groups workers
// into performance tiers.
//
// Clustering and labeling are separate steps. Fit assigns every worker a
// cluster id that carries no meaning of its own; AssignLabels then ranks
// clusters by a weighted score of their mean features and maps them onto
// the configured tier names.
package cluster

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/Iron-Ham/workertiers/internal/config"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// Config holds the clustering parameters. K is len(Tiers).
type Config struct {
	Tiers     []string
	Seed      uint64
	NInit     int
	MaxIter   int
	Tolerance float64
	Weights   Weights
}

// ConfigFrom builds a clustering Config from the model settings.
func ConfigFrom(m config.ModelConfig) Config {
	return Config{
		Tiers:     append([]string(nil), m.Tiers...),
		Seed:      m.Seed,
		NInit:     m.NInit,
		MaxIter:   m.MaxIter,
		Tolerance: m.Tolerance,
		Weights: Weights{
			AttendanceRate:   m.Weights.AttendanceRate,
			AvgWorkHours:     m.Weights.AvgWorkHours,
			PunctualityScore: m.Weights.PunctualityScore,
			ConsistencyScore: m.Weights.ConsistencyScore,
		},
	}
}

// DefaultConfig returns the clustering defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default().Model)
}

// K returns the number of clusters.
func (c Config) K() int { return len(c.Tiers) }

// State is everything a trained engine knows. It is what gets persisted
// and what the exporter turns into an inference graph.
type State struct {
	// Centroids live in standardized feature space, K rows of NumFeatures.
	Centroids  [][]float64     `json:"centroids"`
	Scaler     Scaler          `json:"scaler"`
	Labels     map[int]string  `json:"labels,omitempty"`
	Scores     map[int]float64 `json:"scores,omitempty"`
	Inertia    float64         `json:"inertia"`
	Iterations int             `json:"iterations"`
	Silhouette float64         `json:"silhouette"`
	Seed       uint64          `json:"seed"`
}

// K returns the number of centroids.
func (s State) K() int { return len(s.Centroids) }

// Label returns the tier of a cluster, or "" when labels are not assigned.
func (s State) Label(cluster int) string { return s.Labels[cluster] }

// StringLabels returns the label mapping keyed by decimal cluster id.
func (s State) StringLabels() map[string]string {
	out := make(map[string]string, len(s.Labels))
	for c, l := range s.Labels {
		out[strconv.Itoa(c)] = l
	}
	return out
}

// Validate checks the state is internally consistent.
func (s State) Validate() error {
	if len(s.Centroids) == 0 {
		return fmt.Errorf("state has no centroids")
	}
	if err := s.Scaler.Validate(features.NumFeatures); err != nil {
		return err
	}
	for c, centroid := range s.Centroids {
		if len(centroid) != features.NumFeatures {
			return fmt.Errorf("centroid %d has %d features, want %d", c, len(centroid), features.NumFeatures)
		}
		for _, v := range centroid {
			if !finite(v) {
				return fmt.Errorf("centroid %d is not finite", c)
			}
		}
	}
	for c := range s.Labels {
		if c < 0 || c >= len(s.Centroids) {
			return fmt.Errorf("label for unknown cluster %d", c)
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Centroids = make([][]float64, len(s.Centroids))
	for i, c := range s.Centroids {
		out.Centroids[i] = clone(c)
	}
	out.Scaler = Scaler{Mean: clone(s.Scaler.Mean), Scale: clone(s.Scaler.Scale)}
	out.Labels = maps.Clone(s.Labels)
	out.Scores = maps.Clone(s.Scores)
	return out
}

// Engine fits and applies the clustering model. It is Untrained until Fit
// or Restore succeeds. An Engine is not safe for concurrent Fit calls.
type Engine struct {
	cfg     Config
	logger  *logging.Logger
	state   State
	trained bool
}

// NewEngine creates an untrained Engine. A nil logger discards output.
func NewEngine(cfg Config, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	cfg.Tiers = append([]string(nil), cfg.Tiers...)
	return &Engine{cfg: cfg, logger: logger}
}

// Trained reports whether the engine holds a fitted model.
func (e *Engine) Trained() bool { return e.trained }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns a copy of the fitted state.
func (e *Engine) State() (State, error) {
	if !e.trained {
		return State{}, notTrained("read state")
	}
	return e.state.Clone(), nil
}

// Restore loads a previously fitted state and marks the engine trained.
func (e *Engine) Restore(s State) error {
	if err := s.Validate(); err != nil {
		return tierrors.NewModelStateError("restore state", tierrors.Wrap(tierrors.ErrArtifactCorrupt, err.Error()))
	}
	e.state = s.Clone()
	e.trained = true
	return nil
}

func notTrained(op string) error {
	return tierrors.NewModelStateError(op, tierrors.ErrModelNotTrained)
}

// validateMatrix checks shape and finiteness of X.
func validateMatrix(X [][]float64) error {
	for i, row := range X {
		if len(row) != features.NumFeatures {
			return tierrors.NewValidationError(fmt.Sprintf("row has %d features, want %d", len(row), features.NumFeatures)).
				WithRow(i).WithCause(tierrors.ErrFeatureShape)
		}
		for j, v := range row {
			if !finite(v) {
				return tierrors.NewValidationError("feature is not finite").
					WithField(features.Names[j]).WithRow(i).WithValue(v).
					WithCause(tierrors.ErrNonFiniteFeature)
			}
		}
	}
	return nil
}

func distinctRows(X [][]float64) int {
	seen := make(map[[features.NumFeatures]float64]struct{}, len(X))
	for _, row := range X {
		var key [features.NumFeatures]float64
		copy(key[:], row)
		seen[key] = struct{}{}
	}
	return len(seen)
}

// Fit standardizes X, runs k-means and returns the cluster id of each row.
// X needs at least K distinct finite rows of NumFeatures columns.
func (e *Engine) Fit(X [][]float64) ([]int, error) {
	k := e.cfg.K()
	if len(X) == 0 {
		return nil, tierrors.NewValidationError("no workers to cluster").WithCause(tierrors.ErrEmptyWorkers)
	}
	if err := validateMatrix(X); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, tierrors.NewValidationError("no tier labels configured").WithField("model.tiers")
	}
	if len(X) < k {
		return nil, tierrors.NewValidationError(fmt.Sprintf("need at least %d workers for %d clusters", k, k)).
			WithValue(len(X)).WithCause(tierrors.ErrInsufficientWorkers)
	}
	if d := distinctRows(X); d < k {
		return nil, tierrors.NewValidationError(fmt.Sprintf("need at least %d distinct feature vectors for %d clusters", k, k)).
			WithValue(d).WithCause(tierrors.ErrInsufficientWorkers)
	}

	scaler := FitScaler(X)
	Z := scaler.TransformAll(X)

	nInit := max(e.cfg.NInit, 1)
	maxIter := max(e.cfg.MaxIter, 1)
	res := kmeans(Z, k, nInit, maxIter, e.cfg.Tolerance, e.cfg.Seed)

	silhouette, ok := Silhouette(Z, res.labels)
	e.state = State{
		Centroids:  res.centroids,
		Scaler:     scaler,
		Inertia:    res.inertia,
		Iterations: res.iterations,
		Silhouette: silhouette,
		Seed:       e.cfg.Seed,
	}
	e.trained = true

	e.logger.Info("k-means fitted",
		"workers", len(X),
		"clusters", k,
		"inertia", res.inertia,
		"iterations", res.iterations,
		"silhouette", silhouette,
		"silhouette_defined", ok,
	)

	return append([]int(nil), res.labels...), nil
}

// FitTable fits on the feature table, additionally requiring at least K
// distinct worker ids.
func (e *Engine) FitTable(table features.Table) ([]int, error) {
	ids := make(map[string]struct{}, table.Len())
	for _, id := range table.IDs() {
		ids[id] = struct{}{}
	}
	if table.Len() > 0 && len(ids) < e.cfg.K() {
		return nil, tierrors.NewValidationError(fmt.Sprintf("need at least %d distinct workers for %d clusters", e.cfg.K(), e.cfg.K())).
			WithValue(len(ids)).WithCause(tierrors.ErrInsufficientWorkers)
	}
	return e.Fit(table.Matrix())
}

// Predict returns the nearest centroid of each row after standardization.
func (e *Engine) Predict(X [][]float64) ([]int, error) {
	clusters, _, err := e.PredictWithDistance(X)
	return clusters, err
}

// PredictWithDistance also returns the squared standardized distance to the
// chosen centroid.
func (e *Engine) PredictWithDistance(X [][]float64) ([]int, []float64, error) {
	if !e.trained {
		return nil, nil, notTrained("predict")
	}
	if err := validateMatrix(X); err != nil {
		return nil, nil, err
	}

	clusters := make([]int, len(X))
	dists := make([]float64, len(X))
	for i, row := range X {
		clusters[i], dists[i] = nearest(e.state.Scaler.Transform(row), e.state.Centroids)
	}
	return clusters, dists, nil
}

// AssignLabels ranks the fitted clusters by the weighted score of their
// members' raw feature means and labels every row of table. clusters must be
// the Fit output for table. The mapping is stored in the engine state.
func (e *Engine) AssignLabels(table features.Table, clusters []int) (Labeling, error) {
	if !e.trained {
		return Labeling{}, notTrained("assign labels")
	}
	if len(clusters) != table.Len() {
		return Labeling{}, tierrors.NewValidationError(fmt.Sprintf("have %d cluster ids for %d workers", len(clusters), table.Len()))
	}
	for i, c := range clusters {
		if c < 0 || c >= e.state.K() {
			return Labeling{}, tierrors.NewValidationError("cluster id out of range").WithRow(i).WithValue(c)
		}
	}

	means := clusterMeans(table.Matrix(), clusters, e.state.Centroids, e.state.Scaler)
	mapping, scores, err := RankClusters(means, e.cfg.Weights, e.cfg.Tiers)
	if err != nil {
		return Labeling{}, tierrors.NewValidationError(err.Error()).WithField("model.tiers")
	}

	workers := make([]LabeledWorker, table.Len())
	for i, w := range table.Workers {
		workers[i] = LabeledWorker{Worker: w, Cluster: clusters[i], Label: mapping[clusters[i]]}
	}

	e.state.Labels = mapping
	e.state.Scores = scores

	for c := 0; c < e.state.K(); c++ {
		e.logger.Info("cluster labeled", "cluster", c, "label", mapping[c], "score", scores[c])
	}

	return Labeling{
		Workers: workers,
		Mapping: maps.Clone(mapping),
		Scores:  maps.Clone(scores),
		Means:   means,
	}, nil
}

// LabelCentroids ranks clusters using only the fitted centroids mapped back
// to raw units. It is a pure function of the state.
func LabelCentroids(s State, w Weights, tiers []string) (map[int]string, map[int]float64, error) {
	means := make([][]float64, s.K())
	for c, centroid := range s.Centroids {
		means[c] = s.Scaler.Inverse(centroid)
	}
	return RankClusters(means, w, tiers)
}
