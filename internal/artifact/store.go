// Package artifact persists the fitted model and the exported inference
// files under a single model directory.
//
// Every file is replaced atomically and multi-file updates are published
// under an exclusive directory lock, so a reader holding the shared lock
// always sees one consistent generation of artifacts.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// Artifact file names inside the model directory.
const (
	ScalerFile   = "scaler.json"
	ModelFile    = "kmeans_model.json"
	MetadataFile = "model_metadata.json"
	GraphFile    = "worker_analysis_model.wtg"
	ManifestFile = "model_info.json"
)

// ModelType is recorded in the metadata manifest.
const ModelType = "KMeans"

const filePerm = 0644

// ScalerParams is the on-disk form of the standardizer.
type ScalerParams struct {
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	NFeaturesIn  int       `json:"n_features_in"`
	FeatureNames []string  `json:"feature_names"`
}

// KMeansParams is the on-disk form of the fitted centroids.
type KMeansParams struct {
	NClusters      int         `json:"n_clusters"`
	ClusterCenters [][]float64 `json:"cluster_centers"`
	Inertia        float64     `json:"inertia"`
	NIter          int         `json:"n_iter"`
	Seed           uint64      `json:"seed"`
	Silhouette     float64     `json:"silhouette"`
}

// Metadata describes one training run.
type Metadata struct {
	ModelType      string             `json:"model_type"`
	NClusters      int                `json:"n_clusters"`
	FeatureNames   []string           `json:"feature_names"`
	ClusterLabels  map[string]string  `json:"cluster_labels"`
	ClusterScores  map[string]float64 `json:"cluster_scores,omitempty"`
	FeatureWeights map[string]float64 `json:"feature_weights"`
	CreatedAt      time.Time          `json:"created_at"`
	RunID          string             `json:"run_id,omitempty"`
}

// NewMetadata builds the metadata for a labeled state.
func NewMetadata(state cluster.State, weights cluster.Weights, runID string, now time.Time) Metadata {
	scores := make(map[string]float64, len(state.Scores))
	for c, s := range state.Scores {
		scores[strconv.Itoa(c)] = s
	}
	return Metadata{
		ModelType:      ModelType,
		NClusters:      state.K(),
		FeatureNames:   features.FeatureNames(),
		ClusterLabels:  state.StringLabels(),
		ClusterScores:  scores,
		FeatureWeights: weights.Map(),
		CreatedAt:      now.UTC(),
		RunID:          runID,
	}
}

// Store reads and writes artifacts in one model directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the model directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute location of an artifact file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveModel publishes the scaler, centroids and metadata as one generation.
func (s *Store) SaveModel(state cluster.State, meta Metadata) error {
	if err := state.Validate(); err != nil {
		return tierrors.NewModelStateError("save model", err)
	}

	scaler := ScalerParams{
		Mean:         state.Scaler.Mean,
		Scale:        state.Scaler.Scale,
		NFeaturesIn:  state.Scaler.Dims(),
		FeatureNames: features.FeatureNames(),
	}
	model := KMeansParams{
		NClusters:      state.K(),
		ClusterCenters: state.Centroids,
		Inertia:        state.Inertia,
		NIter:          state.Iterations,
		Seed:           state.Seed,
		Silhouette:     state.Silhouette,
	}

	files := []struct {
		name string
		v    any
	}{
		{ScalerFile, scaler},
		{ModelFile, model},
		{MetadataFile, meta},
	}

	payloads := make(map[string][]byte, len(files))
	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return tierrors.NewModelStateError("encode artifact", err).WithArtifact(f.name)
		}
		payloads[f.name] = data
	}

	return s.publish(func(b *Batch) error {
		for _, f := range files {
			if err := b.Stage(s.Path(f.name), payloads[f.name], filePerm); err != nil {
				return tierrors.NewModelStateError("stage artifact", err).WithArtifact(f.name).WithPath(s.Path(f.name))
			}
		}
		return nil
	})
}

// PublishExport writes the inference graph and its manifest as one generation.
func (s *Store) PublishExport(graph, manifest []byte) error {
	return s.publish(func(b *Batch) error {
		if err := b.Stage(s.Path(GraphFile), graph, filePerm); err != nil {
			return tierrors.NewModelStateError("stage graph", err).WithArtifact(GraphFile).WithPath(s.Path(GraphFile))
		}
		if err := b.Stage(s.Path(ManifestFile), manifest, filePerm); err != nil {
			return tierrors.NewModelStateError("stage manifest", err).WithArtifact(ManifestFile).WithPath(s.Path(ManifestFile))
		}
		return nil
	})
}

// publish stages files with fn and commits them under the exclusive lock.
func (s *Store) publish(fn func(*Batch) error) error {
	lock := NewDirLock(s.dir)
	if err := lock.Lock(); err != nil {
		return tierrors.NewModelStateError("lock model directory", err).WithPath(s.dir)
	}
	defer func() { _ = lock.Unlock() }()

	batch := NewBatch()
	if err := fn(batch); err != nil {
		batch.Abort()
		return err
	}
	if err := batch.Commit(); err != nil {
		return tierrors.NewModelStateError("publish artifacts", err).WithPath(s.dir)
	}
	return nil
}

// LoadModel reads the fitted state and metadata saved by SaveModel. Labels
// and scores are restored from the metadata.
func (s *Store) LoadModel() (cluster.State, Metadata, error) {
	var (
		scaler ScalerParams
		model  KMeansParams
		meta   Metadata
	)

	err := s.read(func() error {
		if err := s.readJSON(ScalerFile, &scaler); err != nil {
			return err
		}
		if err := s.readJSON(ModelFile, &model); err != nil {
			return err
		}
		return s.readJSON(MetadataFile, &meta)
	})
	if err != nil {
		return cluster.State{}, Metadata{}, err
	}

	state := cluster.State{
		Centroids:  model.ClusterCenters,
		Scaler:     cluster.Scaler{Mean: scaler.Mean, Scale: scaler.Scale},
		Inertia:    model.Inertia,
		Iterations: model.NIter,
		Silhouette: model.Silhouette,
		Seed:       model.Seed,
	}

	labels, err := parseClusterKeys(meta.ClusterLabels)
	if err != nil {
		return cluster.State{}, Metadata{}, s.corrupt(MetadataFile, err)
	}
	state.Labels = labels
	if len(meta.ClusterScores) > 0 {
		scores, err := parseClusterKeys(meta.ClusterScores)
		if err != nil {
			return cluster.State{}, Metadata{}, s.corrupt(MetadataFile, err)
		}
		state.Scores = scores
	}

	if model.NClusters != len(model.ClusterCenters) {
		return cluster.State{}, Metadata{}, s.corrupt(ModelFile,
			fmt.Errorf("n_clusters is %d but %d centers are stored", model.NClusters, len(model.ClusterCenters)))
	}
	if err := state.Validate(); err != nil {
		return cluster.State{}, Metadata{}, s.corrupt(ModelFile, err)
	}
	return state, meta, nil
}

// ReadFile returns the content of an artifact under the shared lock.
func (s *Store) ReadFile(name string) ([]byte, error) {
	files, err := s.ReadFiles(name)
	if err != nil {
		return nil, err
	}
	return files[name], nil
}

// ReadFiles returns the content of several artifacts read under one shared
// lock, so they belong to the same published generation.
func (s *Store) ReadFiles(names ...string) (map[string][]byte, error) {
	files := make(map[string][]byte, len(names))
	err := s.read(func() error {
		for _, name := range names {
			data, err := s.readRaw(name)
			if err != nil {
				return err
			}
			files[name] = data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Exists reports whether an artifact file is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

func (s *Store) read(fn func() error) error {
	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return tierrors.NewModelStateError("open model directory", tierrors.ErrArtifactMissing).WithPath(s.dir)
	}

	lock := NewDirLock(s.dir)
	if err := lock.RLock(); err != nil {
		return tierrors.NewModelStateError("lock model directory", err).WithPath(s.dir)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func (s *Store) readRaw(name string) ([]byte, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tierrors.NewModelStateError("read artifact", tierrors.ErrArtifactMissing).WithArtifact(name).WithPath(path)
	}
	if err != nil {
		return nil, tierrors.NewModelStateError("read artifact", err).WithArtifact(name).WithPath(path)
	}
	return data, nil
}

func (s *Store) readJSON(name string, v any) error {
	data, err := s.readRaw(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return s.corrupt(name, err)
	}
	return nil
}

func (s *Store) corrupt(name string, cause error) error {
	return tierrors.NewModelStateError("decode artifact", tierrors.Wrap(tierrors.ErrArtifactCorrupt, cause.Error())).
		WithArtifact(name).WithPath(s.Path(name))
}

func parseClusterKeys[V any](in map[string]V) (map[int]V, error) {
	out := make(map[int]V, len(in))
	for k, v := range in {
		c, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("cluster key %q is not an integer", k)
		}
		out[c] = v
	}
	return out, nil
}
