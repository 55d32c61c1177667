package export

import (
	"context"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// Result describes a completed export.
type Result struct {
	State        cluster.State
	Graph        *Graph
	Manifest     Manifest
	GraphPath    string
	ManifestPath string
	Size         int
}

// Exporter converts the fitted model in a store into an inference graph.
type Exporter struct {
	store     *artifact.Store
	precision Precision
	logger    *logging.Logger
}

// NewExporter creates an Exporter. A nil logger discards output.
func NewExporter(store *artifact.Store, precision Precision, logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Exporter{store: store, precision: precision, logger: logger}
}

// Export loads the fitted state, builds and encodes the graph, and publishes
// the graph with its manifest. It fails with a ModelStateError when the
// fitted artifacts are missing or corrupt, or when the model has no tier
// labels.
func (x *Exporter) Export(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	state, meta, err := x.store.LoadModel()
	if err != nil {
		return Result{}, err
	}
	if len(state.Labels) != state.K() {
		return Result{}, tierrors.NewModelStateError("export",
			tierrors.Wrap(tierrors.ErrArtifactCorrupt, "model has no tier labels for every cluster")).
			WithArtifact(artifact.MetadataFile).WithPath(x.store.Path(artifact.MetadataFile))
	}

	g, err := BuildGraph(state, x.precision)
	if err != nil {
		return Result{}, err
	}
	encoded := Encode(g)
	manifest := NewManifest(meta, state, g, encoded, x.store.Path(artifact.GraphFile))
	manifestJSON, err := manifest.Marshal()
	if err != nil {
		return Result{}, tierrors.NewModelStateError("encode manifest", err).WithArtifact(artifact.ManifestFile)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := x.store.PublishExport(encoded, manifestJSON); err != nil {
		return Result{}, err
	}

	x.logger.Info("inference graph exported",
		"path", x.store.Path(artifact.GraphFile),
		"bytes", len(encoded),
		"precision", g.Precision.String(),
		"clusters", g.Clusters(),
		"checksum", manifest.GraphChecksum,
	)

	return Result{
		State:        state,
		Graph:        g,
		Manifest:     manifest,
		GraphPath:    x.store.Path(artifact.GraphFile),
		ManifestPath: x.store.Path(artifact.ManifestFile),
		Size:         len(encoded),
	}, nil
}

// Load reads a published graph and its manifest, checking the manifest
// checksum against the graph bytes.
func Load(store *artifact.Store) (*Graph, Manifest, error) {
	files, err := store.ReadFiles(artifact.GraphFile, artifact.ManifestFile)
	if err != nil {
		return nil, Manifest{}, err
	}
	encoded, raw := files[artifact.GraphFile], files[artifact.ManifestFile]
	manifest, err := ParseManifest(raw)
	if err != nil {
		return nil, Manifest{}, tierrors.NewModelStateError("decode manifest", tierrors.Wrap(tierrors.ErrArtifactCorrupt, err.Error())).
			WithArtifact(artifact.ManifestFile).WithPath(store.Path(artifact.ManifestFile))
	}
	if !manifest.Matches(encoded) {
		return nil, Manifest{}, tierrors.NewModelStateError("load graph", tierrors.Wrap(tierrors.ErrArtifactCorrupt, "graph checksum does not match manifest")).
			WithArtifact(artifact.GraphFile).WithPath(store.Path(artifact.GraphFile))
	}
	g, err := Decode(encoded)
	if err != nil {
		return nil, Manifest{}, err
	}
	return g, manifest, nil
}
