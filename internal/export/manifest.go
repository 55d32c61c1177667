package export

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/Iron-Ham/workertiers/internal/artifact"
	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// ScalerParams carries the standardization constants for consumers that
// apply them outside the graph.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Manifest describes an exported graph to its consumers. It extends the
// training metadata with everything needed to feed and interpret the graph.
type Manifest struct {
	artifact.Metadata

	ModelPath          string            `json:"model_path"`
	InputShape         []int             `json:"input_shape"`
	OutputShape        []int             `json:"output_shape"`
	InputNames         []string          `json:"input_names"`
	OutputNames        []string          `json:"output_names"`
	FeatureOrder       []string          `json:"feature_order"`
	ScalerParams       ScalerParams      `json:"scaler_params"`
	ClusterCenters     [][]float64       `json:"cluster_centers"`
	PerformanceMapping map[string]string `json:"performance_mapping"`
	Precision          string            `json:"precision"`
	GraphChecksum      string            `json:"graph_checksum"`
	FormatVersion      int               `json:"format_version"`
}

// Checksum returns the xxh3-64 digest of an encoded graph in hex.
func Checksum(encoded []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(encoded))
}

// NewManifest describes the encoded graph built from state.
func NewManifest(meta artifact.Metadata, state cluster.State, g *Graph, encoded []byte, modelPath string) Manifest {
	centers := make([][]float64, len(state.Centroids))
	for i, c := range state.Centroids {
		centers[i] = append([]float64(nil), c...)
	}
	return Manifest{
		Metadata:     meta,
		ModelPath:    modelPath,
		InputShape:   []int{1, features.NumFeatures},
		OutputShape:  []int{1},
		InputNames:   []string{InputName},
		OutputNames:  []string{ClusterName, DistanceName},
		FeatureOrder: features.FeatureNames(),
		ScalerParams: ScalerParams{
			Mean:  append([]float64(nil), state.Scaler.Mean...),
			Scale: append([]float64(nil), state.Scaler.Scale...),
		},
		ClusterCenters:     centers,
		PerformanceMapping: state.StringLabels(),
		Precision:          g.Precision.String(),
		GraphChecksum:      Checksum(encoded),
		FormatVersion:      FormatVersion,
	}
}

// Marshal renders the manifest as indented JSON.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest decodes a manifest written by Marshal.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Matches reports whether encoded is the graph the manifest describes.
func (m Manifest) Matches(encoded []byte) bool {
	return m.GraphChecksum == Checksum(encoded)
}
