// Package export turns a fitted clustering state into a self-contained
// inference graph that mobile and embedded consumers can evaluate without
// the training code.
//
// The graph is a pure function of the scaler mean, the scaler scale and the
// centroids:
//
//	input_features[1,4] -> Sub(mean) -> Div(scale) -> SquaredDistances(centroids)
//	                    -> ArgMin -> Cast  => cluster[1]
//	                    -> ReduceMin       => distance[1]
package export

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// Tensor and node names used by BuildGraph.
const (
	GraphName = "worker_performance_kmeans"

	InputName    = "input_features"
	ClusterName  = "cluster"
	DistanceName = "distance"

	MeanConst    = "scaler_mean"
	ScaleConst   = "scaler_scale"
	CentersConst = "cluster_centers"

	subNode    = "standardization/sub"
	divNode    = "standardization/div"
	distNode   = "kmeans/squared_distances"
	argminNode = "kmeans/argmin"
)

// Precision is the arithmetic an inference graph is evaluated in.
type Precision uint8

const (
	Float32 Precision = iota + 1
	Float64
)

// ParsePrecision converts "float32" or "float64".
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "float32", "":
		return Float32, nil
	case "float64":
		return Float64, nil
	default:
		return 0, tierrors.NewValidationError("unknown graph precision").WithField("model.precision").WithValue(s)
	}
}

func (p Precision) String() string {
	switch p {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Precision(%d)", uint8(p))
	}
}

// Round narrows v to the precision.
func (p Precision) Round(v float64) float64 {
	if p == Float32 {
		return float64(float32(v))
	}
	return v
}

// Op identifies a graph operation.
type Op uint8

const (
	OpSub Op = iota + 1
	OpDiv
	OpSquaredDistances
	OpArgMin
	OpReduceMin
	OpCast
)

var opNames = map[Op]string{
	OpSub:              "Sub",
	OpDiv:              "Div",
	OpSquaredDistances: "SquaredDistances",
	OpArgMin:           "ArgMin",
	OpReduceMin:        "ReduceMin",
	OpCast:             "Cast",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// arity returns the number of inputs the op consumes.
func (o Op) arity() int {
	switch o {
	case OpSub, OpDiv, OpSquaredDistances:
		return 2
	default:
		return 1
	}
}

// TensorSpec names a graph input or output and fixes its shape.
type TensorSpec struct {
	Name  string
	Shape []int
}

// Tensor is a named constant embedded in the graph.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float64
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int { return shapeSize(t.Shape) }

// Node is one operation. Inputs name graph inputs, constants or earlier nodes.
type Node struct {
	Name   string
	Op     Op
	Inputs []string
}

// Graph is a static inference graph. Nodes are stored in evaluation order.
type Graph struct {
	Name      string
	Precision Precision
	Inputs    []TensorSpec
	Outputs   []TensorSpec
	Constants []Tensor
	Nodes     []Node
}

// BuildGraph builds the inference graph for a fitted state. Constants are
// narrowed to the requested precision.
func BuildGraph(state cluster.State, precision Precision) (*Graph, error) {
	if err := state.Validate(); err != nil {
		return nil, tierrors.NewModelStateError("build graph", tierrors.Wrap(tierrors.ErrArtifactCorrupt, err.Error()))
	}
	if precision != Float32 && precision != Float64 {
		return nil, tierrors.NewValidationError("unknown graph precision").WithField("model.precision").WithValue(precision.String())
	}

	dims := features.NumFeatures
	k := state.K()

	narrow := func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = precision.Round(x)
		}
		return out
	}
	centers := make([]float64, 0, k*dims)
	for _, c := range state.Centroids {
		centers = append(centers, c...)
	}

	g := &Graph{
		Name:      GraphName,
		Precision: precision,
		Inputs:    []TensorSpec{{Name: InputName, Shape: []int{1, dims}}},
		Outputs: []TensorSpec{
			{Name: ClusterName, Shape: []int{1}},
			{Name: DistanceName, Shape: []int{1}},
		},
		Constants: []Tensor{
			{Name: MeanConst, Shape: []int{dims}, Data: narrow(state.Scaler.Mean)},
			{Name: ScaleConst, Shape: []int{dims}, Data: narrow(state.Scaler.Scale)},
			{Name: CentersConst, Shape: []int{k, dims}, Data: narrow(centers)},
		},
		Nodes: []Node{
			{Name: subNode, Op: OpSub, Inputs: []string{InputName, MeanConst}},
			{Name: divNode, Op: OpDiv, Inputs: []string{subNode, ScaleConst}},
			{Name: distNode, Op: OpSquaredDistances, Inputs: []string{divNode, CentersConst}},
			{Name: argminNode, Op: OpArgMin, Inputs: []string{distNode}},
			{Name: ClusterName, Op: OpCast, Inputs: []string{argminNode}},
			{Name: DistanceName, Op: OpReduceMin, Inputs: []string{distNode}},
		},
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Clusters returns the number of centroids embedded in the graph, or 0 when
// the centers constant is missing.
func (g *Graph) Clusters() int {
	for _, c := range g.Constants {
		if c.Name == CentersConst && len(c.Shape) == 2 {
			return c.Shape[0]
		}
	}
	return 0
}

// Constant returns the named constant.
func (g *Graph) Constant(name string) (Tensor, bool) {
	for _, c := range g.Constants {
		if c.Name == name {
			return c, true
		}
	}
	return Tensor{}, false
}

// Validate checks that the graph is well formed: names are unique, every
// node input is defined before use, constants match their shapes and every
// declared output is produced.
func (g *Graph) Validate() error {
	if g.Precision != Float32 && g.Precision != Float64 {
		return fmt.Errorf("graph precision %s is not supported", g.Precision)
	}
	if len(g.Inputs) == 0 || len(g.Outputs) == 0 {
		return fmt.Errorf("graph declares no inputs or outputs")
	}

	defined := make(map[string]struct{})
	define := func(name string) error {
		if name == "" {
			return fmt.Errorf("graph contains an unnamed tensor")
		}
		if _, dup := defined[name]; dup {
			return fmt.Errorf("tensor %q is defined twice", name)
		}
		defined[name] = struct{}{}
		return nil
	}

	for _, in := range g.Inputs {
		if err := define(in.Name); err != nil {
			return err
		}
		if shapeSize(in.Shape) <= 0 {
			return fmt.Errorf("input %q has invalid shape %v", in.Name, in.Shape)
		}
	}
	for _, c := range g.Constants {
		if err := define(c.Name); err != nil {
			return err
		}
		if c.Size() != len(c.Data) {
			return fmt.Errorf("constant %q has %d values for shape %v", c.Name, len(c.Data), c.Shape)
		}
	}
	for _, n := range g.Nodes {
		if _, ok := opNames[n.Op]; !ok {
			return fmt.Errorf("node %q has unknown op %s", n.Name, n.Op)
		}
		if len(n.Inputs) != n.Op.arity() {
			return fmt.Errorf("node %q (%s) takes %d inputs, has %d", n.Name, n.Op, n.Op.arity(), len(n.Inputs))
		}
		for _, in := range n.Inputs {
			if _, ok := defined[in]; !ok {
				return fmt.Errorf("node %q reads undefined tensor %q", n.Name, in)
			}
		}
		if err := define(n.Name); err != nil {
			return err
		}
	}
	for _, out := range g.Outputs {
		if !slices.ContainsFunc(g.Nodes, func(n Node) bool { return n.Name == out.Name }) {
			return fmt.Errorf("output %q is not produced by any node", out.Name)
		}
	}
	return nil
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}
