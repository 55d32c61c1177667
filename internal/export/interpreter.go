package export

import (
	"fmt"
	"math"

	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/features"
)

// value is an evaluated tensor. Data is row-major over Shape.
type value struct {
	shape []int
	data  []float64
}

func (v value) last() int {
	if len(v.shape) == 0 {
		return 0
	}
	return v.shape[len(v.shape)-1]
}

// Interpreter evaluates a graph. Every intermediate result is rounded to
// the graph precision, so a float32 graph reproduces single precision
// arithmetic. An Interpreter is safe for concurrent use.
type Interpreter struct {
	graph  *Graph
	consts map[string]value
}

// NewInterpreter prepares g for evaluation.
func NewInterpreter(g *Graph) (*Interpreter, error) {
	if err := g.Validate(); err != nil {
		return nil, tierrors.NewModelStateError("load graph", tierrors.Wrap(tierrors.ErrArtifactCorrupt, err.Error()))
	}
	consts := make(map[string]value, len(g.Constants))
	for _, c := range g.Constants {
		data := make([]float64, len(c.Data))
		for i, v := range c.Data {
			data[i] = g.Precision.Round(v)
		}
		consts[c.Name] = value{shape: append([]int(nil), c.Shape...), data: data}
	}
	return &Interpreter{graph: g, consts: consts}, nil
}

// Graph returns the graph being evaluated.
func (in *Interpreter) Graph() *Graph { return in.graph }

// Run evaluates the graph for one feature vector and returns the nearest
// cluster and the squared standardized distance to it.
func (in *Interpreter) Run(input [features.NumFeatures]float64) (int, float64, error) {
	outputs, err := in.Eval(map[string][]float64{InputName: input[:]})
	if err != nil {
		return 0, 0, err
	}
	cluster, distance := outputs[ClusterName], outputs[DistanceName]
	if len(cluster) != 1 || len(distance) != 1 {
		return 0, 0, fmt.Errorf("graph produced %d cluster and %d distance values, want 1", len(cluster), len(distance))
	}
	return int(cluster[0]), distance[0], nil
}

// Eval evaluates the graph with the given inputs and returns every declared
// output by name.
func (in *Interpreter) Eval(inputs map[string][]float64) (map[string][]float64, error) {
	p := in.graph.Precision
	env := make(map[string]value, len(in.consts)+len(in.graph.Nodes)+len(inputs))
	for name, v := range in.consts {
		env[name] = v
	}
	for _, spec := range in.graph.Inputs {
		data, ok := inputs[spec.Name]
		if !ok {
			return nil, tierrors.NewValidationError("missing graph input").WithField(spec.Name)
		}
		if len(data) != shapeSize(spec.Shape) {
			return nil, tierrors.NewValidationError(fmt.Sprintf("input has %d values, want shape %v", len(data), spec.Shape)).
				WithField(spec.Name).WithCause(tierrors.ErrFeatureShape)
		}
		rounded := make([]float64, len(data))
		for i, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, tierrors.NewValidationError("input is not finite").WithField(spec.Name).WithValue(v).
					WithCause(tierrors.ErrNonFiniteFeature)
			}
			rounded[i] = p.Round(v)
		}
		env[spec.Name] = value{shape: spec.Shape, data: rounded}
	}

	for _, node := range in.graph.Nodes {
		args := make([]value, len(node.Inputs))
		for i, name := range node.Inputs {
			args[i] = env[name]
		}
		out, err := apply(node.Op, p, args)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name, err)
		}
		env[node.Name] = out
	}

	result := make(map[string][]float64, len(in.graph.Outputs))
	for _, spec := range in.graph.Outputs {
		result[spec.Name] = env[spec.Name].data
	}
	return result, nil
}

func apply(op Op, p Precision, args []value) (value, error) {
	switch op {
	case OpSub:
		return broadcast(args[0], args[1], p, func(a, b float64) float64 { return a - b })
	case OpDiv:
		return broadcast(args[0], args[1], p, func(a, b float64) float64 { return a / b })
	case OpSquaredDistances:
		return squaredDistances(args[0], args[1], p)
	case OpArgMin:
		return reduceLast(args[0], func(row []float64) float64 {
			idx, _ := argmin(row)
			return float64(idx)
		})
	case OpReduceMin:
		return reduceLast(args[0], func(row []float64) float64 {
			_, v := argmin(row)
			return v
		})
	case OpCast:
		out := value{shape: args[0].shape, data: make([]float64, len(args[0].data))}
		for i, v := range args[0].data {
			out.data[i] = p.Round(v)
		}
		return out, nil
	default:
		return value{}, fmt.Errorf("unsupported op %s", op)
	}
}

// broadcast applies fn elementwise, repeating b along the leading axes of a.
func broadcast(a, b value, p Precision, fn func(a, b float64) float64) (value, error) {
	if len(b.data) == 0 || len(a.data)%len(b.data) != 0 || a.last() != b.last() {
		return value{}, fmt.Errorf("cannot broadcast %v with %v", a.shape, b.shape)
	}
	out := value{shape: a.shape, data: make([]float64, len(a.data))}
	for i, v := range a.data {
		out.data[i] = p.Round(fn(v, b.data[i%len(b.data)]))
	}
	return out, nil
}

// squaredDistances computes, for each row of x [n,d], the squared distance
// to every row of centers [k,d], giving [n,k].
func squaredDistances(x, centers value, p Precision) (value, error) {
	d := x.last()
	if len(centers.shape) != 2 || centers.shape[1] != d || d == 0 {
		return value{}, fmt.Errorf("cannot compare %v with centers %v", x.shape, centers.shape)
	}
	n, k := len(x.data)/d, centers.shape[0]
	out := value{shape: []int{n, k}, data: make([]float64, n*k)}
	for i := range n {
		row := x.data[i*d : (i+1)*d]
		for c := range k {
			center := centers.data[c*d : (c+1)*d]
			var sum float64
			for j := range d {
				diff := p.Round(row[j] - center[j])
				sum = p.Round(sum + p.Round(diff*diff))
			}
			out.data[i*k+c] = sum
		}
	}
	return out, nil
}

// reduceLast collapses the last axis of v with fn.
func reduceLast(v value, fn func(row []float64) float64) (value, error) {
	d := v.last()
	if d == 0 {
		return value{}, fmt.Errorf("cannot reduce shape %v", v.shape)
	}
	n := len(v.data) / d
	out := value{shape: []int{n}, data: make([]float64, n)}
	for i := range n {
		out.data[i] = fn(v.data[i*d : (i+1)*d])
	}
	return out, nil
}

// argmin returns the first index holding the minimum.
func argmin(row []float64) (int, float64) {
	best, bestVal := 0, row[0]
	for i, v := range row[1:] {
		if v < bestVal {
			best, bestVal = i+1, v
		}
	}
	return best, bestVal
}
