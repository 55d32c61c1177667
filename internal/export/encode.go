package export

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
)

// Magic prefixes every encoded graph. The trailing byte is the format version.
var Magic = []byte("WTGRAPH\x01")

// FormatVersion is the graph format version recorded in the manifest.
const FormatVersion = 1

// Wire schema, protobuf encoded after Magic:
//
//	message Graph {
//	  string     name      = 1;
//	  uint32     precision = 2; // 1 float32, 2 float64
//	  repeated TensorSpec inputs    = 3;
//	  repeated TensorSpec outputs   = 4;
//	  repeated Tensor     constants = 5;
//	  repeated Node       nodes     = 6;
//	}
//	message TensorSpec { string name = 1; repeated int64 shape = 2 [packed]; }
//	message Tensor {
//	  string name = 1;
//	  repeated int64   shape = 2 [packed];
//	  repeated float   f32   = 3 [packed]; // float32 graphs
//	  repeated double  f64   = 4 [packed]; // float64 graphs
//	}
//	message Node { string name = 1; uint32 op = 2; repeated string inputs = 3; }
const (
	graphName      protowire.Number = 1
	graphPrecision protowire.Number = 2
	graphInputs    protowire.Number = 3
	graphOutputs   protowire.Number = 4
	graphConstants protowire.Number = 5
	graphNodes     protowire.Number = 6

	specName  protowire.Number = 1
	specShape protowire.Number = 2

	tensorName  protowire.Number = 1
	tensorShape protowire.Number = 2
	tensorF32   protowire.Number = 3
	tensorF64   protowire.Number = 4

	nodeName   protowire.Number = 1
	nodeOp     protowire.Number = 2
	nodeInputs protowire.Number = 3
)

// Encode serializes g. Constant data is written at the graph precision.
func Encode(g *Graph) []byte {
	b := append([]byte(nil), Magic...)
	b = protowire.AppendTag(b, graphName, protowire.BytesType)
	b = protowire.AppendString(b, g.Name)
	b = protowire.AppendTag(b, graphPrecision, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Precision))
	for _, s := range g.Inputs {
		b = appendMessage(b, graphInputs, encodeSpec(s))
	}
	for _, s := range g.Outputs {
		b = appendMessage(b, graphOutputs, encodeSpec(s))
	}
	for _, t := range g.Constants {
		b = appendMessage(b, graphConstants, encodeTensor(t, g.Precision))
	}
	for _, n := range g.Nodes {
		b = appendMessage(b, graphNodes, encodeNode(n))
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendShape(b []byte, num protowire.Number, shape []int) []byte {
	var packed []byte
	for _, d := range shape {
		packed = protowire.AppendVarint(packed, uint64(d))
	}
	return appendMessage(b, num, packed)
}

func encodeSpec(s TensorSpec) []byte {
	var b []byte
	b = protowire.AppendTag(b, specName, protowire.BytesType)
	b = protowire.AppendString(b, s.Name)
	return appendShape(b, specShape, s.Shape)
}

func encodeTensor(t Tensor, p Precision) []byte {
	var b []byte
	b = protowire.AppendTag(b, tensorName, protowire.BytesType)
	b = protowire.AppendString(b, t.Name)
	b = appendShape(b, tensorShape, t.Shape)

	var packed []byte
	if p == Float32 {
		for _, v := range t.Data {
			packed = protowire.AppendFixed32(packed, math.Float32bits(float32(v)))
		}
		return appendMessage(b, tensorF32, packed)
	}
	for _, v := range t.Data {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	return appendMessage(b, tensorF64, packed)
}

func encodeNode(n Node) []byte {
	var b []byte
	b = protowire.AppendTag(b, nodeName, protowire.BytesType)
	b = protowire.AppendString(b, n.Name)
	b = protowire.AppendTag(b, nodeOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Op))
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, nodeInputs, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	return b
}

// Decode parses and validates an encoded graph. Unknown fields are skipped.
func Decode(data []byte) (*Graph, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, corruptGraph(fmt.Errorf("missing %q header", Magic[:len(Magic)-1]))
	}

	g := &Graph{}
	err := walkFields(data[len(Magic):], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == graphName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			g.Name = v
			return n, nil
		case num == graphPrecision && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			g.Precision = Precision(v)
			return n, nil
		case num == graphInputs && typ == protowire.BytesType:
			return consumeMessage(b, func(msg []byte) error {
				s, err := decodeSpec(msg)
				g.Inputs = append(g.Inputs, s)
				return err
			})
		case num == graphOutputs && typ == protowire.BytesType:
			return consumeMessage(b, func(msg []byte) error {
				s, err := decodeSpec(msg)
				g.Outputs = append(g.Outputs, s)
				return err
			})
		case num == graphConstants && typ == protowire.BytesType:
			return consumeMessage(b, func(msg []byte) error {
				t, err := decodeTensor(msg)
				g.Constants = append(g.Constants, t)
				return err
			})
		case num == graphNodes && typ == protowire.BytesType:
			return consumeMessage(b, func(msg []byte) error {
				nd, err := decodeNode(msg)
				g.Nodes = append(g.Nodes, nd)
				return err
			})
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, corruptGraph(err)
	}
	if err := g.Validate(); err != nil {
		return nil, corruptGraph(err)
	}
	return g, nil
}

// walkFields calls fn for every field in b. fn returns the number of bytes
// it consumed from the field value.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func consumeMessage(b []byte, fn func([]byte) error) (int, error) {
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, fn(msg)
}

func consumeShape(b []byte, shape *[]int) (int, error) {
	return consumeMessage(b, func(packed []byte) error {
		for len(packed) > 0 {
			v, n := protowire.ConsumeVarint(packed)
			if n < 0 {
				return protowire.ParseError(n)
			}
			*shape = append(*shape, int(v))
			packed = packed[n:]
		}
		return nil
	})
}

func decodeSpec(b []byte) (TensorSpec, error) {
	var s TensorSpec
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == specName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Name = v
			return n, nil
		case num == specShape && typ == protowire.BytesType:
			return consumeShape(b, &s.Shape)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return s, err
}

func decodeTensor(b []byte) (Tensor, error) {
	var t Tensor
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == tensorName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.Name = v
			return n, nil
		case num == tensorShape && typ == protowire.BytesType:
			return consumeShape(b, &t.Shape)
		case num == tensorF32 && typ == protowire.BytesType:
			return consumeMessage(b, func(packed []byte) error {
				for len(packed) > 0 {
					v, n := protowire.ConsumeFixed32(packed)
					if n < 0 {
						return protowire.ParseError(n)
					}
					t.Data = append(t.Data, float64(math.Float32frombits(v)))
					packed = packed[n:]
				}
				return nil
			})
		case num == tensorF64 && typ == protowire.BytesType:
			return consumeMessage(b, func(packed []byte) error {
				for len(packed) > 0 {
					v, n := protowire.ConsumeFixed64(packed)
					if n < 0 {
						return protowire.ParseError(n)
					}
					t.Data = append(t.Data, math.Float64frombits(v))
					packed = packed[n:]
				}
				return nil
			})
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return t, err
}

func decodeNode(b []byte) (Node, error) {
	var nd Node
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == nodeName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			nd.Name = v
			return n, nil
		case num == nodeOp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			nd.Op = Op(v)
			return n, nil
		case num == nodeInputs && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			nd.Inputs = append(nd.Inputs, v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return nd, err
}

func corruptGraph(err error) error {
	return tierrors.NewModelStateError("decode graph", tierrors.Wrap(tierrors.ErrArtifactCorrupt, err.Error())).
		WithArtifact("graph")
}
