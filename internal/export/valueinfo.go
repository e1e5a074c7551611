package export

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

func (s *session) encodeValueInfo(v *ir.Value, dynamicAxes map[string]map[int]string) (onnx.ValueInfoProto, error) {
	typ, err := s.encodeType(v.Type(), v, dynamicAxes)
	if err != nil {
		return onnx.ValueInfoProto{}, err
	}
	return onnx.ValueInfoProto{Name: v.Name(), Type: typ}, nil
}

// encodeType returns the type descriptor of t as seen on value v, or nil when
// nothing is known about it.
func (s *session) encodeType(t ir.Type, v *ir.Value, dynamicAxes map[string]map[int]string) (*onnx.TypeProto, error) {
	switch t := t.(type) {
	case *ir.TensorType:
		if !t.Ranked && t.DType == tensor.Undefined {
			return nil, nil
		}
		tt, err := s.encodeTensorType(t, v, dynamicAxes)
		if err != nil {
			return nil, err
		}
		return &onnx.TypeProto{TensorType: tt}, nil
	case ir.BoolType:
		return scalarType(onnx.TensorProtoBool), nil
	case ir.IntType:
		return scalarType(onnx.TensorProtoInt64), nil
	case ir.FloatType:
		return scalarType(onnx.TensorProtoFloat), nil
	case *ir.ListType:
		elem, err := s.encodeType(t.Elem, v, dynamicAxes)
		if err != nil {
			return nil, err
		}
		return &onnx.TypeProto{SequenceType: &onnx.SequenceTypeProto{ElemType: elem}}, nil
	default:
		return nil, nil
	}
}

// scalarType describes a scalar as a rank-0 tensor.
func scalarType(elem int32) *onnx.TypeProto {
	return &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elem, Shape: &onnx.TensorShapeProto{}}}
}

func (s *session) encodeTensorType(t *ir.TensorType, v *ir.Value, dynamicAxes map[string]map[int]string) (*onnx.TensorTypeProto, error) {
	tt := &onnx.TensorTypeProto{}
	if t.DType != tensor.Undefined {
		elem, err := ToONNX(t.DType)
		if err != nil {
			return nil, &ExportError{Err: ErrUnsupportedType, Details: fmt.Sprintf("value %q has element type %s", v.Name(), t.DType)}
		}
		tt.ElemType = elem
	}
	if !t.Ranked {
		return tt, nil
	}

	name := v.Name()
	axes := dynamicAxes[name]
	tt.Shape = &onnx.TensorShapeProto{Dims: make([]onnx.DimensionProto, len(t.Dims))}
	for i, d := range t.Dims {
		dim := &tt.Shape.Dims[i]
		if param, ok := axes[i]; ok {
			dim.DimParam = param
			if !d.IsStatic() {
				s.symbolDims[d.Symbol] = param
			}
			continue
		}
		if d.IsStatic() {
			dim.DimValue = d.Value
			continue
		}
		if _, ok := s.symbolDims[d.Symbol]; !ok {
			if v.IsBlockInput() {
				s.symbolDims[d.Symbol] = fmt.Sprintf("%s_dim_%d", name, i)
			} else {
				s.symbolDims[d.Symbol] = fmt.Sprintf("%s%s_dim_%d", v.Node().Kind().Name, name, i)
			}
		}
		dim.DimParam = s.symbolDims[d.Symbol]
	}
	return tt, nil
}

// encodeIntermediateValueInfo records the type of v in gp.ValueInfo when v is
// produced by a non-ONNX operator of the exported graph and is not one of its outputs.
func (s *session) encodeIntermediateValueInfo(gp *onnx.GraphProto, v *ir.Value) error {
	n := v.Node()
	if n.Kind().IsONNX() || n.Owner().Graph() != s.graph {
		return nil
	}
	for _, out := range s.graph.Outputs() {
		if out == v {
			return nil
		}
	}
	vi, err := s.encodeValueInfo(v, nil)
	if err != nil {
		return err
	}
	gp.ValueInfo = append(gp.ValueInfo, vi)
	return nil
}
