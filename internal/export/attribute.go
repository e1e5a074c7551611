package export

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
)

//nolint:gocyclo,cyclop // One arm per attribute kind
func (s *session) encodeAttribute(np *onnx.NodeProto, attr ir.Attribute) (onnx.AttributeProto, error) {
	ap := onnx.AttributeProto{Name: attr.Name}
	switch v := attr.Value.(type) {
	case ir.FloatAttr:
		ap.Type = onnx.AttributeProtoFloat
		ap.F = float32(v)
	case ir.FloatsAttr:
		ap.Type = onnx.AttributeProtoFloats
		for _, f := range v {
			ap.Floats = append(ap.Floats, float32(f))
		}
	case ir.IntAttr:
		ap.Type = onnx.AttributeProtoInt
		ap.I = int64(v)
	case ir.IntsAttr:
		ap.Type = onnx.AttributeProtoInts
		ap.Ints = append([]int64(nil), v...)
	case ir.StringAttr:
		ap.Type = onnx.AttributeProtoString
		ap.S = []byte(v)
	case ir.StringsAttr:
		ap.Type = onnx.AttributeProtoStrings
		for _, str := range v {
			ap.Strings = append(ap.Strings, []byte(str))
		}
	case ir.TensorAttr:
		ap.Type = onnx.AttributeProtoTensor
		ap.T = &onnx.TensorProto{Name: v.Name}
		if s.tensors.UseExternalData && ap.T.Name == "" {
			ap.T.Name = s.attributeTensorName(np, attr.Name, -1)
		}
		if err := s.tensors.Encode(ap.T, v.Tensor, ""); err != nil {
			return ap, err
		}
	case ir.TensorsAttr:
		ap.Type = onnx.AttributeProtoTensors
		ap.Tensors = make([]onnx.TensorProto, len(v))
		for i, t := range v {
			if s.tensors.UseExternalData {
				ap.Tensors[i].Name = s.attributeTensorName(np, attr.Name, i)
			}
			if err := s.tensors.Encode(&ap.Tensors[i], t, ""); err != nil {
				return ap, err
			}
		}
	case ir.GraphAttr:
		if v.Graph == nil {
			return ap, &ExportError{Err: ErrUnknownAttributeKind, Attribute: attr.Name, Details: "graph attribute has no graph"}
		}
		ap.Type = onnx.AttributeProtoGraph
		ap.G = &onnx.GraphProto{}
		if err := s.encodeBlock(ap.G, v.Graph.Block(), nil, nil, true, true); err != nil {
			return ap, err
		}
	case ir.GraphsAttr:
		ap.Type = onnx.AttributeProtoGraphs
		ap.Graphs = make([]onnx.GraphProto, len(v))
		for i, g := range v {
			if err := s.encodeBlock(&ap.Graphs[i], g.Block(), nil, nil, true, true); err != nil {
				return ap, err
			}
		}
	case nil:
		return ap, &ExportError{Err: ErrUnknownAttributeKind, Attribute: attr.Name, Details: "attribute has no value"}
	default:
		return ap, &ExportError{Err: ErrUnknownAttributeKind, Attribute: attr.Name, Details: fmt.Sprintf("%T", v)}
	}
	return ap, nil
}

// attributeTensorName names a tensor attribute payload that is about to be
// stored externally. index is the position within a tensor list, or -1.
func (s *session) attributeTensorName(np *onnx.NodeProto, attrName string, index int) string {
	if np.Name == "" {
		name := fmt.Sprintf("%s_%s_%d", np.OpType, attrName, s.numExternalData)
		s.numExternalData++
		return name
	}
	name := np.Name + "_" + attrName
	if index >= 0 {
		name = fmt.Sprintf("%s_%d", name, index)
	}
	return name
}
