package onnx

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes the model in protobuf wire format.
// Fields are written in field-number order, so equal models encode to equal bytes.
func Marshal(m *ModelProto) []byte {
	return appendModel(nil, m)
}

// MarshalTensor encodes a single TensorProto.
func MarshalTensor(t *TensorProto) []byte {
	return appendTensor(nil, t)
}

// Size returns the encoded size of the tensor in bytes.
func (t *TensorProto) Size() int {
	header := *t
	header.RawData = nil
	n := len(appendTensor(nil, &header))
	if t.RawData != nil {
		n += RawDataFieldSize(len(t.RawData))
	}
	return n
}

// RawDataFieldSize returns the encoded size of a raw_data field holding n bytes.
func RawDataFieldSize(n int) int {
	return protowire.SizeTag(9) + protowire.SizeBytes(n)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendOptString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendString(b, num, s)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendModel(b []byte, m *ModelProto) []byte {
	b = appendVarint(b, 1, m.IRVersion)
	b = appendOptString(b, 2, m.ProducerName)
	b = appendOptString(b, 3, m.ProducerVersion)
	b = appendOptString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = appendVarint(b, 5, m.ModelVersion)
	}
	b = appendOptString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, appendGraph(nil, m.Graph))
	}
	for i := range m.OpsetImport {
		b = appendMessage(b, 8, appendOpset(nil, &m.OpsetImport[i]))
	}
	for i := range m.MetadataProps {
		b = appendMessage(b, 14, appendEntry(nil, &m.MetadataProps[i]))
	}
	for i := range m.Functions {
		b = appendMessage(b, 25, appendFunction(nil, &m.Functions[i]))
	}
	return b
}

func appendGraph(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		b = appendMessage(b, 1, appendNode(nil, &g.Nodes[i]))
	}
	b = appendOptString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, appendTensor(nil, &g.Initializers[i]))
	}
	b = appendOptString(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendMessage(b, 11, appendValueInfo(nil, &g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = appendMessage(b, 12, appendValueInfo(nil, &g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		b = appendMessage(b, 13, appendValueInfo(nil, &g.ValueInfo[i]))
	}
	return b
}

func appendNode(b []byte, n *NodeProto) []byte {
	for _, in := range n.Inputs {
		b = appendString(b, 1, in)
	}
	for _, out := range n.Outputs {
		b = appendString(b, 2, out)
	}
	b = appendOptString(b, 3, n.Name)
	b = appendOptString(b, 4, n.OpType)
	for i := range n.Attributes {
		b = appendMessage(b, 5, appendAttribute(nil, &n.Attributes[i]))
	}
	b = appendOptString(b, 6, n.DocString)
	b = appendOptString(b, 7, n.Domain)
	return b
}

func appendTensor(b []byte, t *TensorProto) []byte {
	for _, d := range t.Dims {
		b = appendVarint(b, 1, d)
	}
	if t.DataType != 0 {
		b = appendVarint(b, 2, int64(t.DataType))
	}
	if len(t.FloatData) > 0 {
		packed := make([]byte, 0, 4*len(t.FloatData))
		for _, f := range t.FloatData {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 4, packed)
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(int64(v)))
		}
		b = appendMessage(b, 5, packed)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendMessage(b, 7, packed)
	}
	b = appendOptString(b, 8, t.Name)
	if t.RawData != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	b = appendOptString(b, 12, t.DocString)
	for i := range t.ExternalData {
		b = appendMessage(b, 13, appendEntry(nil, &t.ExternalData[i]))
	}
	if t.DataLocation != DataLocationDefault {
		b = appendVarint(b, 14, int64(t.DataLocation))
	}
	return b
}

func appendValueInfo(b []byte, v *ValueInfoProto) []byte {
	b = appendString(b, 1, v.Name)
	if v.Type != nil {
		b = appendMessage(b, 2, appendType(nil, v.Type))
	}
	b = appendOptString(b, 3, v.DocString)
	return b
}

func appendType(b []byte, t *TypeProto) []byte {
	if t.TensorType != nil {
		var body []byte
		if t.TensorType.ElemType != 0 {
			body = appendVarint(body, 1, int64(t.TensorType.ElemType))
		}
		if t.TensorType.Shape != nil {
			body = appendMessage(body, 2, appendShape(nil, t.TensorType.Shape))
		}
		b = appendMessage(b, 1, body)
	}
	if t.SequenceType != nil {
		var body []byte
		if t.SequenceType.ElemType != nil {
			body = appendMessage(body, 1, appendType(nil, t.SequenceType.ElemType))
		}
		b = appendMessage(b, 4, body)
	}
	return b
}

func appendShape(b []byte, s *TensorShapeProto) []byte {
	for _, d := range s.Dims {
		var body []byte
		if d.DimParam != "" {
			body = appendString(body, 2, d.DimParam)
		} else {
			body = appendVarint(body, 1, d.DimValue)
		}
		b = appendMessage(b, 1, body)
	}
	return b
}

func appendAttribute(b []byte, a *AttributeProto) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = appendVarint(b, 3, a.I)
	case AttributeProtoString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessage(b, 5, appendTensor(nil, a.T))
		}
	case AttributeProtoGraph:
		if a.G != nil {
			b = appendMessage(b, 6, appendGraph(nil, a.G))
		}
	case AttributeProtoFloats:
		for _, f := range a.Floats {
			b = protowire.AppendTag(b, 7, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(f))
		}
	case AttributeProtoInts:
		for _, v := range a.Ints {
			b = appendVarint(b, 8, v)
		}
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 9, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	case AttributeProtoTensors:
		for i := range a.Tensors {
			b = appendMessage(b, 10, appendTensor(nil, &a.Tensors[i]))
		}
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			b = appendMessage(b, 11, appendGraph(nil, &a.Graphs[i]))
		}
	}
	b = appendOptString(b, 13, a.DocString)
	if a.Type != AttributeProtoUndefined {
		b = appendVarint(b, 20, int64(a.Type))
	}
	b = appendOptString(b, 21, a.RefAttrName)
	return b
}

func appendFunction(b []byte, f *FunctionProto) []byte {
	b = appendString(b, 1, f.Name)
	for _, in := range f.Inputs {
		b = appendString(b, 4, in)
	}
	for _, out := range f.Outputs {
		b = appendString(b, 5, out)
	}
	for _, attr := range f.Attributes {
		b = appendString(b, 6, attr)
	}
	for i := range f.Nodes {
		b = appendMessage(b, 7, appendNode(nil, &f.Nodes[i]))
	}
	b = appendOptString(b, 8, f.DocString)
	for i := range f.OpsetImport {
		b = appendMessage(b, 9, appendOpset(nil, &f.OpsetImport[i]))
	}
	b = appendOptString(b, 10, f.Domain)
	return b
}

func appendOpset(b []byte, o *OperatorSetID) []byte {
	b = appendString(b, 1, o.Domain)
	return appendVarint(b, 2, o.Version)
}

func appendEntry(b []byte, e *StringStringEntry) []byte {
	b = appendString(b, 1, e.Key)
	return appendString(b, 2, e.Value)
}
