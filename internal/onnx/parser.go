package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// ParseTensor parses a single TensorProto.
func ParseTensor(data []byte) (*TensorProto, error) {
	t := &TensorProto{}
	if err := readTensorProto(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tensor: %w", err)
	}
	return t, nil
}

// field is one decoded (tag, value) pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	u     uint64 // varint, fixed32 and fixed64 payloads
	bytes []byte // length-delimited payload
}

// walkFields calls fn for every field of the message encoded in data.
func walkFields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(data)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: unexpected wire type %d (want %d)", f.num, f.typ, typ)
	}
	return nil
}

func (f field) int64() (int64, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return int64(f.u), nil
}

func (f field) int32() (int32, error) {
	v, err := f.int64()
	return int32(v), err
}

func (f field) str() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func (f field) raw() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	return append([]byte{}, f.bytes...), nil
}

func (f field) float32() (float32, error) {
	if err := f.expect(protowire.Fixed32Type); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(f.u)), nil
}

// int64s decodes a repeated varint field in either packed or unpacked form.
func (f field) int64s(dst []int64) ([]int64, error) {
	if f.typ == protowire.VarintType {
		return append(dst, int64(f.u)), nil
	}
	if err := f.expect(protowire.BytesType); err != nil {
		return dst, err
	}
	data := f.bytes
	for len(data) > 0 {
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return dst, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
		}
		dst = append(dst, int64(v))
		data = data[n:]
	}
	return dst, nil
}

// float32s decodes a repeated fixed32 float field in either packed or unpacked form.
func (f field) float32s(dst []float32) ([]float32, error) {
	if f.typ == protowire.Fixed32Type {
		return append(dst, math.Float32frombits(uint32(f.u))), nil
	}
	if err := f.expect(protowire.BytesType); err != nil {
		return dst, err
	}
	if len(f.bytes)%4 != 0 {
		return dst, fmt.Errorf("field %d: packed float length %d not a multiple of 4", f.num, len(f.bytes))
	}
	data := f.bytes
	for len(data) > 0 {
		v, n := protowire.ConsumeFixed32(data)
		dst = append(dst, math.Float32frombits(v))
		data = data[n:]
	}
	return dst, nil
}

// message decodes a length-delimited sub-message with read.
func message[T any](f field, read func([]byte, *T) error) (T, error) {
	var m T
	if err := f.expect(protowire.BytesType); err != nil {
		return m, err
	}
	err := read(f.bytes, &m)
	return m, err
}

// readModelProto reads ModelProto message.
//
//nolint:gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readModelProto(data []byte, m *ModelProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // ir_version
			m.IRVersion, err = f.int64()
		case 2: // producer_name
			m.ProducerName, err = f.str()
		case 3: // producer_version
			m.ProducerVersion, err = f.str()
		case 4: // domain
			m.Domain, err = f.str()
		case 5: // model_version
			m.ModelVersion, err = f.int64()
		case 6: // doc_string
			m.DocString, err = f.str()
		case 7: // graph
			var g GraphProto
			g, err = message(f, readGraphProto)
			m.Graph = &g
		case 8: // opset_import
			var o OperatorSetID
			o, err = message(f, readOperatorSetID)
			m.OpsetImport = append(m.OpsetImport, o)
		case 14: // metadata_props
			var e StringStringEntry
			e, err = message(f, readStringStringEntry)
			m.MetadataProps = append(m.MetadataProps, e)
		case 25: // functions
			var fn FunctionProto
			fn, err = message(f, readFunctionProto)
			m.Functions = append(m.Functions, fn)
		}
		return err
	})
}

// readGraphProto reads GraphProto message.
func readGraphProto(data []byte, m *GraphProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // node
			var n NodeProto
			n, err = message(f, readNodeProto)
			m.Nodes = append(m.Nodes, n)
		case 2: // name
			m.Name, err = f.str()
		case 5: // initializer
			var t TensorProto
			t, err = message(f, readTensorProto)
			m.Initializers = append(m.Initializers, t)
		case 10: // doc_string
			m.DocString, err = f.str()
		case 11: // input
			var v ValueInfoProto
			v, err = message(f, readValueInfoProto)
			m.Inputs = append(m.Inputs, v)
		case 12: // output
			var v ValueInfoProto
			v, err = message(f, readValueInfoProto)
			m.Outputs = append(m.Outputs, v)
		case 13: // value_info
			var v ValueInfoProto
			v, err = message(f, readValueInfoProto)
			m.ValueInfo = append(m.ValueInfo, v)
		}
		return err
	})
}

// readNodeProto reads NodeProto message.
func readNodeProto(data []byte, m *NodeProto) error {
	return walkFields(data, func(f field) error {
		var err error
		var s string
		switch f.num {
		case 1: // input
			s, err = f.str()
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			s, err = f.str()
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = f.str()
		case 4: // op_type
			m.OpType, err = f.str()
		case 5: // attribute
			var a AttributeProto
			a, err = message(f, readAttributeProto)
			m.Attributes = append(m.Attributes, a)
		case 6: // doc_string
			m.DocString, err = f.str()
		case 7: // domain
			m.Domain, err = f.str()
		}
		return err
	})
}

// readTensorProto reads TensorProto message.
//
//nolint:gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readTensorProto(data []byte, m *TensorProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // dims
			m.Dims, err = f.int64s(m.Dims)
		case 2: // data_type
			m.DataType, err = f.int32()
		case 4: // float_data
			m.FloatData, err = f.float32s(m.FloatData)
		case 5: // int32_data
			var vals []int64
			vals, err = f.int64s(nil)
			for _, v := range vals {
				m.Int32Data = append(m.Int32Data, int32(v))
			}
		case 7: // int64_data
			m.Int64Data, err = f.int64s(m.Int64Data)
		case 8: // name
			m.Name, err = f.str()
		case 9: // raw_data
			m.RawData, err = f.raw()
		case 12: // doc_string
			m.DocString, err = f.str()
		case 13: // external_data
			var e StringStringEntry
			e, err = message(f, readStringStringEntry)
			m.ExternalData = append(m.ExternalData, e)
		case 14: // data_location
			m.DataLocation, err = f.int32()
		}
		return err
	})
}

// readValueInfoProto reads ValueInfoProto message.
func readValueInfoProto(data []byte, m *ValueInfoProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 2: // type
			var t TypeProto
			t, err = message(f, readTypeProto)
			m.Type = &t
		case 3: // doc_string
			m.DocString, err = f.str()
		}
		return err
	})
}

// readTypeProto reads TypeProto message.
func readTypeProto(data []byte, m *TypeProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // tensor_type
			var t TensorTypeProto
			t, err = message(f, readTensorTypeProto)
			m.TensorType = &t
		case 4: // sequence_type
			var s SequenceTypeProto
			s, err = message(f, readSequenceTypeProto)
			m.SequenceType = &s
		}
		return err
	})
}

// readTensorTypeProto reads TypeProto.Tensor message.
func readTensorTypeProto(data []byte, m *TensorTypeProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // elem_type
			m.ElemType, err = f.int32()
		case 2: // shape
			var s TensorShapeProto
			s, err = message(f, readTensorShapeProto)
			m.Shape = &s
		}
		return err
	})
}

// readSequenceTypeProto reads TypeProto.Sequence message.
func readSequenceTypeProto(data []byte, m *SequenceTypeProto) error {
	return walkFields(data, func(f field) error {
		if f.num != 1 { // elem_type
			return nil
		}
		t, err := message(f, readTypeProto)
		m.ElemType = &t
		return err
	})
}

// readTensorShapeProto reads TensorShapeProto message.
func readTensorShapeProto(data []byte, m *TensorShapeProto) error {
	return walkFields(data, func(f field) error {
		if f.num != 1 { // dim
			return nil
		}
		d, err := message(f, readDimensionProto)
		m.Dims = append(m.Dims, d)
		return err
	})
}

// readDimensionProto reads TensorShapeProto.Dimension message.
func readDimensionProto(data []byte, m *DimensionProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // dim_value
			m.DimValue, err = f.int64()
		case 2: // dim_param
			m.DimParam, err = f.str()
		}
		return err
	})
}

// readAttributeProto reads AttributeProto message.
//
//nolint:gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readAttributeProto(data []byte, m *AttributeProto) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 2: // f
			m.F, err = f.float32()
		case 3: // i
			m.I, err = f.int64()
		case 4: // s
			m.S, err = f.raw()
		case 5: // t
			var t TensorProto
			t, err = message(f, readTensorProto)
			m.T = &t
		case 6: // g
			var g GraphProto
			g, err = message(f, readGraphProto)
			m.G = &g
		case 7: // floats
			m.Floats, err = f.float32s(m.Floats)
		case 8: // ints
			m.Ints, err = f.int64s(m.Ints)
		case 9: // strings
			var s []byte
			s, err = f.raw()
			m.Strings = append(m.Strings, s)
		case 10: // tensors
			var t TensorProto
			t, err = message(f, readTensorProto)
			m.Tensors = append(m.Tensors, t)
		case 11: // graphs
			var g GraphProto
			g, err = message(f, readGraphProto)
			m.Graphs = append(m.Graphs, g)
		case 13: // doc_string
			m.DocString, err = f.str()
		case 20: // type
			m.Type, err = f.int32()
		case 21: // ref_attr_name
			m.RefAttrName, err = f.str()
		}
		return err
	})
}

// readFunctionProto reads FunctionProto message.
func readFunctionProto(data []byte, m *FunctionProto) error {
	return walkFields(data, func(f field) error {
		var err error
		var s string
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 4: // input
			s, err = f.str()
			m.Inputs = append(m.Inputs, s)
		case 5: // output
			s, err = f.str()
			m.Outputs = append(m.Outputs, s)
		case 6: // attribute
			s, err = f.str()
			m.Attributes = append(m.Attributes, s)
		case 7: // node
			var n NodeProto
			n, err = message(f, readNodeProto)
			m.Nodes = append(m.Nodes, n)
		case 8: // doc_string
			m.DocString, err = f.str()
		case 9: // opset_import
			var o OperatorSetID
			o, err = message(f, readOperatorSetID)
			m.OpsetImport = append(m.OpsetImport, o)
		case 10: // domain
			m.Domain, err = f.str()
		}
		return err
	})
}

// readOperatorSetID reads OperatorSetIdProto message.
func readOperatorSetID(data []byte, m *OperatorSetID) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // domain
			m.Domain, err = f.str()
		case 2: // version
			m.Version, err = f.int64()
		}
		return err
	})
}

// readStringStringEntry reads StringStringEntryProto message.
func readStringStringEntry(data []byte, m *StringStringEntry) error {
	return walkFields(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // key
			m.Key, err = f.str()
		case 2: // value
			m.Value, err = f.str()
		}
		return err
	})
}
