package onnx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopModel() *ModelProto {
	body := &GraphProto{
		Name: "body",
		Nodes: []NodeProto{
			{OpType: "Identity", Inputs: []string{"cond_in"}, Outputs: []string{"cond_out"}},
			{OpType: "Add", Inputs: []string{"acc_in", "w"}, Outputs: []string{"acc_out"}},
		},
		Inputs: []ValueInfoProto{
			{Name: "iter", Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoInt64, Shape: &TensorShapeProto{}}}},
			{Name: "cond_in", Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoBool}}},
			{Name: "acc_in"},
		},
		Outputs: []ValueInfoProto{{Name: "cond_out"}, {Name: "acc_out"}},
	}
	return &ModelProto{
		IRVersion:    8,
		ProducerName: "onnxport",
		OpsetImport:  []OperatorSetID{{Domain: "", Version: 17}, {Domain: "custom", Version: 1}},
		Graph: &GraphProto{
			Name: "main_graph",
			Nodes: []NodeProto{
				{
					Name: "Loop_0", OpType: "Loop", Inputs: []string{"", "cond", "acc"}, Outputs: []string{"out"},
					Attributes: []AttributeProto{{Name: "body", Type: AttributeProtoGraph, G: body}},
				},
				{
					OpType: "Scale", Domain: "custom", Inputs: []string{"out"}, Outputs: []string{"y"},
					Attributes: []AttributeProto{
						{Name: "factor", Type: AttributeProtoFloat, F: 0},
						{Name: "axes", Type: AttributeProtoInts, Ints: []int64{0, -1}},
						{Name: "modes", Type: AttributeProtoStrings, Strings: [][]byte{[]byte("a"), []byte("b")}},
					},
				},
			},
			Inputs: []ValueInfoProto{
				{Name: "cond", Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoBool, Shape: &TensorShapeProto{}}}},
				{Name: "acc", Type: &TypeProto{SequenceType: &SequenceTypeProto{ElemType: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoFloat}}}}},
			},
			Outputs: []ValueInfoProto{{Name: "y", Type: &TypeProto{TensorType: &TensorTypeProto{
				ElemType: TensorProtoFloat,
				Shape:    &TensorShapeProto{Dims: []DimensionProto{{DimParam: "batch"}, {DimValue: 0}}},
			}}}},
			Initializers: []TensorProto{
				{Name: "w", DataType: TensorProtoFloat, Dims: []int64{1}, RawData: []byte{0, 0, 128, 63}},
				{Name: "big", DataType: TensorProtoFloat, Dims: []int64{2048}, DataLocation: DataLocationExternal,
					ExternalData: []StringStringEntry{{Key: "location", Value: "big"}}},
			},
		},
		Functions: []FunctionProto{{
			Name: "Scale", Domain: "custom", Inputs: []string{"x"}, Outputs: []string{"y"}, Attributes: []string{"factor"},
			Nodes: []NodeProto{{
				OpType: "Mul", Inputs: []string{"x", "x"}, Outputs: []string{"y"},
				Attributes: []AttributeProto{{Name: "f", RefAttrName: "factor", Type: AttributeProtoFloat}},
			}},
			OpsetImport: []OperatorSetID{{Version: 17}},
		}},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	model := loopModel()
	data := Marshal(model)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, model, parsed)
	require.NoError(t, CheckModel(parsed))

	// Re-encoding the parsed model yields identical bytes.
	assert.True(t, bytes.Equal(data, Marshal(parsed)))
}

func TestMarshalZeroValuedAttributesSurvive(t *testing.T) {
	parsed, err := Parse(Marshal(loopModel()))
	require.NoError(t, err)

	attr := parsed.Graph.Nodes[1].Attributes[0]
	assert.Equal(t, int32(AttributeProtoFloat), attr.Type)
	assert.Equal(t, float32(0), attr.F)
	dims := parsed.Graph.Outputs[0].Type.TensorType.Shape.Dims
	assert.Equal(t, DimensionProto{DimValue: 0}, dims[1])
}

func TestTensorSize(t *testing.T) {
	tp := &TensorProto{Name: "w", DataType: TensorProtoFloat, Dims: []int64{256}, RawData: make([]byte, 1024)}
	assert.Equal(t, len(MarshalTensor(tp)), tp.Size())
	assert.Greater(t, tp.Size(), 1024)
}

func TestFormat(t *testing.T) {
	text := Format(loopModel())
	assert.Contains(t, text, "graph main_graph {")
	assert.Contains(t, text, "out = Loop(, cond, acc) name=Loop_0 body=<graph body>")
	assert.Contains(t, text, "y: FLOAT[batch,0]")
	assert.Contains(t, text, "big: FLOAT[2048] external=big")
	assert.Contains(t, text, "function custom::Scale(x) -> (y) attrs[factor]")
	assert.Contains(t, text, "f=@factor")

	hist := OpHistogram(loopModel())
	assert.Equal(t, map[string]int{"Loop": 1, "custom.Scale": 1, "Identity": 1, "Add": 1}, hist)
	assert.Equal(t, []string{"Add", "Identity", "Loop", "custom.Scale"}, SortedKeys(hist))
}
