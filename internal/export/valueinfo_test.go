package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

func dimParams(vi onnx.ValueInfoProto) []string {
	var out []string
	for _, d := range vi.Type.TensorType.Shape.Dims {
		out = append(out, d.DimParam)
	}
	return out
}

func TestSymbolicDimNames(t *testing.T) {
	g := ir.NewGraph()
	batch := g.NewSymbol()
	seq := g.NewSymbol()
	x := g.AddInput("x", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.SymbolicDim(seq)))
	n := g.Block().AppendNode(ir.MustParseSymbol("onnx::Shape"), x)
	fresh := g.NewSymbol()
	g.RegisterOutput(n.AddOutput("y", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.SymbolicDim(fresh))))

	res, err := Export(g, nil, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"x_dim_0", "x_dim_1"}, dimParams(res.Model.Graph.Inputs[0]))
	// A symbol keeps the first name it was given.
	assert.Equal(t, []string{"x_dim_0", "Shapey_dim_1"}, dimParams(res.Model.Graph.Outputs[0]))
	assert.Equal(t, map[ir.ShapeSymbol]string{batch: "x_dim_0", seq: "x_dim_1", fresh: "Shapey_dim_1"}, res.SymbolDims)
}

func TestDynamicAxes(t *testing.T) {
	g := ir.NewGraph()
	batch := g.NewSymbol()
	x := g.AddInput("x", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.StaticDim(8)))
	n := g.Block().AppendNode(opRelu, x)
	g.RegisterOutput(n.AddOutput("y", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.StaticDim(8))))

	opts := DefaultOptions()
	opts.DynamicAxes = map[string]map[int]string{
		"x": {0: "batch"},
		"y": {1: "features"},
	}
	res, err := Export(g, nil, opts)
	require.NoError(t, err)

	in := res.Model.Graph.Inputs[0].Type.TensorType.Shape.Dims
	assert.Equal(t, []onnx.DimensionProto{{DimParam: "batch"}, {DimValue: 8}}, in)
	// The symbol bound by the override is reused, and a static dim can be made dynamic.
	out := res.Model.Graph.Outputs[0].Type.TensorType.Shape.Dims
	assert.Equal(t, []onnx.DimensionProto{{DimParam: "batch"}, {DimParam: "features"}}, out)
	assert.Equal(t, "batch", res.SymbolDims[batch])
}

func TestValueTypes(t *testing.T) {
	g := ir.NewGraph()
	g.AddInput("flag", ir.BoolType{})
	g.AddInput("count", ir.IntType{})
	g.AddInput("scale", ir.FloatType{})
	g.AddInput("unknown", ir.UnrankedTensor(tensor.Undefined))
	g.AddInput("unranked", ir.UnrankedTensor(tensor.Float16))
	g.AddInput("list", &ir.ListType{Elem: f32(3)})
	g.AddInput("none", ir.NoneType{})

	res, err := Export(g, nil, DefaultOptions())
	require.NoError(t, err)
	in := res.Model.Graph.Inputs
	require.Len(t, in, 7)

	scalar := func(elem int32) *onnx.TypeProto {
		return &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elem, Shape: &onnx.TensorShapeProto{}}}
	}
	assert.Equal(t, scalar(onnx.TensorProtoBool), in[0].Type)
	assert.Equal(t, scalar(onnx.TensorProtoInt64), in[1].Type)
	assert.Equal(t, scalar(onnx.TensorProtoFloat), in[2].Type)
	assert.Nil(t, in[3].Type)
	assert.Equal(t, &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoFloat16}}, in[4].Type)
	require.NotNil(t, in[5].Type.SequenceType)
	assert.Equal(t, int32(onnx.TensorProtoFloat), in[5].Type.SequenceType.ElemType.TensorType.ElemType)
	assert.Nil(t, in[6].Type)
}

func TestUnsupportedValueType(t *testing.T) {
	g := ir.NewGraph()
	g.AddInput("z", ir.Tensor(tensor.Complex128, ir.StaticDim(2)))
	_, err := Export(g, nil, DefaultOptions())
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Contains(t, err.Error(), `"z"`)
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linear.onnx")
	g, inits := linearGraph(t, 2000)

	opts := DefaultOptions()
	opts.UseExternalData = true
	res, err := ExportToFile(path, g, inits, opts)
	require.NoError(t, err)
	assert.True(t, res.UsedExternalData)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, CheckSerialized(data))
	assert.FileExists(t, filepath.Join(dir, "layer_weight_0"))

	info, err := onnx.GetModelInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.ExternalCount)
	assert.Equal(t, 2, info.NodeCount)
}

func TestExportErrorMessage(t *testing.T) {
	err := &ExportError{
		Err:       ErrUnknownAttributeKind,
		Op:        "onnx::Add",
		Attribute: "alpha",
		Details:   "bad",
		Source:    "model.py:4",
	}
	assert.Equal(t, ErrUnknownAttributeKind.Error()+`: onnx::Add: attribute "alpha": bad`+"\n\nDefined at:\nmodel.py:4", err.Error())
	assert.ErrorIs(t, err, ErrUnknownAttributeKind)
}

func TestGraphAttrSymbolsAreDistinct(t *testing.T) {
	g := ir.NewGraph()
	batch := g.NewSymbol()
	x := g.AddInput("x", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.StaticDim(3)))

	body := ir.NewGraph()
	steps := body.NewSymbol()
	y := body.AddInput("y", ir.Tensor(tensor.Float32, ir.SymbolicDim(steps)))
	relu := body.Block().AppendNode(opRelu, y)
	body.RegisterOutput(relu.AddOutput("z", ir.Tensor(tensor.Float32, ir.SymbolicDim(steps))))

	scan := g.Block().AppendNode(ir.MustParseSymbol("onnx::Scan"), x).SetAttr("body", ir.GraphAttr{Graph: body})
	g.RegisterOutput(scan.AddOutput("out", ir.Tensor(tensor.Float32, ir.SymbolicDim(batch), ir.StaticDim(3))))

	res, err := Export(g, nil, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"x_dim_0", ""}, dimParams(res.Model.Graph.Inputs[0]))
	sub := res.Model.Graph.Nodes[0].Attributes[0].G
	require.NotNil(t, sub)
	assert.Equal(t, []string{"y_dim_0"}, dimParams(sub.Inputs[0]))
	assert.Equal(t, []string{"y_dim_0"}, dimParams(sub.Outputs[0]))
	assert.Equal(t, map[ir.ShapeSymbol]string{batch: "x_dim_0", steps: "y_dim_0"}, res.SymbolDims)
}
