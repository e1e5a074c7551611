package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/externaldata"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

const graphYAML = `
inputs:
  - {name: x, type: "float32[?, 3]"}
  - {name: fc.weight, type: "float32[3, 2]"}
nodes:
  - op: onnx::MatMul
    inputs: [x, fc.weight]
    outputs: [{name: y, type: "float32[?, 2]"}]
    source: model.py:3
    scope: Model/fc
outputs: [y]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := New(&out).RootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeInputs writes the graph description and a SafeTensors file with its weight.
func writeInputs(t *testing.T) (dir, graph, weights string) {
	t.Helper()
	dir = t.TempDir()
	graph = filepath.Join(dir, "linear.yaml")
	require.NoError(t, os.WriteFile(graph, []byte(graphYAML), 0o600))

	w, err := tensor.FromSlice(tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	weights = filepath.Join(dir, "linear.safetensors")
	_, err = externaldata.Materialize(context.Background(), externaldata.NewSafeTensorsSink(weights, nil),
		map[string]*tensor.RawTensor{"fc.weight": w})
	require.NoError(t, err)
	return dir, graph, weights
}

func TestExportCommand(t *testing.T) {
	dir, graph, weights := writeInputs(t)

	out, err := run(t, "export", "--graph", graph, "--weights", weights, "--dynamic-axis", "x:0=batch", "--opset", "13")
	require.NoError(t, err)
	assert.Contains(t, out, "linear.onnx")

	m, err := onnx.ParseFile(filepath.Join(dir, "linear.onnx"))
	require.NoError(t, err)
	require.NoError(t, onnx.CheckModel(m))
	assert.Equal(t, int64(13), m.OpsetImport[0].Version)
	require.Len(t, m.Graph.Initializers, 1)
	assert.Equal(t, "fc.weight", m.Graph.Initializers[0].Name)
	assert.Len(t, m.Graph.Initializers[0].RawData, 24)
	assert.Equal(t, "batch", m.Graph.Inputs[0].Type.TensorType.Shape.Dims[0].DimParam)
}

func TestExportCommand_DeferToDir(t *testing.T) {
	dir, graph, weights := writeInputs(t)
	model := filepath.Join(dir, "out", "model.onnx")
	require.NoError(t, os.MkdirAll(filepath.Dir(model), 0o755))

	_, err := run(t, "export", "-g", graph, "-w", weights, "-o", model, "--defer-to", filepath.Join(dir, "out", "weights"))
	require.NoError(t, err)

	m, err := onnx.ParseFile(model)
	require.NoError(t, err)
	init := m.Graph.Initializers[0]
	assert.Equal(t, int32(onnx.DataLocationExternal), init.DataLocation)
	assert.Empty(t, init.RawData)
	assert.Contains(t, init.ExternalData, onnx.StringStringEntry{Key: "location", Value: "weights/fc.weight"})

	data, err := os.ReadFile(filepath.Join(dir, "out", "weights", "fc.weight"))
	require.NoError(t, err)
	assert.Len(t, data, 24)
}

func TestExportCommand_DeferToSafeTensors(t *testing.T) {
	dir, graph, weights := writeInputs(t)
	target := filepath.Join(dir, "deferred.safetensors")

	_, err := run(t, "export", "-g", graph, "-w", weights, "--defer-to", target)
	require.NoError(t, err)

	m, err := onnx.ParseFile(filepath.Join(dir, "linear.onnx"))
	require.NoError(t, err)
	assert.Contains(t, m.Graph.Initializers[0].ExternalData, onnx.StringStringEntry{Key: "location", Value: "deferred.safetensors"})
	assert.FileExists(t, target)
}

func TestExportCommand_Errors(t *testing.T) {
	dir, graph, weights := writeInputs(t)

	_, err := run(t, "export")
	require.Error(t, err)

	_, err = run(t, "export", "-g", graph, "--external-data", "--defer-to", dir)
	require.Error(t, err)

	_, err = run(t, "export", "-g", graph, "-w", weights, "--policy", "caffe")
	require.Error(t, err)

	// Weights must name graph inputs.
	w, err := tensor.FromSlice(tensor.Shape{1}, []float32{1})
	require.NoError(t, err)
	stray := filepath.Join(dir, "stray.safetensors")
	_, err = externaldata.Materialize(context.Background(), externaldata.NewSafeTensorsSink(stray, nil),
		map[string]*tensor.RawTensor{"other": w})
	require.NoError(t, err)
	_, err = run(t, "export", "-g", graph, "-w", stray)
	require.ErrorContains(t, err, "not a graph input")

	// Packed-sequence operators are rejected by the onnx policy.
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("inputs: [x]\nnodes:\n  - {op: prim::PackPadded, inputs: [x], outputs: [y]}\noutputs: [y]\n"), 0o600))
	_, err = run(t, "export", "-g", bad)
	require.Error(t, err)
}

func TestCheckAndInspectCommands(t *testing.T) {
	dir, graph, weights := writeInputs(t)
	_, err := run(t, "export", "-g", graph, "-w", weights)
	require.NoError(t, err)
	model := filepath.Join(dir, "linear.onnx")

	out, err := run(t, "check", model)
	require.NoError(t, err)
	assert.Contains(t, out, model)

	garbage := filepath.Join(dir, "garbage.onnx")
	require.NoError(t, os.WriteFile(garbage, []byte{0xff, 0xff, 0xff}, 0o600))
	out, err = run(t, "check", model, garbage)
	require.ErrorContains(t, err, "1 of 2 models")
	assert.Contains(t, out, "garbage.onnx")

	out, err = run(t, "inspect", model)
	require.NoError(t, err)
	assert.Contains(t, out, "MatMul")
	assert.Contains(t, out, "onnxport")

	out, err = run(t, "inspect", "--dump", model)
	require.NoError(t, err)
	assert.Contains(t, out, "main_graph")
}

func TestLintCommand(t *testing.T) {
	_, graph, _ := writeInputs(t)
	out, err := run(t, "lint", graph)
	require.NoError(t, err)
	assert.Contains(t, out, "onnx")

	bare := filepath.Join(t.TempDir(), "bare.yaml")
	require.NoError(t, os.WriteFile(bare, []byte("inputs: [x]\nnodes:\n  - {op: onnx::Relu, inputs: [x], outputs: [y]}\noutputs: [y]\n"), 0o600))
	out, err = run(t, "lint", bare)
	require.NoError(t, err)
	assert.Contains(t, out, "onnx::Relu")

	_, err = run(t, "lint", "--strict", bare)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "onnxport")
}

func TestParseDynamicAxis(t *testing.T) {
	axes, err := parseDynamicAxis("encoder:hidden:1=seq")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]string{"encoder:hidden": {1: "seq"}}, axes)

	for _, bad := range []string{"x", ":0=a", "x:a=b", "x:0=", "x:-1=a", "x:0"} {
		_, err := parseDynamicAxis(bad)
		assert.Error(t, err, bad)
	}
}
