package export

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/tensor"
)

var (
	opAdd    = ir.MustParseSymbol("onnx::Add")
	opMatMul = ir.MustParseSymbol("onnx::MatMul")
	opRelu   = ir.MustParseSymbol("onnx::Relu")
)

func f32(dims ...int64) *ir.TensorType {
	ds := make([]ir.Dim, len(dims))
	for i, d := range dims {
		ds[i] = ir.StaticDim(d)
	}
	return ir.Tensor(tensor.Float32, ds...)
}

// addGraph builds c = a + b over float32[2,3].
func addGraph() *ir.Graph {
	g := ir.NewGraph()
	a := g.AddInput("a", f32(2, 3))
	b := g.AddInput("b", f32(2, 3))
	n := g.Block().AppendNode(opAdd, a, b).SetSourceRange("model.py:3")
	g.RegisterOutput(n.AddOutput("c", f32(2, 3)))
	return g
}

// linearGraph builds y = relu(x @ w) with w bound to an initializer of n elements.
func linearGraph(t *testing.T, n int) (*ir.Graph, map[string]*tensor.RawTensor) {
	t.Helper()
	g := ir.NewGraph()
	x := g.AddInput("x", f32(1, int64(n)))
	w := g.AddInput("layer/weight:0", f32(int64(n), 1))
	mm := g.Block().AppendNode(opMatMul, x, w)
	h := mm.AddOutput("h", f32(1, 1))
	relu := g.Block().AppendNode(opRelu, h)
	g.RegisterOutput(relu.AddOutput("y", f32(1, 1)))

	values := make([]float32, n)
	for i := range values {
		values[i] = float32(i)
	}
	weight, err := tensor.FromSlice(tensor.Shape{n, 1}, values)
	require.NoError(t, err)
	return g, map[string]*tensor.RawTensor{"layer/weight:0": weight}
}

// recoverExport runs Export and converts precondition panics into errors.
func recoverExport(g *ir.Graph, inits map[string]*tensor.RawTensor, opts Options) (res *Result, err error) {
	panicErr := exceptions.TryCatch[error](func() {
		res, err = Export(g, inits, opts)
	})
	if panicErr != nil {
		return nil, panicErr
	}
	return res, err
}
