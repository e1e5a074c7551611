package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/tensor"
)

func TestValidateForeignCall(t *testing.T) {
	g := ir.NewGraph()
	x := g.AddInput("x", f32(2))
	n := g.Block().AppendNode(ir.PrimForeignCall, x).
		SetAttr("name", ir.StringAttr("my_callback")).
		SetSourceRange("model.py:12")
	g.RegisterOutput(n.AddOutput("y", f32(2)))

	for _, policy := range []OperatorExportType{PolicyONNX, PolicyNative, PolicyNativeFallback, PolicyFallthrough} {
		err := Validate(g, policy)
		require.ErrorIs(t, err, ErrUnexportableForeignOp, policy.String())
		var ee *ExportError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, "my_callback", ee.Op)
		assert.Contains(t, err.Error(), "my_callback")
		assert.Contains(t, err.Error(), "Defined at:\nmodel.py:12")
	}

	anon := ir.NewGraph()
	ax := anon.AddInput("x", f32(2))
	anon.Block().AppendNode(ir.PrimForeignCall, ax)
	err := Validate(anon, PolicyONNX)
	assert.ErrorContains(t, err, "<unnamed>")
}

func TestValidatePackedSequences(t *testing.T) {
	for _, op := range []ir.Symbol{ir.PrimPackPadded, ir.PrimPadPacked} {
		g := ir.NewGraph()
		x := g.AddInput("x", f32(4, 2))
		g.Block().AppendNode(op, x).AddOutput("", f32(4, 2))

		assert.ErrorIs(t, Validate(g, PolicyONNX), ErrUnpairedSequenceOp, op.String())
		assert.ErrorIs(t, Validate(g, PolicyNative), ErrUnpairedSequenceOp, op.String())
		assert.NoError(t, Validate(g, PolicyFallthrough), op.String())
	}
}

func TestValidateNativeOps(t *testing.T) {
	g := ir.NewGraph()
	x := g.AddInput("x", f32(2))
	g.Block().AppendNode(ir.MustParseSymbol("native::gelu"), x).AddOutput("y", f32(2))

	err := Validate(g, PolicyONNX)
	require.ErrorIs(t, err, ErrOperatorNotExportable)
	assert.Contains(t, err.Error(), "native::gelu")
	assert.NoError(t, Validate(g, PolicyNative))
	assert.NoError(t, Validate(g, PolicyNativeFallback))
	assert.NoError(t, Validate(g, PolicyFallthrough))

	// A native node that only yields the absent value is dropped, so it is accepted.
	none := ir.NewGraph()
	none.Block().AppendNode(ir.MustParseSymbol("native::empty")).AddOutput("", ir.NoneType{})
	assert.NoError(t, Validate(none, PolicyONNX))
}

func TestValidateNestedFirst(t *testing.T) {
	g := ir.NewGraph()
	cond := g.AddInput("cond", ir.Tensor(tensor.Bool))
	n := g.Block().AppendNode(ir.PrimForeignCall, cond).SetAttr("name", ir.StringAttr("outer"))
	inner := n.AddBlock()
	inner.AppendNode(ir.PrimForeignCall).SetAttr("name", ir.StringAttr("inner"))

	var ee *ExportError
	require.ErrorAs(t, Validate(g, PolicyONNX), &ee)
	assert.Equal(t, "inner", ee.Op)

	// Graph-valued attributes are checked too.
	sub := ir.NewGraph()
	sub.Block().AppendNode(ir.MustParseSymbol("native::gelu"))
	host := ir.NewGraph()
	host.Block().AppendNode(ir.MustParseSymbol("onnx::Scan")).SetAttr("body", ir.GraphAttr{Graph: sub})
	assert.ErrorIs(t, Validate(host, PolicyONNX), ErrOperatorNotExportable)
	host2 := ir.NewGraph()
	host2.Block().AppendNode(ir.MustParseSymbol("onnx::SequenceMap")).SetAttr("bodies", ir.GraphsAttr{sub})
	assert.ErrorIs(t, Validate(host2, PolicyONNX), ErrOperatorNotExportable)
}

func TestValidateDoesNotModify(t *testing.T) {
	g := addGraph()
	before := len(g.Nodes())
	require.NoError(t, Validate(g, PolicyONNX))
	assert.Len(t, g.Nodes(), before)
}

func TestParseOperatorExportType(t *testing.T) {
	for _, p := range []OperatorExportType{PolicyONNX, PolicyNative, PolicyNativeFallback, PolicyFallthrough} {
		parsed, err := ParseOperatorExportType(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParseOperatorExportType("raw")
	assert.Error(t, err)
	assert.False(t, PolicyONNX.AllowsNative())
}

func TestLint(t *testing.T) {
	g := ir.NewGraph()
	x := g.AddInput("x", f32(2))
	c := g.Block().AppendNode(ir.PrimConstant).AddOutput("c", f32(2))
	add := g.Block().AppendNode(opAdd, x, c).SetSourceRange("model.py:1").SetScope("Model/Linear")
	loop := g.Block().AppendNode(ir.ONNXLoop, add.AddOutput("s", f32(2))).SetSourceRange("model.py:2")
	body := loop.AddBlock()
	body.AppendNode(ir.ONNXConstant).SetScope("Model/Loop")

	r := Lint(g)
	assert.Equal(t, 4, r.Nodes)
	assert.Equal(t, 2, r.MissingSourceRange)
	assert.Equal(t, 2, r.MissingSourceRangeConstants)
	assert.Equal(t, 2, r.MissingScope)
	assert.Equal(t, 1, r.MissingScopeConstants)
	assert.Equal(t, []string{"prim::Constant", "onnx::Loop", "onnx::Constant"}, r.Ops)
	assert.False(t, r.Clean())

	assert.True(t, Lint(ir.NewGraph()).Clean())
}
