// Package onnx exports computation graphs as ONNX models.
//
// A graph (see package graph) is encoded together with the payloads of its
// initializers into a ModelProto, which can be serialized, checked and
// parsed back.
//
// # Example Usage
//
//	g := graph.NewGraph()
//	x := g.AddInput("x", graph.Tensor(tensor.Float32, graph.StaticDim(1), graph.StaticDim(3)))
//	w := g.AddInput("w", graph.Tensor(tensor.Float32, graph.StaticDim(3), graph.StaticDim(2)))
//	mm := g.Block().AppendNode(graph.MustParseSymbol("onnx::MatMul"), x, w)
//	g.RegisterOutput(mm.AddOutput("y", graph.Tensor(tensor.Float32, graph.StaticDim(1), graph.StaticDim(2))))
//
//	res, err := onnx.ExportToFile("model.onnx", g, map[string]*tensor.RawTensor{"w": weights}, onnx.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Warnings)
//
// Malformed graphs (for example a Loop node without exactly one block)
// cause Export to panic; wrap the call with exceptions.TryCatch[error] from
// github.com/gomlx/exceptions to receive them as errors.
package onnx

import (
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/onnxport/graph"
	"github.com/born-ml/onnxport/internal/export"
	internalonnx "github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/tensor"
)

// Options configures an export session.
type Options = export.Options

// Result is everything one export produces.
type Result = export.Result

// OperatorExportType selects which operators may be exported.
type OperatorExportType = export.OperatorExportType

// Export policies.
const (
	PolicyONNX           = export.PolicyONNX
	PolicyNative         = export.PolicyNative
	PolicyNativeFallback = export.PolicyNativeFallback
	PolicyFallthrough    = export.PolicyFallthrough
)

// ExportError describes an export failure. Use errors.Is with the Err* values.
type ExportError = export.ExportError

// Errors returned by Export and its helpers.
var (
	ErrUnsupportedType        = export.ErrUnsupportedType
	ErrUnexportableForeignOp  = export.ErrUnexportableForeignOp
	ErrUnpairedSequenceOp     = export.ErrUnpairedSequenceOp
	ErrOperatorNotExportable  = export.ErrOperatorNotExportable
	ErrUnknownAttributeKind   = export.ErrUnknownAttributeKind
	ErrConflictingExportMode  = export.ErrConflictingExportMode
	ErrExternalWriteFailed    = export.ErrExternalWriteFailed
	ErrMissingFilePath        = export.ErrMissingFilePath
	ErrModelTooLarge          = export.ErrModelTooLarge
	ErrInvalidSerializedModel = export.ErrInvalidSerializedModel
)

// LintReport counts nodes that lack provenance.
type LintReport = export.LintReport

// DefaultOptions returns opset 17, the onnx policy, node names and
// initializers kept as graph inputs.
func DefaultOptions() Options {
	return export.DefaultOptions()
}

// ParseOperatorExportType parses "onnx", "onnx_native", "onnx_native_fallback"
// or "onnx_fallthrough".
func ParseOperatorExportType(s string) (OperatorExportType, error) {
	return export.ParseOperatorExportType(s)
}

// Export encodes g with the given initializer payloads.
func Export(g *graph.Graph, initializers map[string]*tensor.RawTensor, opts Options) (*Result, error) {
	return export.Export(g, initializers, opts)
}

// ExportToFile exports g and writes the model to path.
func ExportToFile(path string, g *graph.Graph, initializers map[string]*tensor.RawTensor, opts Options) (*Result, error) {
	return export.ExportToFile(path, g, initializers, opts)
}

// Serialize encodes a model in the protobuf wire format.
func Serialize(m *ModelProto) ([]byte, error) {
	return export.Serialize(m)
}

// Validate reports the first node of g that cannot be exported under policy.
func Validate(g *graph.Graph, policy OperatorExportType) error {
	return export.Validate(g, policy)
}

// Lint counts the nodes of g without a source range or scope.
func Lint(g *graph.Graph) LintReport {
	return export.Lint(g)
}

// Check parses the model file at path and verifies its structure.
func Check(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the caller
	if err != nil {
		return errors.Wrap(err, "failed to read model")
	}
	return export.CheckSerialized(data)
}

// CheckModel verifies the structure of an in-memory model.
func CheckModel(m *ModelProto) error {
	return internalonnx.CheckModel(m)
}

// Parse decodes a serialized model.
func Parse(data []byte) (*ModelProto, error) {
	return internalonnx.Parse(data)
}

// ParseFile reads and decodes a model file.
func ParseFile(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}
