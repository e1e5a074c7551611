package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// MaxProtoSize is the largest message protobuf can serialize.
const MaxProtoSize = math.MaxInt32

// initializerSizeLimit is the initializer size above which Export switches to
// external data. Tests lower it.
var initializerSizeLimit uint64 = MaxProtoSize

// Result is everything produced by one export session.
type Result struct {
	Model *onnx.ModelProto

	// ExportMap holds the payloads of deferred initializers, keyed by name.
	// It is empty unless Options.DeferWeightExport is set.
	ExportMap map[string]*tensor.RawTensor

	// SymbolDims records the name chosen for every symbolic dimension encoded.
	SymbolDims map[ir.ShapeSymbol]string

	// UsedExternalData reports whether large tensors were written to files,
	// either because Options.UseExternalData was set or because the
	// initializers would not fit in a single protobuf message.
	UsedExternalData bool

	// Warnings lists non-fatal problems, also logged through klog.
	Warnings []string
}

// session holds the mutable state of one export. Nothing is shared between sessions.
type session struct {
	opts    Options
	graph   *ir.Graph
	model   *onnx.ModelProto
	tensors *TensorEncoder

	numBlocks       int
	numOpNodes      int
	numExternalData int

	domains    map[string]struct{}
	symbolDims map[ir.ShapeSymbol]string
	warnings   []string
}

// Export encodes g into an ONNX model.
//
// initializers maps root-block input names to their constant payloads. Errors
// describe graphs or options that cannot be exported. Violated structural
// preconditions (more initializers than graph inputs, external data without a
// model path, malformed control-flow nodes) panic; use
// exceptions.TryCatch[error] to recover them as errors.
func Export(g *ir.Graph, initializers map[string]*tensor.RawTensor, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.DeferWeightExport && opts.UseExternalData {
		return nil, &ExportError{Err: ErrConflictingExportMode}
	}

	s := &session{
		opts:  opts,
		graph: g,
		model: &onnx.ModelProto{
			IRVersion:       opts.IRVersion,
			ProducerName:    opts.ProducerName,
			ProducerVersion: opts.ProducerVersion,
		},
		tensors: &TensorEncoder{
			Threshold:       opts.ExternalThreshold,
			UseExternalData: opts.UseExternalData,
			DeferExport:     opts.DeferWeightExport,
			ExportMap:       make(map[string]*tensor.RawTensor),
		},
		domains:    make(map[string]struct{}),
		symbolDims: make(map[ir.ShapeSymbol]string),
	}

	if err := Validate(g, opts.Policy); err != nil {
		return nil, err
	}

	if !s.tensors.UseExternalData && !opts.DeferWeightExport && opts.ModelPath != "" {
		size, err := initializersSize(g, initializers)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("initializers need %s of protobuf", humanize.Bytes(size))
		if size > initializerSizeLimit {
			klog.Infof("model exceeds the 2GiB protobuf limit (%s), storing parameters in external data files", humanize.Bytes(size))
			s.tensors.UseExternalData = true
		}
	}
	if s.tensors.UseExternalData {
		if opts.ModelPath == "" {
			exceptions.Panicf("%v: external data is enabled but no model path was given", ErrMissingFilePath)
		}
		s.tensors.Dir = FileRootPath(opts.ModelPath)
	}

	s.model.OpsetImport = append(s.model.OpsetImport, onnx.OperatorSetID{Version: opts.OpsetVersion})

	graph := &onnx.GraphProto{}
	if err := s.encodeBlock(graph, g.Block(), initializers, opts.DynamicAxes, opts.KeepInitializersAsInputs, opts.AddNodeNames); err != nil {
		return nil, err
	}
	s.model.Graph = graph
	s.finalizeOpsets()

	return &Result{
		Model:            s.model,
		ExportMap:        s.tensors.ExportMap,
		SymbolDims:       s.symbolDims,
		UsedExternalData: s.tensors.UseExternalData,
		Warnings:         s.warnings,
	}, nil
}

// initializersSize sums the encoded sizes of the initializer records that
// embedding every initializer would produce.
func initializersSize(g *ir.Graph, initializers map[string]*tensor.RawTensor) (uint64, error) {
	var total uint64
	for _, in := range g.Inputs() {
		t, ok := initializers[in.Name()]
		if !ok {
			continue
		}
		dt, err := ToONNX(t.DType())
		if err != nil {
			return 0, errors.WithMessagef(err, "initializer %q", in.Name())
		}
		tp := onnx.TensorProto{Name: in.Name(), Dims: t.Shape().Int64s(), DataType: dt}
		total += uint64(tp.Size() + onnx.RawDataFieldSize(t.ByteSize()))
	}
	return total, nil
}

func (s *session) blockName() string {
	name := s.opts.GraphName
	if s.numBlocks > 0 {
		name += fmt.Sprint(s.numBlocks)
	}
	s.numBlocks++
	return name
}

func (s *session) encodeBlock(gp *onnx.GraphProto, b *ir.Block, initializers map[string]*tensor.RawTensor,
	dynamicAxes map[string]map[int]string, keepInitializersAsInputs, addNodeNames bool,
) error {
	gp.Name = s.blockName()

	for _, in := range b.Inputs() {
		if _, isInit := initializers[in.Name()]; isInit && !keepInitializersAsInputs {
			continue
		}
		vi, err := s.encodeValueInfo(in, dynamicAxes)
		if err != nil {
			return err
		}
		gp.Inputs = append(gp.Inputs, vi)
	}

	for _, out := range b.Outputs() {
		vi, err := s.encodeValueInfo(out, dynamicAxes)
		if err != nil {
			return err
		}
		gp.Outputs = append(gp.Outputs, vi)
	}

	for _, n := range b.Nodes() {
		if n.MustBeNone() {
			// Absent values are encoded as "" where they are used.
			continue
		}
		if n.Kind() == ir.ONNXLocalFunctionDef {
			if err := s.encodeLocalFunction(gp, n, addNodeNames); err != nil {
				return err
			}
			continue
		}
		var np onnx.NodeProto
		if err := s.encodeNode(gp, &np, n, addNodeNames); err != nil {
			return err
		}
		gp.Nodes = append(gp.Nodes, np)
	}

	return s.addInitializers(gp, b, initializers)
}

// addInitializers encodes initializers in the order of the block inputs they bind.
func (s *session) addInitializers(gp *onnx.GraphProto, b *ir.Block, initializers map[string]*tensor.RawTensor) error {
	if len(initializers) > len(b.Inputs()) {
		exceptions.Panicf("%d initializers given for a graph with %d inputs", len(initializers), len(b.Inputs()))
	}
	for _, in := range b.Inputs() {
		t, ok := initializers[in.Name()]
		if !ok {
			continue
		}
		tp := onnx.TensorProto{Name: in.Name()}
		if err := s.tensors.Encode(&tp, t, in.Name()); err != nil {
			return err
		}
		gp.Initializers = append(gp.Initializers, tp)
	}
	return nil
}

func (s *session) addDomain(domain string) {
	if domain != "" {
		s.domains[domain] = struct{}{}
	}
}

// finalizeOpsets appends one opset import per custom domain used, in sorted
// order, and warns about custom opsets that no operator used.
func (s *session) finalizeOpsets() {
	domains := make([]string, 0, len(s.domains))
	for d := range s.domains {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		version, ok := s.opts.CustomOpsets[d]
		if !ok {
			version = 1
		}
		s.model.OpsetImport = append(s.model.OpsetImport, onnx.OperatorSetID{Domain: d, Version: version})
	}

	custom := make([]string, 0, len(s.opts.CustomOpsets))
	for d := range s.opts.CustomOpsets {
		custom = append(custom, d)
	}
	sort.Strings(custom)
	for _, d := range custom {
		if _, used := s.domains[d]; !used {
			s.warnf("custom opset domain %q is not used in the model, verify the custom opset domain names", d)
		}
	}
}

func (s *session) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	klog.Warning(msg)
	s.warnings = append(s.warnings, msg)
}
