package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/tensor"
)

// GraphSpec is the YAML description of a finished computation graph.
//
//	inputs:
//	  - {name: x, type: "float32[batch, 3]"}
//	  - {name: fc.weight, type: "float32[3, 2]"}
//	initializers:
//	  fc.weight: {dtype: float32, shape: [3, 2], values: [1, 2, 3, 4, 5, 6]}
//	nodes:
//	  - op: onnx::MatMul
//	    inputs: [x, fc.weight]
//	    outputs: [{name: y, type: "float32[batch, 2]"}]
//	    source: model.py:12
//	    scope: Model/Linear
//	outputs: [y]
//	dynamic_axes:
//	  x: {0: batch}
//
// Types are written as "<dtype>[d0, d1, ...]" where each dim is a size, a
// symbol name shared by every axis that uses it, or "?" for a fresh symbol;
// "<dtype>[*]" is an unranked tensor and "tensor" a tensor of unknown type.
// "bool", "int", "float" and "none" are scalar types and "list<T>" a list.
// Node inputs that are empty or null are absent values.
type GraphSpec struct {
	Inputs       []ValueSpec               `yaml:"inputs"`
	Initializers map[string]TensorSpec     `yaml:"initializers"`
	Nodes        []NodeSpec                `yaml:"nodes"`
	Outputs      []string                  `yaml:"outputs"`
	DynamicAxes  map[string]map[int]string `yaml:"dynamic_axes"`
}

// BlockSpec is a nested block of a control-flow node.
type BlockSpec struct {
	Inputs  []ValueSpec `yaml:"inputs"`
	Nodes   []NodeSpec  `yaml:"nodes"`
	Outputs []string    `yaml:"outputs"`
}

// ValueSpec declares a named, typed value. It may be written as a bare name.
type ValueSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// UnmarshalYAML accepts either a scalar name or a mapping.
func (v *ValueSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Name = node.Value
		return nil
	}
	type plain ValueSpec
	return node.Decode((*plain)(v))
}

// NodeSpec describes one operator application.
type NodeSpec struct {
	Op      string            `yaml:"op"`
	Inputs  []string          `yaml:"inputs"`
	Outputs []ValueSpec       `yaml:"outputs"`
	Attrs   yaml.Node         `yaml:"attrs"`
	Blocks  []BlockSpec       `yaml:"blocks"`
	Source  string            `yaml:"source"`
	Scope   string            `yaml:"scope"`
	Refs    map[string]string `yaml:"refs"`
}

// TensorSpec is an inline tensor literal.
type TensorSpec struct {
	DType  string    `yaml:"dtype"`
	Shape  []int     `yaml:"shape"`
	Values []float64 `yaml:"values"`
}

// attrSpec is the single-key mapping an attribute value is written as.
type attrSpec struct {
	Float   *float64     `yaml:"float"`
	Floats  []float64    `yaml:"floats"`
	Int     *int64       `yaml:"int"`
	Ints    []int64      `yaml:"ints"`
	String  *string      `yaml:"string"`
	Strings []string     `yaml:"strings"`
	Tensor  *TensorSpec  `yaml:"tensor"`
	Tensors []TensorSpec `yaml:"tensors"`
	Graph   *GraphSpec   `yaml:"graph"`
	Graphs  []GraphSpec  `yaml:"graphs"`
}

// LoadedGraph is a graph built from a GraphSpec together with the export
// inputs the description carries.
type LoadedGraph struct {
	Graph         *ir.Graph
	Initializers  map[string]*tensor.RawTensor
	DynamicAxes   map[string]map[int]string
	AttributeRefs map[*ir.Node]map[string]string
}

// LoadGraphFile reads a YAML graph description from path.
func LoadGraphFile(path string) (*LoadedGraph, error) {
	//nolint:gosec // G304: File path comes from user input
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open graph description")
	}
	defer func() { _ = f.Close() }()
	loaded, err := LoadGraph(f)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return loaded, nil
}

// LoadGraph decodes a YAML graph description and builds the graph.
func LoadGraph(r io.Reader) (*LoadedGraph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var spec GraphSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, &FormatError{Err: ErrInvalidGraphSpec, Details: err.Error()}
	}
	return BuildGraph(&spec)
}

// BuildGraph builds the graph a GraphSpec describes.
func BuildGraph(spec *GraphSpec) (*LoadedGraph, error) {
	out := &LoadedGraph{
		Initializers:  make(map[string]*tensor.RawTensor),
		DynamicAxes:   spec.DynamicAxes,
		AttributeRefs: make(map[*ir.Node]map[string]string),
	}
	g, err := buildGraph(spec, out)
	if err != nil {
		return nil, err
	}
	out.Graph = g

	inputs := make(map[string]bool, len(spec.Inputs))
	for _, in := range spec.Inputs {
		inputs[in.Name] = true
	}
	for name, ts := range spec.Initializers {
		if !inputs[name] {
			return nil, &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: "initializer does not name a graph input"}
		}
		t, err := ts.Build()
		if err != nil {
			return nil, &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: err.Error()}
		}
		out.Initializers[name] = t
	}
	return out, nil
}

// builder resolves names and shape symbols for one ir.Graph.
type builder struct {
	graph   *ir.Graph
	symbols map[string]ir.ShapeSymbol
	out     *LoadedGraph
}

// scope maps value names to values, falling back to the enclosing block.
type scope struct {
	values map[string]*ir.Value
	parent *scope
}

func (s *scope) lookup(name string) (*ir.Value, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) define(v *ir.Value, declared string) error {
	if declared == "" {
		return nil
	}
	if _, dup := s.values[declared]; dup {
		return &FormatError{Err: ErrInvalidGraphSpec, Tensor: declared, Details: "value defined twice"}
	}
	s.values[declared] = v
	return nil
}

func buildGraph(spec *GraphSpec, out *LoadedGraph) (*ir.Graph, error) {
	b := &builder{graph: ir.NewGraph(), symbols: make(map[string]ir.ShapeSymbol), out: out}
	block := BlockSpec{Inputs: spec.Inputs, Nodes: spec.Nodes, Outputs: spec.Outputs}
	if err := b.buildBlock(b.graph.Block(), &block, nil); err != nil {
		return nil, err
	}
	return b.graph, nil
}

// buildSubgraph builds a graph-valued attribute. Subgraphs are encoded
// without initializers or dynamic axes, so declaring them is an error.
func buildSubgraph(spec *GraphSpec, out *LoadedGraph) (*ir.Graph, error) {
	switch {
	case len(spec.Initializers) > 0:
		return nil, &FormatError{Err: ErrInvalidGraphSpec, Details: "graph attributes cannot declare initializers"}
	case len(spec.DynamicAxes) > 0:
		return nil, &FormatError{Err: ErrInvalidGraphSpec, Details: "graph attributes cannot declare dynamic_axes"}
	}
	return buildGraph(spec, out)
}

func (b *builder) buildBlock(block *ir.Block, spec *BlockSpec, parent *scope) error {
	sc := &scope{values: make(map[string]*ir.Value), parent: parent}
	for _, in := range spec.Inputs {
		typ, err := b.parseType(in.Type)
		if err != nil {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: in.Name, Details: err.Error()}
		}
		if err := sc.define(block.AddInput(in.Name, typ), in.Name); err != nil {
			return err
		}
	}

	for i := range spec.Nodes {
		if err := b.buildNode(block, &spec.Nodes[i], sc); err != nil {
			return errors.WithMessagef(err, "node %d (%s)", i, spec.Nodes[i].Op)
		}
	}

	for _, name := range spec.Outputs {
		v, ok := sc.lookup(name)
		if !ok {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: "output is not defined"}
		}
		block.RegisterOutput(v)
	}
	return nil
}

func (b *builder) buildNode(block *ir.Block, spec *NodeSpec, sc *scope) error {
	kind, err := ir.ParseSymbol(spec.Op)
	if err != nil {
		return &FormatError{Err: ErrInvalidGraphSpec, Details: err.Error()}
	}

	inputs := make([]*ir.Value, len(spec.Inputs))
	for i, name := range spec.Inputs {
		if name == "" {
			continue
		}
		v, ok := sc.lookup(name)
		if !ok {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: "input is not defined"}
		}
		inputs[i] = v
	}

	n := block.AppendNode(kind, inputs...).SetSourceRange(spec.Source).SetScope(spec.Scope)
	for _, o := range spec.Outputs {
		typ, err := b.parseType(o.Type)
		if err != nil {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: o.Name, Details: err.Error()}
		}
		if err := sc.define(n.AddOutput(o.Name, typ), o.Name); err != nil {
			return err
		}
	}

	if err := b.buildAttrs(n, &spec.Attrs); err != nil {
		return err
	}
	if len(spec.Refs) > 0 {
		b.out.AttributeRefs[n] = spec.Refs
	}

	for i := range spec.Blocks {
		if err := b.buildBlock(n.AddBlock(), &spec.Blocks[i], sc); err != nil {
			return errors.WithMessagef(err, "block %d", i)
		}
	}
	return nil
}

// buildAttrs decodes the attrs mapping in document order.
func (b *builder) buildAttrs(n *ir.Node, attrs *yaml.Node) error {
	if attrs.Kind == 0 {
		return nil
	}
	if attrs.Kind != yaml.MappingNode {
		return &FormatError{Err: ErrInvalidGraphSpec, Details: fmt.Sprintf("line %d: attrs must be a mapping", attrs.Line)}
	}
	for i := 0; i+1 < len(attrs.Content); i += 2 {
		name := attrs.Content[i].Value
		var spec attrSpec
		if err := attrs.Content[i+1].Decode(&spec); err != nil {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: err.Error()}
		}
		value, err := b.attrValue(&spec)
		if err != nil {
			return &FormatError{Err: ErrInvalidGraphSpec, Tensor: name, Details: err.Error()}
		}
		n.SetAttr(name, value)
	}
	return nil
}

//nolint:gocyclo,cyclop // One arm per attribute kind
func (b *builder) attrValue(spec *attrSpec) (ir.AttributeValue, error) {
	var values []ir.AttributeValue
	if spec.Float != nil {
		values = append(values, ir.FloatAttr(*spec.Float))
	}
	if spec.Floats != nil {
		values = append(values, ir.FloatsAttr(spec.Floats))
	}
	if spec.Int != nil {
		values = append(values, ir.IntAttr(*spec.Int))
	}
	if spec.Ints != nil {
		values = append(values, ir.IntsAttr(spec.Ints))
	}
	if spec.String != nil {
		values = append(values, ir.StringAttr(*spec.String))
	}
	if spec.Strings != nil {
		values = append(values, ir.StringsAttr(spec.Strings))
	}
	if spec.Tensor != nil {
		t, err := spec.Tensor.Build()
		if err != nil {
			return nil, err
		}
		values = append(values, ir.TensorAttr{Tensor: t})
	}
	if spec.Tensors != nil {
		ts := make(ir.TensorsAttr, len(spec.Tensors))
		for i := range spec.Tensors {
			t, err := spec.Tensors[i].Build()
			if err != nil {
				return nil, err
			}
			ts[i] = t
		}
		values = append(values, ts)
	}
	if spec.Graph != nil {
		g, err := buildSubgraph(spec.Graph, b.out)
		if err != nil {
			return nil, err
		}
		values = append(values, ir.GraphAttr{Graph: g})
	}
	if spec.Graphs != nil {
		gs := make(ir.GraphsAttr, len(spec.Graphs))
		for i := range spec.Graphs {
			g, err := buildSubgraph(&spec.Graphs[i], b.out)
			if err != nil {
				return nil, err
			}
			gs[i] = g
		}
		values = append(values, gs)
	}
	if len(values) != 1 {
		return nil, errors.Errorf("attribute needs exactly one kind key, got %d", len(values))
	}
	return values[0], nil
}

// parseType parses the type grammar described on GraphSpec.
func (b *builder) parseType(s string) (ir.Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "tensor":
		return ir.UnrankedTensor(tensor.Undefined), nil
	case "bool":
		return ir.BoolType{}, nil
	case "int":
		return ir.IntType{}, nil
	case "float":
		return ir.FloatType{}, nil
	case "none":
		return ir.NoneType{}, nil
	}
	if elem, ok := strings.CutPrefix(s, "list<"); ok {
		elem, ok = strings.CutSuffix(elem, ">")
		if !ok {
			return nil, errors.Errorf("unterminated list type %q", s)
		}
		et, err := b.parseType(elem)
		if err != nil {
			return nil, err
		}
		return &ir.ListType{Elem: et}, nil
	}

	name, dims, ok := strings.Cut(s, "[")
	if !ok {
		return nil, errors.Errorf("unknown type %q", s)
	}
	dims, ok = strings.CutSuffix(dims, "]")
	if !ok {
		return nil, errors.Errorf("unterminated shape in %q", s)
	}
	dtype, ok := tensor.ParseDataType(strings.TrimSpace(name))
	if !ok {
		return nil, errors.Errorf("unknown element type %q", name)
	}
	dims = strings.TrimSpace(dims)
	if dims == "*" {
		return ir.UnrankedTensor(dtype), nil
	}
	if dims == "" {
		return ir.Tensor(dtype), nil
	}

	var out []ir.Dim
	for _, d := range strings.Split(dims, ",") {
		d = strings.TrimSpace(d)
		switch {
		case d == "?":
			out = append(out, ir.SymbolicDim(b.graph.NewSymbol()))
		case d != "" && (d[0] >= '0' && d[0] <= '9'):
			n, err := strconv.ParseInt(d, 10, 64)
			if err != nil {
				return nil, errors.Errorf("invalid dimension %q in %q", d, s)
			}
			out = append(out, ir.StaticDim(n))
		case d != "":
			sym, ok := b.symbols[d]
			if !ok {
				sym = b.graph.NewSymbol()
				b.symbols[d] = sym
			}
			out = append(out, ir.SymbolicDim(sym))
		default:
			return nil, errors.Errorf("empty dimension in %q", s)
		}
	}
	return ir.Tensor(dtype, out...), nil
}

// Build converts the literal into a host tensor.
func (ts *TensorSpec) Build() (*tensor.RawTensor, error) {
	dtype, ok := tensor.ParseDataType(ts.DType)
	if !ok {
		return nil, errors.Errorf("unknown element type %q", ts.DType)
	}
	shape := tensor.Shape(ts.Shape)
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if n := shape.NumElements(); n != len(ts.Values) {
		return nil, errors.Errorf("shape %v needs %d values, got %d", ts.Shape, n, len(ts.Values))
	}

	if dtype == tensor.Float16 {
		f32 := make([]float32, len(ts.Values))
		for i, v := range ts.Values {
			f32[i] = float32(v)
		}
		return tensor.FromFloat32sAsHalf(shape, f32)
	}

	var buf bytes.Buffer
	buf.Grow(len(ts.Values) * dtype.Size())
	for _, v := range ts.Values {
		var err error
		switch dtype {
		case tensor.Float32:
			err = binary.Write(&buf, binary.LittleEndian, math.Float32bits(float32(v)))
		case tensor.Float64:
			err = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		case tensor.Int8, tensor.QInt8:
			err = buf.WriteByte(byte(int8(v)))
		case tensor.Uint8, tensor.QUInt8:
			err = buf.WriteByte(uint8(v))
		case tensor.Bool:
			var bit byte
			if v != 0 {
				bit = 1
			}
			err = buf.WriteByte(bit)
		case tensor.Int16:
			err = binary.Write(&buf, binary.LittleEndian, int16(v))
		case tensor.Int32, tensor.QInt32:
			err = binary.Write(&buf, binary.LittleEndian, int32(v))
		case tensor.Int64:
			err = binary.Write(&buf, binary.LittleEndian, int64(v))
		default:
			return nil, errors.Errorf("element type %s has no literal form", dtype)
		}
		if err != nil {
			return nil, err
		}
	}
	return tensor.FromBytes(shape, dtype, buf.Bytes())
}
