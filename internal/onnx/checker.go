package onnx

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is wrapped by every CheckError.
var ErrInvalidModel = errors.New("invalid ONNX model")

// MinIRVersion is the oldest IR version accepted by CheckModel.
const MinIRVersion = 3

// CheckError describes the first structural problem found in a model.
type CheckError struct {
	Path    string // Location of the offending record, e.g. "graph(main)/node[3](Add)"
	Details string
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidModel, e.Details)
	}
	return fmt.Sprintf("%v: %s: %s", ErrInvalidModel, e.Path, e.Details)
}

// Unwrap returns ErrInvalidModel.
func (e *CheckError) Unwrap() error { return ErrInvalidModel }

func checkErrorf(path, format string, args ...any) error {
	return &CheckError{Path: path, Details: fmt.Sprintf(format, args...)}
}

// checker carries the model-wide facts needed while checking nested graphs.
type checker struct {
	domains   map[string]bool // imported opset domains
	functions map[string]bool // domain + "::" + name of local functions
}

// scope is the set of value names visible at a point of a graph.
type scope struct {
	names map[string]bool
	outer *scope
}

func newScope(outer *scope) *scope {
	return &scope{names: make(map[string]bool), outer: outer}
}

func (s *scope) defined(name string) bool {
	for ; s != nil; s = s.outer {
		if s.names[name] {
			return true
		}
	}
	return false
}

// CheckModel verifies the structural well-formedness of a model: IR version and
// opset imports, SSA form of every graph (including nested ones), opset imports
// for used domains, attribute payloads, tensor payload sizes and local functions.
func CheckModel(m *ModelProto) error {
	if m.IRVersion < MinIRVersion {
		return checkErrorf("", "ir_version %d is older than %d", m.IRVersion, MinIRVersion)
	}
	if len(m.OpsetImport) == 0 {
		return checkErrorf("", "model has no opset_import")
	}

	c := &checker{domains: make(map[string]bool), functions: make(map[string]bool)}
	for _, o := range m.OpsetImport {
		domain := normalizeDomain(o.Domain)
		if c.domains[domain] {
			return checkErrorf("", "opset_import lists domain %q twice", o.Domain)
		}
		c.domains[domain] = true
	}
	if !c.domains[""] {
		return checkErrorf("", "opset_import has no entry for the default domain")
	}

	for i := range m.Functions {
		fn := &m.Functions[i]
		key := fn.Domain + "::" + fn.Name
		if fn.Name == "" {
			return checkErrorf(fmt.Sprintf("function[%d]", i), "function has no name")
		}
		if c.functions[key] {
			return checkErrorf(fmt.Sprintf("function[%d]", i), "duplicate function %s", key)
		}
		c.functions[key] = true
	}

	if m.Graph == nil {
		return checkErrorf("", "model has no graph")
	}
	if err := c.checkGraph(m.Graph, nil, "graph"); err != nil {
		return err
	}

	for i := range m.Functions {
		if err := c.checkFunction(&m.Functions[i]); err != nil {
			return err
		}
	}
	return nil
}

func normalizeDomain(domain string) string {
	if domain == "ai.onnx" {
		return ""
	}
	return domain
}

func (c *checker) checkGraph(g *GraphProto, outer *scope, path string) error {
	if g.Name == "" {
		return checkErrorf(path, "graph has no name")
	}
	path = fmt.Sprintf("%s(%s)", path, g.Name)
	sc := newScope(outer)

	for i := range g.Initializers {
		t := &g.Initializers[i]
		if t.Name == "" {
			return checkErrorf(path, "initializer %d has no name", i)
		}
		if err := checkTensor(t, fmt.Sprintf("%s/initializer(%s)", path, t.Name)); err != nil {
			return err
		}
		sc.names[t.Name] = true
	}

	inputs := make(map[string]bool, len(g.Inputs))
	for _, in := range g.Inputs {
		if in.Name == "" {
			return checkErrorf(path, "graph input has no name")
		}
		if inputs[in.Name] {
			return checkErrorf(path, "graph input %q listed twice", in.Name)
		}
		inputs[in.Name] = true
		sc.names[in.Name] = true
	}

	for i := range g.Nodes {
		if err := c.checkNode(&g.Nodes[i], sc, fmt.Sprintf("%s/node[%d]", path, i), false); err != nil {
			return err
		}
	}

	for _, out := range g.Outputs {
		if !sc.defined(out.Name) {
			return checkErrorf(path, "graph output %q is never defined", out.Name)
		}
	}

	seen := make(map[string]bool, len(g.ValueInfo))
	for _, vi := range g.ValueInfo {
		if seen[vi.Name] {
			return checkErrorf(path, "value_info %q listed twice", vi.Name)
		}
		seen[vi.Name] = true
	}
	return nil
}

func (c *checker) checkNode(n *NodeProto, sc *scope, path string, inFunction bool) error {
	if n.OpType == "" {
		return checkErrorf(path, "node has no op_type")
	}
	path = fmt.Sprintf("%s(%s)", path, n.OpType)

	domain := normalizeDomain(n.Domain)
	if !c.domains[domain] && !c.functions[n.Domain+"::"+n.OpType] {
		return checkErrorf(path, "domain %q is not imported", n.Domain)
	}

	for _, in := range n.Inputs {
		if in != "" && !sc.defined(in) {
			return checkErrorf(path, "input %q is not defined before use", in)
		}
	}

	seen := make(map[string]bool, len(n.Attributes))
	for i := range n.Attributes {
		a := &n.Attributes[i]
		if seen[a.Name] {
			return checkErrorf(path, "attribute %q listed twice", a.Name)
		}
		seen[a.Name] = true
		if err := c.checkAttribute(a, sc, path, inFunction); err != nil {
			return err
		}
	}

	for _, out := range n.Outputs {
		if out == "" {
			continue
		}
		if sc.names[out] {
			return checkErrorf(path, "output %q is defined more than once", out)
		}
		sc.names[out] = true
	}
	return nil
}

//nolint:gocyclo,cyclop // One arm per attribute type
func (c *checker) checkAttribute(a *AttributeProto, sc *scope, path string, inFunction bool) error {
	if a.Name == "" {
		return checkErrorf(path, "attribute has no name")
	}
	path = fmt.Sprintf("%s/attribute(%s)", path, a.Name)

	if a.RefAttrName != "" {
		if !inFunction {
			return checkErrorf(path, "ref_attr_name %q used outside a function body", a.RefAttrName)
		}
		return nil
	}

	switch a.Type {
	case AttributeProtoFloat, AttributeProtoInt, AttributeProtoString,
		AttributeProtoFloats, AttributeProtoInts, AttributeProtoStrings:
		return nil
	case AttributeProtoTensor:
		if a.T == nil {
			return checkErrorf(path, "TENSOR attribute has no tensor")
		}
		return checkTensor(a.T, path)
	case AttributeProtoTensors:
		for i := range a.Tensors {
			if err := checkTensor(&a.Tensors[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case AttributeProtoGraph:
		if a.G == nil {
			return checkErrorf(path, "GRAPH attribute has no graph")
		}
		return c.checkGraph(a.G, sc, path+"/graph")
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			if err := c.checkGraph(&a.Graphs[i], sc, fmt.Sprintf("%s/graph[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return checkErrorf(path, "attribute type %d is not set or unknown", a.Type)
	}
}

func (c *checker) checkFunction(fn *FunctionProto) error {
	path := fmt.Sprintf("function(%s::%s)", fn.Domain, fn.Name)
	sc := newScope(nil)
	for _, in := range fn.Inputs {
		sc.names[in] = true
	}
	for i := range fn.Nodes {
		if err := c.checkNode(&fn.Nodes[i], sc, fmt.Sprintf("%s/node[%d]", path, i), true); err != nil {
			return err
		}
	}
	for _, out := range fn.Outputs {
		if !sc.defined(out) {
			return checkErrorf(path, "function output %q is never defined", out)
		}
	}
	return nil
}

func checkTensor(t *TensorProto, path string) error {
	if t.DataType == TensorProtoUndefined {
		return checkErrorf(path, "tensor has undefined data_type")
	}
	numel := int64(1)
	for _, d := range t.Dims {
		if d < 0 {
			return checkErrorf(path, "negative dimension %d", d)
		}
		numel *= d
	}

	if t.DataLocation == DataLocationExternal {
		if t.RawData != nil {
			return checkErrorf(path, "external tensor also carries raw_data")
		}
		for _, e := range t.ExternalData {
			if e.Key == "location" && e.Value != "" {
				return nil
			}
		}
		return checkErrorf(path, "external tensor has no location")
	}

	if t.RawData == nil || string(t.RawData) == ExternalSentinel {
		return nil
	}
	if size := ElemSize(t.DataType); size > 0 && int64(len(t.RawData)) != numel*int64(size) {
		return checkErrorf(path, "raw_data has %d bytes, want %d for %s%v", len(t.RawData), numel*int64(size), DataTypeName(t.DataType), t.Dims)
	}
	return nil
}
