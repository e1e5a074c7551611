package export

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
)

// encodeLocalFunction turns an onnx::LocalFunctionDef node into a model-level
// FunctionProto. The node carries the body in its "graph" attribute, and its
// "name", "domain" and optional "attributes" attributes.
func (s *session) encodeLocalFunction(gp *onnx.GraphProto, n *ir.Node, addNodeNames bool) error {
	body := functionBody(n)
	fp := onnx.FunctionProto{
		Name:   requireStringAttr(n, "name"),
		Domain: requireStringAttr(n, "domain"),
	}

	for _, in := range body.Inputs() {
		fp.Inputs = append(fp.Inputs, in.Name())
	}
	for _, out := range body.Outputs() {
		fp.Outputs = append(fp.Outputs, out.Name())
	}
	if v, ok := n.Attr("attributes"); ok {
		names, ok := v.(ir.StringsAttr)
		if !ok {
			exceptions.Panicf("%s attribute \"attributes\" must be a string list, got %T", n.Kind(), v)
		}
		fp.Attributes = append(fp.Attributes, names...)
	}

	fp.OpsetImport = append(fp.OpsetImport, onnx.OperatorSetID{Version: s.opts.OpsetVersion})
	s.addDomain(fp.Domain)

	imported := make(map[string]bool)
	for _, sub := range body.Nodes() {
		if sub.MustBeNone() {
			continue
		}
		var np onnx.NodeProto
		if err := s.encodeNode(gp, &np, sub, addNodeNames); err != nil {
			return err
		}
		fp.Nodes = append(fp.Nodes, np)
		s.collectFunctionOpsets(&fp, sub, imported)
	}

	s.model.Functions = append(s.model.Functions, fp)
	return nil
}

// collectFunctionOpsets imports the domain of n and of every node nested in
// its blocks into fp, once per domain, in encounter order.
func (s *session) collectFunctionOpsets(fp *onnx.FunctionProto, n *ir.Node, imported map[string]bool) {
	if !n.Kind().IsONNX() {
		domain := nodeDomain(n.Kind())
		s.addDomain(domain)
		if !imported[domain] {
			imported[domain] = true
			version, ok := s.opts.CustomOpsets[domain]
			if !ok {
				version = 1
			}
			fp.OpsetImport = append(fp.OpsetImport, onnx.OperatorSetID{Domain: domain, Version: version})
		}
	}
	for _, b := range n.Blocks() {
		for _, sub := range b.Nodes() {
			s.collectFunctionOpsets(fp, sub, imported)
		}
	}
}

func functionBody(n *ir.Node) *ir.Graph {
	v, ok := n.Attr("graph")
	if !ok {
		exceptions.Panicf("%s node has no \"graph\" attribute", n.Kind())
	}
	g, ok := v.(ir.GraphAttr)
	if !ok || g.Graph == nil {
		exceptions.Panicf("%s attribute \"graph\" must hold a graph, got %T", n.Kind(), v)
	}
	return g.Graph
}

func requireStringAttr(n *ir.Node, name string) string {
	v, ok := n.Attr(name)
	if !ok {
		exceptions.Panicf("%s node has no %q attribute", n.Kind(), name)
	}
	str, ok := v.(ir.StringAttr)
	if !ok {
		exceptions.Panicf("%s attribute %q must be a string, got %T", n.Kind(), name, v)
	}
	return string(str)
}
