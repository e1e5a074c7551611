package export

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
)

// nodeDomain returns the ONNX domain of a non-ONNX operator.
func nodeDomain(kind ir.Symbol) string {
	if kind.IsNative() || kind.IsCaffe2() {
		return kind.DomainString()
	}
	return kind.Namespace
}

func (s *session) encodeNode(gp *onnx.GraphProto, np *onnx.NodeProto, n *ir.Node, addNodeNames bool) error {
	if !s.opts.StripDocString {
		np.DocString = n.SourceRange()
	}

	for _, in := range n.Inputs() {
		switch {
		case in == nil || (in.Node() != nil && in.Node().MustBeNone()):
			np.Inputs = append(np.Inputs, "")
		default:
			name, renamed := s.opts.ValueNames[in]
			if !renamed {
				name = in.Name()
			}
			np.Inputs = append(np.Inputs, name)
		}
	}

	for _, out := range n.Outputs() {
		np.Outputs = append(np.Outputs, out.Name())
		if err := s.encodeIntermediateValueInfo(gp, out); err != nil {
			return err
		}
	}

	kind := n.Kind()
	if !kind.IsONNX() {
		np.Domain = nodeDomain(kind)
		s.addDomain(np.Domain)
	}
	np.OpType = kind.Name
	if addNodeNames {
		np.Name = fmt.Sprintf("%s_%d", np.OpType, s.numOpNodes)
		s.numOpNodes++
	}

	refs := s.opts.AttributeRefs[n]
	for _, attr := range n.Attributes() {
		if ref, ok := refs[attr.Name]; ok {
			np.Attributes = append(np.Attributes, onnx.AttributeProto{Name: attr.Name, RefAttrName: ref})
			continue
		}
		ap, err := s.encodeAttribute(np, attr)
		if err != nil {
			var ee *ExportError
			if errors.As(err, &ee) && ee.Op == "" {
				ee.Op = kind.String()
			}
			return err
		}
		np.Attributes = append(np.Attributes, ap)
	}

	return s.encodeControlFlow(np, n)
}

// encodeControlFlow encodes the nested blocks of Loop and If as graph attributes.
func (s *session) encodeControlFlow(np *onnx.NodeProto, n *ir.Node) error {
	var names []string
	switch n.Kind() {
	case ir.ONNXLoop:
		names = []string{"body"}
	case ir.ONNXIf:
		names = []string{"then_branch", "else_branch"}
	}
	if len(n.Blocks()) != len(names) {
		exceptions.Panicf("%s node has %d nested blocks, want %d", n.Kind(), len(n.Blocks()), len(names))
	}

	for i, name := range names {
		g := &onnx.GraphProto{}
		if err := s.encodeBlock(g, n.Blocks()[i], nil, nil, true, true); err != nil {
			return err
		}
		np.Attributes = append(np.Attributes, onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoGraph, G: g})
	}
	return nil
}
