package export

import (
	"github.com/born-ml/onnxport/internal/ir"
)

// Validate checks that every operator of g, including those in nested blocks
// and graph-valued attributes, can be represented under policy. It returns the
// first offending node in depth-first order, nested blocks before their owner.
// Validate does not modify g.
func Validate(g *ir.Graph, policy OperatorExportType) error {
	return validateBlock(g.Block(), policy)
}

func validateBlock(b *ir.Block, policy OperatorExportType) error {
	for _, n := range b.Nodes() {
		for _, sub := range n.Blocks() {
			if err := validateBlock(sub, policy); err != nil {
				return err
			}
		}
		for _, attr := range n.Attributes() {
			if err := validateAttribute(attr.Value, policy); err != nil {
				return err
			}
		}
		if err := validateNode(n, policy); err != nil {
			return err
		}
	}
	return nil
}

func validateAttribute(v ir.AttributeValue, policy OperatorExportType) error {
	switch v := v.(type) {
	case ir.GraphAttr:
		if v.Graph != nil {
			return Validate(v.Graph, policy)
		}
	case ir.GraphsAttr:
		for _, g := range v {
			if err := Validate(g, policy); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateNode(n *ir.Node, policy OperatorExportType) error {
	kind := n.Kind()
	switch {
	case kind == ir.PrimForeignCall:
		return &ExportError{
			Err:    ErrUnexportableForeignOp,
			Op:     foreignCallName(n),
			Source: n.SourceRange(),
		}
	case (kind == ir.PrimPackPadded || kind == ir.PrimPadPacked) && policy != PolicyFallthrough:
		return &ExportError{
			Err:     ErrUnpairedSequenceOp,
			Op:      kind.String(),
			Source:  n.SourceRange(),
			Details: "pack and pad operators must be eliminated by pairing them before export",
		}
	case kind.IsNative() && !policy.AllowsNative() && !n.MustBeNone():
		return &ExportError{
			Err:     ErrOperatorNotExportable,
			Op:      kind.String(),
			Source:  n.SourceRange(),
			Details: "policy " + policy.String() + " does not allow internal operators",
		}
	}
	return nil
}

// foreignCallName returns the name of the callback a foreign-call node wraps.
func foreignCallName(n *ir.Node) string {
	if v, ok := n.Attr("name"); ok {
		if s, ok := v.(ir.StringAttr); ok && s != "" {
			return string(s)
		}
	}
	return "<unnamed>"
}
