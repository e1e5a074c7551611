package export

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/ir"
)

// LintReport counts nodes lacking provenance metadata.
type LintReport struct {
	Nodes int // Nodes visited, nested blocks included

	MissingSourceRange          int
	MissingSourceRangeConstants int
	MissingScope                int
	MissingScopeConstants       int

	// Ops lists the qualified operators of nodes missing either field, in encounter order.
	Ops []string
}

// Clean reports whether every node carries both a source range and a scope.
func (r LintReport) Clean() bool {
	return r.MissingSourceRange == 0 && r.MissingScope == 0
}

// Lint walks g recursively and counts nodes without a source range or scope,
// separately counting constant-producing nodes. It never modifies g.
func Lint(g *ir.Graph) LintReport {
	var r LintReport
	g.Block().Walk(func(n *ir.Node) {
		r.Nodes++
		constant := isConstantNode(n)
		missing := false
		if n.SourceRange() == "" {
			r.MissingSourceRange++
			if constant {
				r.MissingSourceRangeConstants++
			}
			missing = true
		}
		if n.Scope() == "" {
			r.MissingScope++
			if constant {
				r.MissingScopeConstants++
			}
			missing = true
		}
		if missing {
			r.Ops = append(r.Ops, n.Kind().String())
		}
	})

	if klog.V(1).Enabled() {
		klog.Infof("lint: %d nodes; %d missing source range (%d constants); %d missing scope (%d constants)",
			r.Nodes, r.MissingSourceRange, r.MissingSourceRangeConstants, r.MissingScope, r.MissingScopeConstants)
	}
	return r
}

func isConstantNode(n *ir.Node) bool {
	switch n.Kind() {
	case ir.PrimConstant, ir.PrimListConstruct, ir.ONNXConstant:
		return true
	}
	return false
}
