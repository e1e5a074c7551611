package ir

import (
	"strings"

	"github.com/pkg/errors"
)

// Well-known operator namespaces.
const (
	NamespaceONNX   = "onnx"
	NamespaceNative = "native" // Internal-only operators with no ONNX equivalent
	NamespacePrim   = "prim"   // Structural primitives (constants, lists, foreign calls)
	NamespaceCaffe2 = "caffe2"
)

// DomainPrefix prefixes the ONNX domain of internal namespaces.
const DomainPrefix = "ai.born."

// Symbol is a namespace-qualified operator name such as onnx::Add.
type Symbol struct {
	Namespace string
	Name      string
}

// Well-known operators.
var (
	PrimConstant      = Symbol{NamespacePrim, "Constant"}
	PrimListConstruct = Symbol{NamespacePrim, "ListConstruct"}
	PrimForeignCall   = Symbol{NamespacePrim, "ForeignCall"}
	PrimPackPadded    = Symbol{NamespacePrim, "PackPadded"}
	PrimPadPacked     = Symbol{NamespacePrim, "PadPacked"}

	ONNXConstant         = Symbol{NamespaceONNX, "Constant"}
	ONNXLoop             = Symbol{NamespaceONNX, "Loop"}
	ONNXIf               = Symbol{NamespaceONNX, "If"}
	ONNXLocalFunctionDef = Symbol{NamespaceONNX, "LocalFunctionDef"}
)

// ParseSymbol parses a qualified name of the form "namespace::name".
func ParseSymbol(qualified string) (Symbol, error) {
	ns, name, ok := strings.Cut(qualified, "::")
	if !ok || ns == "" || name == "" || strings.Contains(name, "::") {
		return Symbol{}, errors.Errorf("invalid qualified operator name %q (want namespace::name)", qualified)
	}
	return Symbol{Namespace: ns, Name: name}, nil
}

// MustParseSymbol is like ParseSymbol but panics on error.
func MustParseSymbol(qualified string) Symbol {
	s, err := ParseSymbol(qualified)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the qualified name.
func (s Symbol) String() string {
	return s.Namespace + "::" + s.Name
}

// IsONNX reports whether the operator belongs to the standard ONNX namespace.
func (s Symbol) IsONNX() bool { return s.Namespace == NamespaceONNX }

// IsNative reports whether the operator belongs to the internal-only namespace.
func (s Symbol) IsNative() bool { return s.Namespace == NamespaceNative }

// IsPrim reports whether the operator is a structural primitive.
func (s Symbol) IsPrim() bool { return s.Namespace == NamespacePrim }

// IsCaffe2 reports whether the operator belongs to the caffe2 namespace.
func (s Symbol) IsCaffe2() bool { return s.Namespace == NamespaceCaffe2 }

// DomainString returns the ONNX domain for an internal namespace, e.g. "ai.born.native".
func (s Symbol) DomainString() string {
	return DomainPrefix + s.Namespace
}
