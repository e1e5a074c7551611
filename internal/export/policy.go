package export

import (
	"fmt"

	"github.com/pkg/errors"
)

// OperatorExportType selects which operators may appear in an exported model.
type OperatorExportType int

// Export policies.
const (
	// PolicyONNX allows standard ONNX operators only.
	PolicyONNX OperatorExportType = iota
	// PolicyNative exports every internal-only operator as a custom-domain op.
	PolicyNative
	// PolicyNativeFallback exports internal-only operators that have no ONNX
	// lowering as custom-domain ops.
	PolicyNativeFallback
	// PolicyFallthrough passes every operator through, including unpaired
	// packed-sequence operators.
	PolicyFallthrough
)

// String returns the configuration name of the policy.
func (p OperatorExportType) String() string {
	switch p {
	case PolicyONNX:
		return "onnx"
	case PolicyNative:
		return "onnx_native"
	case PolicyNativeFallback:
		return "onnx_native_fallback"
	case PolicyFallthrough:
		return "onnx_fallthrough"
	default:
		return fmt.Sprintf("OperatorExportType(%d)", int(p))
	}
}

// AllowsNative reports whether internal-only operators may be exported.
func (p OperatorExportType) AllowsNative() bool {
	return p == PolicyNative || p == PolicyNativeFallback || p == PolicyFallthrough
}

// ParseOperatorExportType parses a policy name as printed by String.
func ParseOperatorExportType(s string) (OperatorExportType, error) {
	for p := PolicyONNX; p <= PolicyFallthrough; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return PolicyONNX, errors.Errorf("unknown operator export type %q (want onnx, onnx_native, onnx_native_fallback or onnx_fallthrough)", s)
}
