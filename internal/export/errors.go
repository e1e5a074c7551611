package export

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Common errors. Every error returned by this package wraps one of them.
var (
	ErrUnsupportedType        = errors.New("element type has no ONNX equivalent")
	ErrUnexportableForeignOp  = errors.New("couldn't export foreign operator")
	ErrUnpairedSequenceOp     = errors.New("packed-sequence operator has no ONNX equivalent")
	ErrOperatorNotExportable  = errors.New("operator is not exportable under the selected policy")
	ErrUnknownAttributeKind   = errors.New("attribute has unexpected kind")
	ErrConflictingExportMode  = errors.New("deferred weight export and external data files are mutually exclusive")
	ErrExternalWriteFailed    = errors.New("could not write external tensor data")
	ErrMissingFilePath        = errors.New("external data requires a non-empty model file path")
	ErrModelTooLarge          = errors.New("serialized model exceeds the 2GiB protobuf limit, enable external data")
	ErrInvalidSerializedModel = errors.New("invalid serialized ONNX model")
)

// ExportError provides detailed information about an export failure.
type ExportError struct {
	Err       error  // One of the package sentinels
	Op        string // Qualified operator involved, if any
	Attribute string // Attribute involved, if any
	Path      string // File involved, if any
	Source    string // Source range of the offending node, if known
	Details   string // Additional details
	Cause     error  // Underlying error, if any
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Op != "" {
		fmt.Fprintf(&b, ": %s", e.Op)
	}
	if e.Attribute != "" {
		fmt.Fprintf(&b, ": attribute %q", e.Attribute)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, ": %s", e.Details)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, "\n\nDefined at:\n%s", e.Source)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is / errors.As.
func (e *ExportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
