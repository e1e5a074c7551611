package loader

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported weights file format")
	ErrUnsupportedDType  = errors.New("unsupported tensor dtype")
	ErrTensorNotFound    = errors.New("tensor not found")
	ErrOffsetOverlap     = errors.New("tensor offsets overlap")
	ErrOutOfBounds       = errors.New("tensor extends beyond data section")
	ErrSizeMismatch      = errors.New("tensor byte range does not match its shape")
	ErrInvalidMagic      = errors.New("invalid magic bytes")
	ErrUnsupportedVer    = errors.New("unsupported format version")
	ErrHeaderTooLarge    = errors.New("header exceeds maximum size")
	ErrInvalidGraphSpec  = errors.New("invalid graph description")
)

// FormatError provides detailed information about a malformed weights file
// or graph description.
type FormatError struct {
	Err     error  // One of the package sentinels
	Tensor  string // Primary tensor or value involved, if any
	Tensor2 string // Secondary tensor (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%v: tensors %q and %q: %s", e.Err, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%v: %q: %s", e.Err, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Details)
}

// Unwrap returns the sentinel.
func (e *FormatError) Unwrap() error {
	return e.Err
}
