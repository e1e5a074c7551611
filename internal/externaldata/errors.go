package externaldata

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrInvalidTensorName = errors.New("invalid tensor name")
	ErrTensorNameTooLong = errors.New("tensor name too long")
	ErrUnsupportedDType  = errors.New("element type not supported by sink")
	ErrSinkClosed        = errors.New("sink is closed")
	ErrDuplicateTensor   = errors.New("tensor written twice")
	ErrMissingLocation   = errors.New("deferred tensor has no stored location")
	ErrInvalidURL        = errors.New("invalid storage URL")
)

// TensorError provides detailed information about a tensor a sink rejected.
type TensorError struct {
	Err     error  // One of the package sentinels
	Tensor  string // Tensor name
	Details string // Additional details
}

// Error implements the error interface.
func (e *TensorError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%v: tensor %q", e.Err, e.Tensor)
	}
	return fmt.Sprintf("%v: tensor %q: %s", e.Err, e.Tensor, e.Details)
}

// Unwrap returns the sentinel.
func (e *TensorError) Unwrap() error {
	return e.Err
}
