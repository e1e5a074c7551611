// Package loader reads the weights that become exported initializers.
//
// This package wraps the internal readers and exports them for programs that
// build graphs in Go and take their initializers from weight files.
//
// Example usage:
//
//	weights, err := loader.LoadWeights("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := onnx.ExportToFile("model.onnx", g, weights, onnx.DefaultOptions())
package loader

import (
	"github.com/born-ml/onnxport/internal/loader"
	"github.com/born-ml/onnxport/tensor"
)

// WeightsFormat is the format of a weights file.
type WeightsFormat = loader.WeightsFormat

// Supported weights formats.
const (
	FormatUnknown     WeightsFormat = loader.FormatUnknown
	FormatSafeTensors WeightsFormat = loader.FormatSafeTensors
	FormatGGUF        WeightsFormat = loader.FormatGGUF
)

// WeightsReader gives access to the tensors of a weights file.
type WeightsReader = loader.WeightsReader

// Errors reported for malformed files.
var (
	ErrUnsupportedFormat = loader.ErrUnsupportedFormat
	ErrUnsupportedDType  = loader.ErrUnsupportedDType
	ErrTensorNotFound    = loader.ErrTensorNotFound
	ErrOffsetOverlap     = loader.ErrOffsetOverlap
	ErrOutOfBounds       = loader.ErrOutOfBounds
	ErrSizeMismatch      = loader.ErrSizeMismatch
)

// OpenWeights opens a .safetensors or .gguf file.
//
// Every tensor's byte range is validated against its shape and the file size
// before OpenWeights returns.
func OpenWeights(path string) (WeightsReader, error) {
	return loader.OpenWeights(path)
}

// LoadWeights reads every tensor of a weights file. Block-quantized GGUF
// tensors are dequantized to float32.
func LoadWeights(path string) (map[string]*tensor.RawTensor, error) {
	return loader.LoadWeights(path)
}
