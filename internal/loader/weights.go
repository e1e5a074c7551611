package loader

import (
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/tensor"
)

// WeightsFormat represents a weights file format.
type WeightsFormat int

// Supported weights formats.
const (
	FormatUnknown WeightsFormat = iota
	FormatSafeTensors
	FormatGGUF
)

// String returns the format name.
func (f WeightsFormat) String() string {
	switch f {
	case FormatSafeTensors:
		return "SafeTensors"
	case FormatGGUF:
		return "GGUF"
	default:
		return "Unknown"
	}
}

// WeightsReader provides a unified interface over weights files.
type WeightsReader interface {
	// Close closes the underlying file.
	Close() error

	// Format returns the file format.
	Format() WeightsFormat

	// Metadata returns file metadata rendered as strings.
	Metadata() map[string]string

	// TensorNames returns all tensor names, sorted.
	TensorNames() []string

	// LoadTensor loads a tensor by name into host memory.
	LoadTensor(name string) (*tensor.RawTensor, error)
}

// OpenWeights opens a weights file, choosing the reader by extension.
// Supports .safetensors and .gguf files.
func OpenWeights(path string) (WeightsReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		r, err := NewSafeTensorsReader(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ".gguf":
		r, err := NewGGUFReader(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, &FormatError{Err: ErrUnsupportedFormat, Details: ext + " (expected .safetensors or .gguf)"}
	}
}

// LoadWeights reads every tensor of the file at path.
func LoadWeights(path string) (map[string]*tensor.RawTensor, error) {
	r, err := OpenWeights(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	out := make(map[string]*tensor.RawTensor)
	var total uint64
	for _, name := range r.TensorNames() {
		t, err := r.LoadTensor(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "loading %s", path)
		}
		out[name] = t
		total += uint64(t.ByteSize()) //nolint:gosec // G115: sizes are non-negative
	}
	klog.V(1).Infof("loaded %d tensors (%s) from %s %s", len(out), humanize.Bytes(total), r.Format(), path)
	return out, nil
}
