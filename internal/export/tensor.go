package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// DefaultExternalThreshold is the element count above which tensors are stored
// in external files when external data is enabled.
const DefaultExternalThreshold = 1024

// TensorEncoder fills TensorProto records from tensor payloads.
//
// With DeferExport set, tensors passed with an external reference are not
// embedded: they are registered in ExportMap and their raw data is set to
// onnx.ExternalSentinel. With UseExternalData set, tensors with more than
// Threshold elements are written to their own file in Dir.
type TensorEncoder struct {
	Threshold       int
	UseExternalData bool
	Dir             string
	DeferExport     bool
	ExportMap       map[string]*tensor.RawTensor

	files map[string]string // external file name -> tensor name
}

// Encode populates tp (whose Name the caller may already have set) from t.
// externalRef names the tensor for deferred export; "" means the tensor is
// not eligible for deferral and is embedded.
func (e *TensorEncoder) Encode(tp *onnx.TensorProto, t *tensor.RawTensor, externalRef string) error {
	tp.Dims = t.Shape().Int64s()
	dt, err := ToONNX(t.DType())
	if err != nil {
		return errors.WithMessagef(err, "tensor %q", tp.Name)
	}
	tp.DataType = dt

	// Quantized payloads are only made contiguous; moving them between
	// devices is not supported for every size.
	if t.DType().IsQuantized() {
		t = t.Contiguous()
	} else {
		t = t.Contiguous().Host()
	}

	deferred := e.DeferExport && externalRef != ""
	if deferred && e.UseExternalData {
		return &ExportError{Err: ErrConflictingExportMode, Details: tp.Name}
	}

	if deferred {
		if externalRef != tp.Name {
			exceptions.Panicf("deferred tensor reference %q does not match tensor name %q", externalRef, tp.Name)
		}
		if _, dup := e.ExportMap[externalRef]; dup {
			exceptions.Panicf("tensor %q registered for deferred export twice", externalRef)
		}
		if e.ExportMap == nil {
			e.ExportMap = make(map[string]*tensor.RawTensor)
		}
		e.ExportMap[externalRef] = t
		tp.RawData = []byte(onnx.ExternalSentinel)
		return nil
	}

	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultExternalThreshold
	}
	if e.UseExternalData && t.NumElements() > threshold {
		return e.writeExternal(tp, t)
	}

	data := t.Data()
	tp.RawData = make([]byte, len(data))
	copy(tp.RawData, data)
	return nil
}

func (e *TensorEncoder) writeExternal(tp *onnx.TensorProto, t *tensor.RawTensor) error {
	if e.Dir == "" {
		return &ExportError{Err: ErrMissingFilePath, Details: tp.Name}
	}
	if tp.Name == "" {
		return &ExportError{Err: ErrExternalWriteFailed, Details: "tensor has no name to derive a file name from"}
	}

	fileName := ExternalFileName(tp.Name)
	path := e.Dir + "/" + fileName
	if other, taken := e.files[fileName]; taken {
		return &ExportError{Err: ErrExternalWriteFailed, Path: path,
			Details: fmt.Sprintf("tensors %q and %q map to the same file", other, tp.Name)}
	}
	if e.files == nil {
		e.files = make(map[string]string)
	}
	e.files[fileName] = tp.Name
	//nolint:gosec // G304: Output directory is chosen by the caller
	f, err := os.Create(path)
	if err != nil {
		return &ExportError{Err: ErrExternalWriteFailed, Path: path, Cause: err}
	}
	_, err = f.Write(t.Data())
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &ExportError{Err: ErrExternalWriteFailed, Path: path, Cause: err}
	}
	klog.V(2).Infof("wrote external tensor %q to %s (%s)", tp.Name, path, humanize.Bytes(uint64(t.ByteSize())))

	tp.ExternalData = append(tp.ExternalData, onnx.StringStringEntry{Key: "location", Value: fileName})
	tp.DataLocation = onnx.DataLocationExternal
	return nil
}

// ExternalFileName maps a tensor name to a portable file name by replacing
// each of \ / : ? " < > | with an underscore.
func ExternalFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
}

// FileRootPath returns the directory holding the model file at path: slashes
// are normalized, trailing slashes dropped, and "." is returned when path has
// no directory part.
func FileRootPath(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")
	root := strings.TrimRight(normalized, "/")
	folder := root
	if i := strings.LastIndex(root, "/"); i >= 0 {
		folder = root[:i]
	}
	if folder == normalized {
		return "."
	}
	return folder
}
