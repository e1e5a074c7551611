package export

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Serialize encodes m, refusing models that exceed MaxProtoSize.
func Serialize(m *onnx.ModelProto) ([]byte, error) {
	data := onnx.Marshal(m)
	if len(data) > MaxProtoSize {
		return nil, &ExportError{Err: ErrModelTooLarge, Details: humanize.Bytes(uint64(len(data)))}
	}
	return data, nil
}

// ExportToFile exports g and writes the serialized model to path. External
// data files, when used, are written next to it.
func ExportToFile(path string, g *ir.Graph, initializers map[string]*tensor.RawTensor, opts Options) (*Result, error) {
	opts.ModelPath = path
	res, err := Export(g, initializers, opts)
	if err != nil {
		return nil, err
	}
	data, err := Serialize(res.Model)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // Model files are meant to be shared
		return nil, errors.Wrapf(err, "failed to write model to %s", path)
	}
	klog.V(1).Infof("wrote %s (%s, external data: %v)", path, humanize.Bytes(uint64(len(data))), res.UsedExternalData)
	return res, nil
}

// CheckSerialized parses data as a model and runs the structural checker on it.
func CheckSerialized(data []byte) error {
	m, err := onnx.Parse(data)
	if err != nil {
		return &ExportError{Err: ErrInvalidSerializedModel, Cause: err}
	}
	if err := onnx.CheckModel(m); err != nil {
		return &ExportError{Err: ErrInvalidSerializedModel, Cause: err}
	}
	return nil
}
