package externaldata

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// SafeTensorsSink collects tensors and writes them to a single SafeTensors
// file on Close.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name. Locations carry the
// file's base name and the absolute byte range of each payload, so the file
// must sit next to the model.
type SafeTensorsSink struct {
	Path     string
	Metadata map[string]string

	tensors map[string]*tensor.RawTensor
	closed  bool
}

var _ Sink = (*SafeTensorsSink)(nil)

// NewSafeTensorsSink returns a sink writing to path.
func NewSafeTensorsSink(path string, metadata map[string]string) *SafeTensorsSink {
	return &SafeTensorsSink{Path: path, Metadata: metadata, tensors: make(map[string]*tensor.RawTensor)}
}

// Put buffers t under name.
func (s *SafeTensorsSink) Put(_ context.Context, name string, t *tensor.RawTensor) error {
	if s.closed {
		return &TensorError{Err: ErrSinkClosed, Tensor: name}
	}
	if name == "" || name == "__metadata__" {
		return &TensorError{Err: ErrInvalidTensorName, Tensor: name, Details: "reserved name"}
	}
	if _, err := dtypeToSafeTensors(t.DType()); err != nil {
		return &TensorError{Err: ErrUnsupportedDType, Tensor: name, Details: t.DType().String()}
	}
	if _, dup := s.tensors[name]; dup {
		return &TensorError{Err: ErrDuplicateTensor, Tensor: name}
	}
	if s.tensors == nil {
		s.tensors = make(map[string]*tensor.RawTensor)
	}
	s.tensors[name] = t
	return nil
}

// Close writes the file.
func (s *SafeTensorsSink) Close(ctx context.Context) (map[string]Location, error) {
	if s.closed {
		return nil, ErrSinkClosed
	}
	s.closed = true

	names := make([]string, 0, len(s.tensors))
	for name := range s.tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(s.Metadata) > 0 {
		header["__metadata__"] = s.Metadata
	}
	var offset int64
	for _, name := range names {
		raw := s.tensors[name]
		size := int64(raw.ByteSize())
		dtype, _ := dtypeToSafeTensors(raw.DType())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       raw.Shape().Int64s(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal header")
	}

	//nolint:gosec // G304: Output path is chosen by the caller
	file, err := os.Create(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file")
	}
	w := bufio.NewWriter(file)
	locs, writeErr := s.write(w, names, headerJSON)
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return nil, writeErr
	}

	klog.FromContext(ctx).V(1).Info("wrote safetensors file", "path", s.Path, "tensors", len(names),
		"size", humanize.Bytes(uint64(8+len(headerJSON))+uint64(offset)))
	return locs, nil
}

func (s *SafeTensorsSink) write(w *bufio.Writer, names []string, headerJSON []byte) (map[string]Location, error) {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return nil, errors.Wrap(err, "failed to write header size")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return nil, errors.Wrap(err, "failed to write header")
	}

	base := filepath.Base(s.Path)
	pos := int64(8 + len(headerJSON))
	locs := make(map[string]Location, len(names))
	for _, name := range names {
		data := s.tensors[name].Contiguous().Host().Data()
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrapf(err, "failed to write tensor %s", name)
		}
		locs[name] = Location{Path: base, Offset: pos, Length: int64(len(data)), Checksum: Checksum(data)}
		pos += int64(len(data))
	}
	return locs, nil
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
// Quantized types are stored as their integer storage type.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Float16:
		return "F16", nil
	case tensor.BFloat16:
		return "BF16", nil
	case tensor.Int8, tensor.QInt8:
		return "I8", nil
	case tensor.Int16:
		return "I16", nil
	case tensor.Int32, tensor.QInt32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	case tensor.Uint8, tensor.QUInt8:
		return "U8", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", errors.Errorf("no SafeTensors dtype for %s", dt)
	}
}
