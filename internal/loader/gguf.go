package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/onnxport/internal/tensor"
)

// GGUF format (v2 and v3):
// [4 bytes: "GGUF" magic]
// [4 bytes: version]
// [8 bytes: tensor_count]
// [8 bytes: metadata_kv_count]
// [metadata key-value pairs]
// [tensor infos]
// [alignment padding]
// [tensor data (aligned)]

const (
	ggufMagic            = 0x46554747 // "GGUF" in little-endian
	ggufDefaultAlignment = 32
	ggufMaxStringLen     = 1 << 20
	ggufMaxArrayLen      = 1 << 24
)

// GGUFType represents GGUF metadata value types.
type GGUFType uint32

// GGUF value types.
const (
	GGUFTypeUint8   GGUFType = 0
	GGUFTypeInt8    GGUFType = 1
	GGUFTypeUint16  GGUFType = 2
	GGUFTypeInt16   GGUFType = 3
	GGUFTypeUint32  GGUFType = 4
	GGUFTypeInt32   GGUFType = 5
	GGUFTypeFloat32 GGUFType = 6
	GGUFTypeBool    GGUFType = 7
	GGUFTypeString  GGUFType = 8
	GGUFTypeArray   GGUFType = 9
	GGUFTypeUint64  GGUFType = 10
	GGUFTypeInt64   GGUFType = 11
	GGUFTypeFloat64 GGUFType = 12
)

// GGUFDType represents GGUF tensor data types.
type GGUFDType uint32

// GGUF tensor dtypes. Block-quantized types can be listed but not loaded.
const (
	GGUFDTypeF32  GGUFDType = 0
	GGUFDTypeF16  GGUFDType = 1
	GGUFDTypeQ4_0 GGUFDType = 2
	GGUFDTypeQ4_1 GGUFDType = 3
	GGUFDTypeQ8_0 GGUFDType = 8
	GGUFDTypeI8   GGUFDType = 24
	GGUFDTypeI16  GGUFDType = 25
	GGUFDTypeI32  GGUFDType = 26
	GGUFDTypeI64  GGUFDType = 27
	GGUFDTypeF64  GGUFDType = 28
	GGUFDTypeBF16 GGUFDType = 30
)

// GGUFMetadata stores GGUF metadata key-value pairs.
type GGUFMetadata map[string]any

// GGUFTensorInfo describes a tensor in GGUF format.
type GGUFTensorInfo struct {
	Name   string
	Dims   []uint64 // Dimensions, innermost first
	DType  GGUFDType
	Offset uint64 // Offset in data section
}

// Shape returns the tensor's dimensions outermost first.
func (info *GGUFTensorInfo) Shape() tensor.Shape {
	shape := make(tensor.Shape, len(info.Dims))
	for i, dim := range info.Dims {
		shape[len(shape)-1-i] = int(dim) //nolint:gosec // G115: dims are bounded by the file size
	}
	return shape
}

// GGUFReader reads GGUF format files.
type GGUFReader struct {
	file       *os.File
	r          *bufio.Reader
	version    uint32
	metadata   GGUFMetadata
	tensors    map[string]GGUFTensorInfo
	dataOffset int64
}

var _ WeightsReader = (*GGUFReader)(nil)

// NewGGUFReader opens path and parses its header.
func NewGGUFReader(path string) (*GGUFReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for weight loading
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	reader := &GGUFReader{
		file:     file,
		r:        bufio.NewReader(file),
		metadata: make(GGUFMetadata),
		tensors:  make(map[string]GGUFTensorInfo),
	}
	if err := reader.parseHeader(); err != nil {
		_ = file.Close()
		return nil, errors.WithMessagef(err, "reading %s", path)
	}
	return reader, nil
}

func (r *GGUFReader) read(v any) error {
	return binary.Read(r.r, binary.LittleEndian, v)
}

//nolint:gocyclo,cyclop // Sequential header fields
func (r *GGUFReader) parseHeader() error {
	var magic uint32
	if err := r.read(&magic); err != nil {
		return errors.Wrap(err, "failed to read magic")
	}
	if magic != ggufMagic {
		return &FormatError{Err: ErrInvalidMagic, Details: fmt.Sprintf("0x%X (expected 0x%X)", magic, ggufMagic)}
	}
	if err := r.read(&r.version); err != nil {
		return errors.Wrap(err, "failed to read version")
	}
	if r.version != 2 && r.version != 3 {
		return &FormatError{Err: ErrUnsupportedVer, Details: fmt.Sprintf("GGUF v%d (v2 and v3 supported)", r.version)}
	}

	var tensorCount, metadataCount uint64
	if err := r.read(&tensorCount); err != nil {
		return errors.Wrap(err, "failed to read tensor count")
	}
	if err := r.read(&metadataCount); err != nil {
		return errors.Wrap(err, "failed to read metadata count")
	}
	if tensorCount > MaxTensorCount {
		return &FormatError{Err: ErrHeaderTooLarge, Details: fmt.Sprintf("%d tensors", tensorCount)}
	}

	for i := uint64(0); i < metadataCount; i++ {
		key, value, err := r.readMetadataKV()
		if err != nil {
			return errors.WithMessagef(err, "failed to read metadata[%d]", i)
		}
		r.metadata[key] = value
	}

	for i := uint64(0); i < tensorCount; i++ {
		info, err := r.readTensorInfo()
		if err != nil {
			return errors.WithMessagef(err, "failed to read tensor info[%d]", i)
		}
		r.tensors[info.Name] = info
	}

	alignment := uint64(ggufDefaultAlignment)
	if a, ok := r.metadata["general.alignment"].(uint32); ok && a > 0 {
		alignment = uint64(a)
	}
	pos, err := r.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "failed to get current position")
	}
	consumed := uint64(pos) - uint64(r.r.Buffered())       //nolint:gosec // G115: file positions are non-negative
	r.dataOffset = int64(alignOffset(consumed, alignment)) //nolint:gosec // G115: bounded by the file size

	stat, err := r.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat file")
	}
	extents := make([]tensorExtent, 0, len(r.tensors))
	for name, info := range r.tensors {
		extents = append(extents, tensorExtent{Name: name, Offset: int64(info.Offset), Size: int64(tensorByteSize(&info))}) //nolint:gosec // G115
	}
	return validateExtents(extents, stat.Size()-r.dataOffset)
}

func readValue[T any](r *GGUFReader) (T, error) {
	var v T
	err := r.read(&v)
	return v, err
}

func (r *GGUFReader) readString() (string, error) {
	var length uint64
	if err := r.read(&length); err != nil {
		return "", err
	}
	if length > ggufMaxStringLen {
		return "", &FormatError{Err: ErrHeaderTooLarge, Details: fmt.Sprintf("string length %d", length)}
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *GGUFReader) readMetadataKV() (string, any, error) {
	key, err := r.readString()
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read key")
	}
	var valueType GGUFType
	if err := r.read(&valueType); err != nil {
		return "", nil, errors.Wrap(err, "failed to read value type")
	}
	value, err := r.readMetadataValue(valueType)
	if err != nil {
		return "", nil, errors.WithMessagef(err, "failed to read value of %q", key)
	}
	return key, value, nil
}

//nolint:gocyclo,cyclop // One arm per value type
func (r *GGUFReader) readMetadataValue(valueType GGUFType) (any, error) {
	switch valueType {
	case GGUFTypeUint8:
		return readValue[uint8](r)
	case GGUFTypeInt8:
		return readValue[int8](r)
	case GGUFTypeUint16:
		return readValue[uint16](r)
	case GGUFTypeInt16:
		return readValue[int16](r)
	case GGUFTypeUint32:
		return readValue[uint32](r)
	case GGUFTypeInt32:
		return readValue[int32](r)
	case GGUFTypeFloat32:
		return readValue[float32](r)
	case GGUFTypeBool:
		return readValue[bool](r)
	case GGUFTypeString:
		return r.readString()
	case GGUFTypeUint64:
		return readValue[uint64](r)
	case GGUFTypeInt64:
		return readValue[int64](r)
	case GGUFTypeFloat64:
		return readValue[float64](r)
	case GGUFTypeArray:
		var elemType GGUFType
		if err := r.read(&elemType); err != nil {
			return nil, err
		}
		var n uint64
		if err := r.read(&n); err != nil {
			return nil, err
		}
		if n > ggufMaxArrayLen {
			return nil, &FormatError{Err: ErrHeaderTooLarge, Details: fmt.Sprintf("array length %d", n)}
		}
		values := make([]any, n)
		for i := range values {
			v, err := r.readMetadataValue(elemType)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	default:
		return nil, &FormatError{Err: ErrUnsupportedFormat, Details: fmt.Sprintf("unknown GGUF value type %d", valueType)}
	}
}

func (r *GGUFReader) readTensorInfo() (GGUFTensorInfo, error) {
	var info GGUFTensorInfo
	name, err := r.readString()
	if err != nil {
		return info, errors.Wrap(err, "failed to read tensor name")
	}
	info.Name = name

	var nDims uint32
	if err := r.read(&nDims); err != nil {
		return info, errors.Wrap(err, "failed to read n_dims")
	}
	if nDims > 8 {
		return info, &FormatError{Err: ErrSizeMismatch, Tensor: name, Details: fmt.Sprintf("%d dimensions", nDims)}
	}
	info.Dims = make([]uint64, nDims)
	for i := range info.Dims {
		if err := r.read(&info.Dims[i]); err != nil {
			return info, errors.Wrapf(err, "failed to read dim[%d]", i)
		}
	}
	if err := r.read(&info.DType); err != nil {
		return info, errors.Wrap(err, "failed to read dtype")
	}
	if err := r.read(&info.Offset); err != nil {
		return info, errors.Wrap(err, "failed to read offset")
	}
	return info, nil
}

// Close closes the GGUF file.
func (r *GGUFReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Format returns FormatGGUF.
func (r *GGUFReader) Format() WeightsFormat {
	return FormatGGUF
}

// Version returns the GGUF format version.
func (r *GGUFReader) Version() uint32 {
	return r.version
}

// RawMetadata returns the typed metadata values.
func (r *GGUFReader) RawMetadata() GGUFMetadata {
	return r.metadata
}

// Metadata returns the metadata values rendered as strings.
func (r *GGUFReader) Metadata() map[string]string {
	out := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		if values, ok := v.([]any); ok {
			out[k] = fmt.Sprintf("[%d values]", len(values))
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// TensorNames returns the names of all tensors, sorted.
func (r *GGUFReader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *GGUFReader) TensorInfo(name string) (*GGUFTensorInfo, error) {
	info, ok := r.tensors[name]
	if !ok {
		return nil, &FormatError{Err: ErrTensorNotFound, Tensor: name, Details: "not in GGUF header"}
	}
	return &info, nil
}

// ReadTensorData reads raw tensor data for a given tensor.
func (r *GGUFReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, tensorByteSize(info))
	if _, err := r.file.ReadAt(data, r.dataOffset+int64(info.Offset)); err != nil { //nolint:gosec // G115: validated against the file size
		return nil, errors.Wrapf(err, "failed to read tensor %s", name)
	}
	return data, nil
}

// LoadTensor loads a tensor into host memory. Block-quantized tensors
// (Q4_0, Q4_1, Q8_0) are dequantized to Float32.
func (r *GGUFReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}
	shape := info.Shape()
	if isBlockQuantized(info.DType) {
		values, err := dequantize(data, info.DType, shape.NumElements())
		if err != nil {
			return nil, &FormatError{Err: ErrSizeMismatch, Tensor: name, Details: err.Error()}
		}
		return tensor.FromSlice(shape, values)
	}
	dtype, err := ggufDTypeToDataType(info.DType)
	if err != nil {
		return nil, &FormatError{Err: ErrUnsupportedDType, Tensor: name, Details: err.Error()}
	}
	return tensor.FromBytes(shape, dtype, data)
}

// tensorByteSize calculates the byte size of a tensor, including block-quantized ones.
func tensorByteSize(info *GGUFTensorInfo) uint64 {
	numElements := uint64(1)
	for _, dim := range info.Dims {
		numElements *= dim
	}

	switch info.DType {
	case GGUFDTypeQ4_0:
		// 32 values per block: fp16 scale + 16 bytes of 4-bit values
		return (numElements + 31) / 32 * 18
	case GGUFDTypeQ4_1:
		// 32 values per block: fp16 scale and min + 16 bytes of 4-bit values
		return (numElements + 31) / 32 * 20
	case GGUFDTypeQ8_0:
		// 32 values per block: fp16 scale + 32 bytes of 8-bit values
		return (numElements + 31) / 32 * 34
	case GGUFDTypeI8:
		return numElements
	case GGUFDTypeF16, GGUFDTypeBF16, GGUFDTypeI16:
		return numElements * 2
	case GGUFDTypeI64, GGUFDTypeF64:
		return numElements * 8
	default:
		return numElements * 4
	}
}

// ggufDTypeToDataType converts a GGUF dtype to a DataType. Block-quantized
// types have no element type.
func ggufDTypeToDataType(dtype GGUFDType) (tensor.DataType, error) {
	switch dtype {
	case GGUFDTypeF32:
		return tensor.Float32, nil
	case GGUFDTypeF16:
		return tensor.Float16, nil
	case GGUFDTypeBF16:
		return tensor.BFloat16, nil
	case GGUFDTypeF64:
		return tensor.Float64, nil
	case GGUFDTypeI8:
		return tensor.Int8, nil
	case GGUFDTypeI16:
		return tensor.Int16, nil
	case GGUFDTypeI32:
		return tensor.Int32, nil
	case GGUFDTypeI64:
		return tensor.Int64, nil
	case GGUFDTypeQ4_0, GGUFDTypeQ4_1, GGUFDTypeQ8_0:
		return tensor.Undefined, errors.Errorf("block-quantized dtype %d requires dequantization", dtype)
	default:
		return tensor.Undefined, errors.Errorf("unknown GGUF dtype %d", dtype)
	}
}

// alignOffset aligns an offset to the specified alignment.
func alignOffset(offset, alignment uint64) uint64 {
	if offset%alignment == 0 {
		return offset
	}
	return offset + (alignment - offset%alignment)
}
