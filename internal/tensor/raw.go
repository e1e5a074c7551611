package tensor

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/x448/float16"
)

// Device represents the device a tensor payload lives on.
type Device int

// Supported devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor payload: a byte buffer plus shape, strides
// and element type. A RawTensor may be a strided view into a larger buffer.
type RawTensor struct {
	data   []byte   // Backing buffer (may be shared by views)
	shape  Shape    // Tensor dimensions
	stride []int    // Strides in elements
	dtype  DataType // Element type
	device Device   // Device the buffer belongs to
	offset int      // Offset of the first element, in elements
}

// NewRaw creates a new zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if dtype == Undefined {
		return nil, fmt.Errorf("invalid dtype: %s", dtype)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromBytes creates a contiguous CPU tensor that takes ownership of data.
// len(data) must equal shape.NumElements() * dtype.Size().
func FromBytes(shape Shape, dtype DataType, data []byte) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if dtype == Undefined {
		return nil, fmt.Errorf("invalid dtype: %s", dtype)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("data size mismatch for %s%v: got %d bytes, want %d", dtype, shape, len(data), want)
	}
	return &RawTensor{
		data:   data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: CPU,
	}, nil
}

// FromSlice creates a contiguous CPU tensor holding a copy of values.
func FromSlice[T DType](shape Shape, values []T) (*RawTensor, error) {
	var zero T
	dtype := inferDataType(zero)
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, shape.NumElements(), len(values))
	}
	raw, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		//nolint:gosec // unsafe.Slice over a typed slice of known length
		src := unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*dtype.Size())
		copy(raw.data, src)
	}
	return raw, nil
}

// FromFloat32sAsHalf creates a Float16 CPU tensor, rounding each value to half precision.
func FromFloat32sAsHalf(shape Shape, values []float32) (*RawTensor, error) {
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, shape.NumElements(), len(values))
	}
	raw, err := NewRaw(shape, Float16, CPU)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		bits := float16.Fromfloat32(v).Bits()
		raw.data[2*i] = byte(bits)
		raw.data[2*i+1] = byte(bits >> 8)
	}
	return raw, nil
}

// NewView returns a strided view over base's buffer. Strides and offset are in elements.
// The view shares memory with base.
func NewView(base *RawTensor, shape Shape, strides []int, offset int) (*RawTensor, error) {
	if len(strides) != len(shape) {
		return nil, fmt.Errorf("view rank mismatch: shape %v, strides %v", shape, strides)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	last := offset
	for i, d := range shape {
		if d == 0 {
			last = offset
			break
		}
		last += (d - 1) * strides[i]
	}
	if offset < 0 || (last+1)*base.dtype.Size() > len(base.data) {
		return nil, fmt.Errorf("view %v (strides %v, offset %d) exceeds buffer of %d bytes", shape, strides, offset, len(base.data))
	}
	return &RawTensor{
		data:   base.data,
		shape:  shape.Clone(),
		stride: append([]int(nil), strides...),
		dtype:  base.dtype,
		device: base.device,
		offset: offset,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's strides, in elements.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the size in bytes of the tensor's elements.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// IsContiguous reports whether the tensor is laid out row-major without gaps.
func (r *RawTensor) IsContiguous() bool {
	expected := 1
	for i := len(r.shape) - 1; i >= 0; i-- {
		if r.shape[i] == 1 {
			continue
		}
		if r.stride[i] != expected {
			return false
		}
		expected *= r.shape[i]
	}
	return true
}

// Data returns the tensor's bytes in row-major order.
// For contiguous tensors this aliases the underlying buffer; otherwise a compacted copy is returned.
func (r *RawTensor) Data() []byte {
	if !r.IsContiguous() {
		return r.Contiguous().data
	}
	start := r.offset * r.dtype.Size()
	return r.data[start : start+r.ByteSize()]
}

// Contiguous returns r itself when it is already contiguous, or a compacted
// copy on the same device.
func (r *RawTensor) Contiguous() *RawTensor {
	if r.IsContiguous() {
		return r
	}
	size := r.dtype.Size()
	out := make([]byte, r.ByteSize())
	index := make([]int, len(r.shape))
	for n := 0; n < r.NumElements(); n++ {
		src := r.offset
		for i, idx := range index {
			src += idx * r.stride[i]
		}
		copy(out[n*size:(n+1)*size], r.data[src*size:(src+1)*size])
		for i := len(index) - 1; i >= 0; i-- {
			index[i]++
			if index[i] < r.shape[i] {
				break
			}
			index[i] = 0
		}
	}
	return &RawTensor{
		data:   out,
		shape:  r.shape.Clone(),
		stride: r.shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}
}

// To returns the tensor placed on device. Placing a tensor on its own device returns it unchanged.
func (r *RawTensor) To(device Device) *RawTensor {
	if r.device == device {
		return r
	}
	c := r.Contiguous()
	data := make([]byte, c.ByteSize())
	copy(data, c.Data())
	return &RawTensor{
		data:   data,
		shape:  c.shape.Clone(),
		stride: c.shape.ComputeStrides(),
		dtype:  c.dtype,
		device: device,
	}
}

// Host returns the tensor resident in host memory.
func (r *RawTensor) Host() *RawTensor {
	return r.To(CPU)
}

// AsFloat32 decodes the tensor's elements as float32 values.
// Float16 tensors are widened. Panics for any other dtype.
func (r *RawTensor) AsFloat32() []float32 {
	data := r.Data()
	switch r.dtype {
	case Float32:
		out := make([]float32, r.NumElements())
		for i := range out {
			bits := uint32(data[4*i]) | uint32(data[4*i+1])<<8 | uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
			out[i] = math.Float32frombits(bits)
		}
		return out
	case Float16:
		out := make([]float32, r.NumElements())
		for i := range out {
			out[i] = float16.Frombits(uint16(data[2*i]) | uint16(data[2*i+1])<<8).Float32()
		}
		return out
	default:
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
}

// AsInt64 decodes the tensor's elements as int64 values.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	data := r.Data()
	out := make([]int64, r.NumElements())
	for i := range out {
		var v uint64
		for b := 7; b >= 0; b-- {
			v = v<<8 | uint64(data[8*i+b])
		}
		out[i] = int64(v)
	}
	return out
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	c := r.Contiguous()
	data := make([]byte, c.ByteSize())
	copy(data, c.Data())
	return &RawTensor{
		data:   data,
		shape:  c.shape.Clone(),
		stride: c.shape.ComputeStrides(),
		dtype:  c.dtype,
		device: c.device,
	}
}

// String returns a short description like "float32[2 3]@CPU".
func (r *RawTensor) String() string {
	return fmt.Sprintf("%s%v@%s", r.dtype, []int(r.shape), r.device)
}
