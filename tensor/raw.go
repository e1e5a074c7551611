// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/onnxport/internal/tensor"
)

// RawTensor is a tensor payload.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Host access to contiguous bytes via Contiguous().Host().Data()
//   - Decoding helpers AsFloat32() and AsInt64()
type RawTensor = tensor.RawTensor

// Shape lists the dimensions of a tensor.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Device is where a payload lives.
type Device = tensor.Device

// DType constrains the element types FromSlice accepts.
type DType = tensor.DType

// Element types.
const (
	Undefined  = tensor.Undefined
	Float32    = tensor.Float32
	Float64    = tensor.Float64
	Float16    = tensor.Float16
	BFloat16   = tensor.BFloat16
	Int8       = tensor.Int8
	Int16      = tensor.Int16
	Int32      = tensor.Int32
	Int64      = tensor.Int64
	Uint8      = tensor.Uint8
	Bool       = tensor.Bool
	QInt8      = tensor.QInt8
	QUInt8     = tensor.QUInt8
	QInt32     = tensor.QInt32
	Complex64  = tensor.Complex64
	Complex128 = tensor.Complex128
)

// Devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// NewRaw allocates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromBytes wraps little-endian element bytes as a CPU tensor.
func FromBytes(shape Shape, dtype DataType, data []byte) (*RawTensor, error) {
	return tensor.FromBytes(shape, dtype, data)
}

// FromSlice copies values into a new CPU tensor.
func FromSlice[T DType](shape Shape, values []T) (*RawTensor, error) {
	return tensor.FromSlice(shape, values)
}

// FromFloat32sAsHalf creates a Float16 CPU tensor from float32 values.
func FromFloat32sAsHalf(shape Shape, values []float32) (*RawTensor, error) {
	return tensor.FromFloat32sAsHalf(shape, values)
}

// NewView returns a strided view of base sharing its storage.
func NewView(base *RawTensor, shape Shape, strides []int, offset int) (*RawTensor, error) {
	return tensor.NewView(base, shape, strides, offset)
}

// ParseDataType returns the DataType named s ("float32", "int64", ...).
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
