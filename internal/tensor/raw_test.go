package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		want  int
	}{
		{Float32, 4},
		{Float64, 8},
		{Float16, 2},
		{BFloat16, 2},
		{Int8, 1},
		{Int16, 2},
		{Int32, 4},
		{Int64, 8},
		{Uint8, 1},
		{Bool, 1},
		{QInt8, 1},
		{QUInt8, 1},
		{QInt32, 4},
		{Complex64, 8},
		{Complex128, 16},
	}
	for _, tt := range tests {
		t.Run(tt.dtype.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dtype.Size())
		})
	}
	assert.Panics(t, func() { Undefined.Size() })
}

func TestParseDataType(t *testing.T) {
	for dt := Float32; dt <= Complex128; dt++ {
		got, ok := ParseDataType(dt.String())
		require.True(t, ok, dt.String())
		assert.Equal(t, dt, got)
	}
	got, ok := ParseDataType("half")
	require.True(t, ok)
	assert.Equal(t, Float16, got)

	_, ok = ParseDataType("string")
	assert.False(t, ok)
}

func TestFromSlice(t *testing.T) {
	raw, err := FromSlice(Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Float32, raw.DType())
	assert.Equal(t, 16, len(raw.Data()))
	assert.Equal(t, []float32{1, 2, 3, 4}, raw.AsFloat32())

	_, err = FromSlice(Shape{3}, []int64{1, 2})
	assert.Error(t, err)
}

func TestFromBytesSizeMismatch(t *testing.T) {
	_, err := FromBytes(Shape{2}, Int32, make([]byte, 7))
	assert.Error(t, err)

	raw, err := FromBytes(Shape{0, 3}, Int32, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, raw.NumElements())
}

func TestFromFloat32sAsHalf(t *testing.T) {
	raw, err := FromFloat32sAsHalf(Shape{3}, []float32{1, 0.5, -2})
	require.NoError(t, err)
	assert.Equal(t, Float16, raw.DType())
	assert.Equal(t, 6, raw.ByteSize())
	assert.Equal(t, []float32{1, 0.5, -2}, raw.AsFloat32())
}

func TestContiguousTranspose(t *testing.T) {
	base, err := FromSlice(Shape{2, 3}, []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	// Transposed view: shape [3 2], strides [1 3].
	view, err := NewView(base, Shape{3, 2}, []int{1, 3}, 0)
	require.NoError(t, err)
	assert.False(t, view.IsContiguous())

	c := view.Contiguous()
	assert.True(t, c.IsContiguous())
	assert.Equal(t, []int64{1, 4, 2, 5, 3, 6}, c.AsInt64())
	assert.Same(t, base, base.Contiguous())
}

func TestViewWithOffset(t *testing.T) {
	base, err := FromSlice(Shape{4}, []int64{10, 20, 30, 40})
	require.NoError(t, err)

	view, err := NewView(base, Shape{2}, []int{1}, 2)
	require.NoError(t, err)
	assert.True(t, view.IsContiguous())
	assert.Equal(t, []int64{30, 40}, view.AsInt64())

	_, err = NewView(base, Shape{3}, []int{1}, 2)
	assert.Error(t, err)
}

func TestToHost(t *testing.T) {
	raw, err := FromSlice(Shape{2}, []float32{1, 2})
	require.NoError(t, err)
	assert.Same(t, raw, raw.Host())

	gpu := raw.To(CUDA)
	assert.Equal(t, CUDA, gpu.Device())
	host := gpu.Host()
	assert.Equal(t, CPU, host.Device())
	assert.Equal(t, raw.Data(), host.Data())
}

func TestRawTensorString(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, QInt8, Metal)
	require.NoError(t, err)
	assert.Equal(t, "qint8[2 3]@Metal", raw.String())
	assert.True(t, raw.DType().IsQuantized())
}
