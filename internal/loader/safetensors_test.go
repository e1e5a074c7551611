package loader

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/tensor"
)

// writeSafeTensors writes header followed by data as a SafeTensors file.
func writeSafeTensors(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))))
	_, err = file.Write(headerJSON)
	require.NoError(t, err)
	_, err = file.Write(data)
	require.NoError(t, err)
}

// createTestSafeTensorsFile writes weight [2,3] = 1..6 and bias [3] = 0.1..0.3.
func createTestSafeTensorsFile(t *testing.T, path string) {
	t.Helper()
	writeSafeTensors(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"weight":       SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2, 3}, DataOffsets: [2]int64{0, 24}},
		"bias":         SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{3}, DataOffsets: [2]int64{24, 36}},
	}, f32Bytes(1, 2, 3, 4, 5, 6, 0.1, 0.2, 0.3))
}

func openTestSafeTensors(t *testing.T) *SafeTensorsReader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	createTestSafeTensorsFile(t, path)
	reader, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

func TestNewSafeTensorsReader(t *testing.T) {
	reader := openTestSafeTensors(t)

	assert.Equal(t, "pt", reader.Metadata()["format"])
	assert.Equal(t, FormatSafeTensors, reader.Format())
	assert.Equal(t, []string{"bias", "weight"}, reader.TensorNames())
}

func TestSafeTensorsReader_TensorInfo(t *testing.T) {
	reader := openTestSafeTensors(t)

	info, err := reader.TensorInfo("weight")
	require.NoError(t, err)
	assert.Equal(t, SafeTensorsF32, info.DType)
	assert.Equal(t, []int{2, 3}, info.Shape)

	_, err = reader.TensorInfo("nonexistent")
	require.ErrorIs(t, err, ErrTensorNotFound)

	data, err := reader.ReadTensorData("weight")
	require.NoError(t, err)
	assert.Len(t, data, 24)
}

func TestSafeTensorsReader_LoadTensor(t *testing.T) {
	reader := openTestSafeTensors(t)

	weight, err := reader.LoadTensor("weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, weight.Shape())
	assert.Equal(t, tensor.Float32, weight.DType())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, weight.AsFloat32())

	bias, err := reader.LoadTensor("bias")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3}, bias.Shape())
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, bias.AsFloat32(), 1e-6)
}

func TestNewSafeTensorsReader_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]any
		data   []byte
		want   error
	}{
		{
			name:   "size mismatch",
			header: map[string]any{"w": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2, 3}, DataOffsets: [2]int64{0, 20}}},
			data:   make([]byte, 24),
			want:   ErrSizeMismatch,
		},
		{
			name: "overlap",
			header: map[string]any{
				"a": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
				"b": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{4, 12}},
			},
			data: make([]byte, 12),
			want: ErrOffsetOverlap,
		},
		{
			name:   "out of bounds",
			header: map[string]any{"w": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{4}, DataOffsets: [2]int64{0, 16}}},
			data:   make([]byte, 8),
			want:   ErrOutOfBounds,
		},
		{
			name:   "unknown dtype",
			header: map[string]any{"w": SafeTensorInfo{DType: "F8_E4M3", Shape: []int{4}, DataOffsets: [2]int64{0, 4}}},
			data:   make([]byte, 4),
			want:   ErrUnsupportedDType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.safetensors")
			writeSafeTensors(t, path, tt.header, tt.data)
			_, err := NewSafeTensorsReader(path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
