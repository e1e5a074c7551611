package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/externaldata"
	"github.com/born-ml/onnxport/loader"
	"github.com/born-ml/onnxport/tensor"
)

func TestLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	w, err := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = externaldata.Materialize(context.Background(), externaldata.NewSafeTensorsSink(path, nil),
		map[string]*tensor.RawTensor{"w": w})
	require.NoError(t, err)

	reader, err := loader.OpenWeights(path)
	require.NoError(t, err)
	assert.Equal(t, loader.FormatSafeTensors, reader.Format())
	assert.Equal(t, []string{"w"}, reader.TensorNames())
	require.NoError(t, reader.Close())

	weights, err := loader.LoadWeights(path)
	require.NoError(t, err)
	require.Contains(t, weights, "w")
	assert.Equal(t, []float32{1, 2, 3, 4}, weights["w"].AsFloat32())
}

func TestOpenWeightsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pt")
	require.NoError(t, os.WriteFile(path, []byte("pickle"), 0o600))

	_, err := loader.OpenWeights(path)
	assert.ErrorIs(t, err, loader.ErrUnsupportedFormat)
}
