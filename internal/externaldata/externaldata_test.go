package externaldata

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// deferredExport exports y = x @ w + b with both parameters deferred.
func deferredExport(t *testing.T) *export.Result {
	t.Helper()
	f32 := func(dims ...int64) *ir.TensorType {
		ds := make([]ir.Dim, len(dims))
		for i, d := range dims {
			ds[i] = ir.StaticDim(d)
		}
		return ir.Tensor(tensor.Float32, ds...)
	}

	g := ir.NewGraph()
	x := g.AddInput("x", f32(1, 3))
	w := g.AddInput("fc/weight", f32(3, 2))
	b := g.AddInput("fc/bias", f32(2))
	mm := g.Block().AppendNode(ir.MustParseSymbol("onnx::MatMul"), x, w)
	add := g.Block().AppendNode(ir.MustParseSymbol("onnx::Add"), mm.AddOutput("h", f32(1, 2)), b)
	g.RegisterOutput(add.AddOutput("y", f32(1, 2)))

	weight, err := tensor.FromSlice(tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	bias, err := tensor.FromSlice(tensor.Shape{2}, []float32{0.5, -0.5})
	require.NoError(t, err)

	opts := export.DefaultOptions()
	opts.DeferWeightExport = true
	res, err := export.Export(g, map[string]*tensor.RawTensor{"fc/weight": weight, "fc/bias": bias}, opts)
	require.NoError(t, err)
	require.Len(t, res.ExportMap, 2)
	return res
}

func TestDirSinkMaterialize(t *testing.T) {
	dir := t.TempDir()
	res := deferredExport(t)

	locs, err := Materialize(context.Background(), NewDirSink(dir), res.ExportMap)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, Location{Path: "fc_weight", Length: 24, Checksum: Checksum(res.ExportMap["fc/weight"].Data())}, locs["fc/weight"])

	data, err := os.ReadFile(filepath.Join(dir, "fc_bias"))
	require.NoError(t, err)
	assert.Equal(t, res.ExportMap["fc/bias"].Data(), data)

	require.NoError(t, Relink(res.Model, locs))
	for _, init := range res.Model.Graph.Initializers {
		assert.Nil(t, init.RawData, init.Name)
		assert.Equal(t, int32(onnx.DataLocationExternal), init.DataLocation)
		assert.Equal(t, "location", init.ExternalData[0].Key)
	}
	require.NoError(t, onnx.CheckModel(res.Model))
}

func TestDirSinkRejectsBadNames(t *testing.T) {
	sink := NewDirSink(t.TempDir())
	one, err := tensor.FromSlice(tensor.Shape{1}, []float32{1})
	require.NoError(t, err)

	for _, name := range []string{"", ".", ".."} {
		assert.ErrorIs(t, sink.Put(context.Background(), name, one), ErrInvalidTensorName, name)
	}
	require.NoError(t, sink.Put(context.Background(), "w", one))
	assert.ErrorIs(t, sink.Put(context.Background(), "w", one), ErrDuplicateTensor)

	_, err = sink.Close(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, sink.Put(context.Background(), "v", one), ErrSinkClosed)
}

func TestDirSinkFileNameCollision(t *testing.T) {
	dir := t.TempDir()
	first, err := tensor.FromSlice(tensor.Shape{4}, []float32{1, 1, 1, 1})
	require.NoError(t, err)
	second, err := tensor.FromSlice(tensor.Shape{4}, []float32{2, 2, 2, 2})
	require.NoError(t, err)

	// Both names map to the file w_x.
	_, err = Materialize(context.Background(), NewDirSink(dir), map[string]*tensor.RawTensor{"w/x": first, "w:x": second})
	require.ErrorIs(t, err, ErrDuplicateTensor)
	assert.Contains(t, err.Error(), `"w_x"`)

	data, err := os.ReadFile(filepath.Join(dir, "w_x"))
	require.NoError(t, err)
	assert.Equal(t, first.Data(), data)
}

func TestDirSinkWriteFailure(t *testing.T) {
	res := deferredExport(t)
	_, err := Materialize(context.Background(), NewDirSink(filepath.Join(t.TempDir(), "missing")), res.ExportMap)
	require.Error(t, err)
}

func TestSafeTensorsSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.safetensors")
	res := deferredExport(t)

	locs, err := Materialize(context.Background(), NewSafeTensorsSink(path, map[string]string{"format": "onnx"}), res.ExportMap)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(data[:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[8:8+headerSize], &header))
	assert.Contains(t, header, "__metadata__")

	var bias SafeTensorHeader
	require.NoError(t, json.Unmarshal(header["fc/bias"], &bias))
	assert.Equal(t, SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{0, 8}}, bias)

	// Locations are absolute byte ranges, alphabetical order puts the bias first.
	loc := locs["fc/bias"]
	assert.Equal(t, "weights.safetensors", loc.Path)
	assert.Equal(t, int64(8+headerSize), loc.Offset)
	assert.Equal(t, int64(8), loc.Length)
	assert.Equal(t, res.ExportMap["fc/bias"].Data(), data[loc.Offset:loc.Offset+loc.Length])
	w := locs["fc/weight"]
	assert.Equal(t, loc.Offset+8, w.Offset)
	assert.Equal(t, res.ExportMap["fc/weight"].Data(), data[w.Offset:w.Offset+w.Length])

	require.NoError(t, Relink(res.Model, locs))
	for _, init := range res.Model.Graph.Initializers {
		if init.Name == "fc/weight" {
			assert.Equal(t, []onnx.StringStringEntry{
				{Key: "location", Value: "weights.safetensors"},
				{Key: "offset", Value: strconv.FormatInt(w.Offset, 10)},
				{Key: "length", Value: "24"},
			}, init.ExternalData)
		}
	}
}

func TestSafeTensorsSinkRejects(t *testing.T) {
	sink := NewSafeTensorsSink(filepath.Join(t.TempDir(), "w.safetensors"), nil)
	c, err := tensor.NewRaw(tensor.Shape{1}, tensor.Complex64, tensor.CPU)
	require.NoError(t, err)
	assert.ErrorIs(t, sink.Put(context.Background(), "c", c), ErrUnsupportedDType)
	assert.ErrorIs(t, sink.Put(context.Background(), "__metadata__", c), ErrInvalidTensorName)

	_, err = sink.Close(context.Background())
	require.NoError(t, err)
	_, err = sink.Close(context.Background())
	assert.ErrorIs(t, err, ErrSinkClosed)
}

type failingSink struct {
	puts   []string
	closed bool
}

func (s *failingSink) Put(_ context.Context, name string, _ *tensor.RawTensor) error {
	s.puts = append(s.puts, name)
	if name == "b" {
		return &TensorError{Err: ErrInvalidTensorName, Tensor: name}
	}
	return nil
}

func (s *failingSink) Close(context.Context) (map[string]Location, error) {
	s.closed = true
	return nil, nil
}

func TestMaterializeOrderAndFailure(t *testing.T) {
	one, err := tensor.FromSlice(tensor.Shape{1}, []float32{1})
	require.NoError(t, err)
	m := map[string]*tensor.RawTensor{"c": one, "a": one, "b": one}

	sink := &failingSink{}
	_, err = Materialize(context.Background(), sink, m)
	require.ErrorIs(t, err, ErrInvalidTensorName)
	assert.Equal(t, []string{"a", "b"}, sink.puts)
	assert.True(t, sink.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink = &failingSink{}
	_, err = Materialize(ctx, sink, m)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.puts)
	assert.True(t, sink.closed)
}

func TestRelinkMissingLocation(t *testing.T) {
	res := deferredExport(t)
	err := Relink(res.Model, map[string]Location{"fc/bias": {Path: "fc_bias"}})
	assert.ErrorIs(t, err, ErrMissingLocation)
	assert.Contains(t, err.Error(), "fc/weight")
}

func TestParseGCSURL(t *testing.T) {
	tests := []struct {
		url, bucket, prefix string
		wantErr             bool
	}{
		{url: "gs://models/resnet", bucket: "models", prefix: "resnet/"},
		{url: "gs://models/resnet/", bucket: "models", prefix: "resnet/"},
		{url: "gs://models", bucket: "models"},
		{url: "s3://models/x", wantErr: true},
		{url: "gs:///x", wantErr: true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseGCSURL(tt.url)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidURL, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.prefix, prefix)
	}

	s := &GCSSink{Bucket: "models", Prefix: "resnet/", locs: map[string]Location{}}
	assert.Equal(t, "gs://models/resnet/fc_w", s.URL(s.Prefix+"fc_w"))
}

func TestFileName(t *testing.T) {
	name, err := FileName("encoder/layer:0")
	require.NoError(t, err)
	assert.Equal(t, "encoder_layer_0", name)

	_, err = FileName(string(make([]byte, MaxTensorNameLen+1)))
	assert.ErrorIs(t, err, ErrTensorNameTooLong)
	_, err = FileName("a\x00b")
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}
