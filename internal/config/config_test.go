package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/export"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	opts, err := cfg.ExportOptions()
	require.NoError(t, err)
	assert.Equal(t, int64(17), opts.OpsetVersion)
	assert.Equal(t, export.PolicyONNX, opts.Policy)
	assert.True(t, opts.AddNodeNames)
	assert.True(t, opts.KeepInitializersAsInputs)
	assert.Equal(t, 1024, opts.ExternalThreshold)
	assert.Nil(t, opts.DynamicAxes)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
opset_version = 13
policy = "onnx_native_fallback"
keep_initializers_as_inputs = false
strip_doc_string = true
external_threshold = 64

[custom_opsets]
"com.example" = 2

[dynamic_axes.input_ids]
0 = "batch"
1 = "sequence"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	opts, err := cfg.ExportOptions()
	require.NoError(t, err)
	assert.Equal(t, int64(13), opts.OpsetVersion)
	assert.Equal(t, export.PolicyNativeFallback, opts.Policy)
	assert.False(t, opts.KeepInitializersAsInputs)
	assert.True(t, opts.StripDocString)
	// Unset keys keep their defaults.
	assert.True(t, opts.AddNodeNames)
	assert.Equal(t, int64(8), opts.IRVersion)
	assert.Equal(t, 64, opts.ExternalThreshold)
	assert.Equal(t, map[string]int64{"com.example": 2}, opts.CustomOpsets)
	assert.Equal(t, map[string]map[int]string{"input_ids": {0: "batch", 1: "sequence"}}, opts.DynamicAxes)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "opset = 3\n", "unknown keys opset"},
		{"bad policy", "policy = \"caffe\"\n", "unknown operator export type"},
		{"bad axis", "[dynamic_axes.x]\nfirst = \"batch\"\n", "not a non-negative integer"},
		{"empty symbol", "[dynamic_axes.x]\n0 = \"\"\n", "empty symbol name"},
		{"conflicting modes", "use_external_data = true\ndefer_weight_export = true\n", "mutually exclusive"},
		{"bad opset", "opset_version = 0\n", "must be positive"},
		{"syntax", "opset_version = \n", "failed to read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestMergeDynamicAxes(t *testing.T) {
	cfg := Default()
	cfg.MergeDynamicAxes(map[string]map[int]string{"x": {0: "batch"}})
	cfg.MergeDynamicAxes(map[string]map[int]string{"x": {0: "n", 2: "width"}, "y": {1: "len"}})

	opts, err := cfg.ExportOptions()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]string{
		"x": {0: "n", 2: "width"},
		"y": {1: "len"},
	}, opts.DynamicAxes)
}

func TestDefaultDynamicAxes(t *testing.T) {
	cfg := Default()
	cfg.MergeDynamicAxes(map[string]map[int]string{"x": {0: "batch"}})
	cfg.DefaultDynamicAxes(map[string]map[int]string{"x": {0: "n", 1: "len"}})

	opts, err := cfg.ExportOptions()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]string{"x": {0: "batch", 1: "len"}}, opts.DynamicAxes)
}
