package onnx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckModelRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ModelProto)
		want   string
	}{
		{"old ir", func(m *ModelProto) { m.IRVersion = 2 }, "ir_version"},
		{"no opsets", func(m *ModelProto) { m.OpsetImport = nil }, "no opset_import"},
		{"no default opset", func(m *ModelProto) { m.OpsetImport = m.OpsetImport[1:] }, "default domain"},
		{"no graph", func(m *ModelProto) { m.Graph = nil }, "no graph"},
		{"unnamed graph", func(m *ModelProto) { m.Graph.Name = "" }, "no name"},
		{"undefined input", func(m *ModelProto) { m.Graph.Nodes[1].Inputs = []string{"nope"} }, `"nope" is not defined`},
		{"missing domain", func(m *ModelProto) {
			m.OpsetImport = m.OpsetImport[:1]
			m.Functions = nil
		}, `domain "custom"`},
		{"redefined output", func(m *ModelProto) { m.Graph.Nodes[1].Outputs = []string{"out"} }, "defined more than once"},
		{"undefined graph output", func(m *ModelProto) { m.Graph.Outputs[0].Name = "zz" }, "never defined"},
		{"raw size", func(m *ModelProto) { m.Graph.Initializers[0].RawData = []byte{1} }, "raw_data has 1 bytes"},
		{"external without location", func(m *ModelProto) { m.Graph.Initializers[1].ExternalData = nil }, "no location"},
		{"ref outside function", func(m *ModelProto) {
			m.Graph.Nodes[1].Attributes[0].RefAttrName = "factor"
		}, "outside a function"},
		{"untyped attribute", func(m *ModelProto) { m.Graph.Nodes[1].Attributes[1].Type = 0 }, "not set"},
		{"duplicate function", func(m *ModelProto) { m.Functions = append(m.Functions, m.Functions[0]) }, "duplicate function"},
		{"nested graph scope", func(m *ModelProto) {
			m.Graph.Nodes[0].Attributes[0].G.Nodes[1].Inputs[1] = "y"
		}, `"y" is not defined`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loopModel()
			tt.mutate(m)
			err := CheckModel(m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidModel))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckModelAcceptsDeferredSentinel(t *testing.T) {
	m := loopModel()
	m.Graph.Initializers[0].RawData = []byte(ExternalSentinel)
	assert.NoError(t, CheckModel(m))
}

func TestCheckModelAcceptsEmptyInputName(t *testing.T) {
	m := loopModel()
	require.Equal(t, "", m.Graph.Nodes[0].Inputs[0])
	assert.NoError(t, CheckModel(m))
}
