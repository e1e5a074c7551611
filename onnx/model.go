package onnx

import (
	internalonnx "github.com/born-ml/onnxport/internal/onnx"
)

// ModelProto and the records it is made of.
type (
	ModelProto        = internalonnx.ModelProto
	GraphProto        = internalonnx.GraphProto
	NodeProto         = internalonnx.NodeProto
	TensorProto       = internalonnx.TensorProto
	ValueInfoProto    = internalonnx.ValueInfoProto
	TypeProto         = internalonnx.TypeProto
	AttributeProto    = internalonnx.AttributeProto
	FunctionProto     = internalonnx.FunctionProto
	OperatorSetID     = internalonnx.OperatorSetID
	StringStringEntry = internalonnx.StringStringEntry
)

// ModelInfo summarizes a model.
//
// Use [GetModelInfo] to inspect a model file.
type ModelInfo = internalonnx.ModelInfo

// GetModelInfo parses the model at path and summarizes it.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Producer: %s\n", info.ProducerName)
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Inputs: %v\n", info.InputNames)
//	fmt.Printf("External initializers: %d\n", info.ExternalCount)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// Format renders a model as readable text.
func Format(m *ModelProto) string {
	return internalonnx.Format(m)
}
