// Package onnx holds the ONNX protobuf records together with their wire codec.
//
// The records are hand-written Go structs (proto.go) covering the subset of the
// ONNX schema that the exporter produces: models, graphs, nodes, attributes,
// tensors (inline or external), value types including sequences, and
// model-local functions.
//
// Key components:
//   - Marshal: deterministic protobuf encoding of a ModelProto
//   - Parse / ParseFile: protobuf decoding back into the same records
//   - CheckModel: structural well-formedness checks
//   - Info / Format: summaries and a readable text dump
//
// Example usage:
//
//	model, err := onnx.ParseFile("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := onnx.CheckModel(model); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(onnx.Format(model))
package onnx
