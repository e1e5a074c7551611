// Package export encodes ir graphs into ONNX models.
//
// An export session validates the graph against an operator policy, decides
// whether initializers fit in a single protobuf message, and then walks the
// graph block by block producing GraphProto, NodeProto, AttributeProto and
// TensorProto records. Large tensors can be written to external files next to
// the model, or handed back to the caller through Result.ExportMap.
//
// Sessions are independent: Export keeps all of its state in the session and
// may be called concurrently on different graphs.
//
// Example:
//
//	res, err := export.Export(g, weights, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	data, err := export.Serialize(res.Model)
package export
