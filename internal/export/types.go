package export

import (
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// ToONNX maps an element type to its ONNX TensorProto.DataType code.
// Quantized types map to their storage integer type.
func ToONNX(dt tensor.DataType) (int32, error) {
	switch dt {
	case tensor.Float64:
		return onnx.TensorProtoDouble, nil
	case tensor.Float32:
		return onnx.TensorProtoFloat, nil
	case tensor.Float16:
		return onnx.TensorProtoFloat16, nil
	case tensor.Uint8, tensor.QUInt8:
		return onnx.TensorProtoUint8, nil
	case tensor.Int8, tensor.QInt8:
		return onnx.TensorProtoInt8, nil
	case tensor.Int16:
		return onnx.TensorProtoInt16, nil
	case tensor.Int32, tensor.QInt32:
		return onnx.TensorProtoInt32, nil
	case tensor.Int64:
		return onnx.TensorProtoInt64, nil
	case tensor.Bool:
		return onnx.TensorProtoBool, nil
	default:
		return onnx.TensorProtoUndefined, &ExportError{Err: ErrUnsupportedType, Details: dt.String()}
	}
}

// FromONNX maps an ONNX TensorProto.DataType code back to an element type.
// UNDEFINED maps to tensor.Undefined.
func FromONNX(code int32) (tensor.DataType, error) {
	switch code {
	case onnx.TensorProtoUndefined:
		return tensor.Undefined, nil
	case onnx.TensorProtoDouble:
		return tensor.Float64, nil
	case onnx.TensorProtoFloat:
		return tensor.Float32, nil
	case onnx.TensorProtoFloat16:
		return tensor.Float16, nil
	case onnx.TensorProtoBfloat16:
		return tensor.BFloat16, nil
	case onnx.TensorProtoUint8:
		return tensor.Uint8, nil
	case onnx.TensorProtoInt8:
		return tensor.Int8, nil
	case onnx.TensorProtoInt16:
		return tensor.Int16, nil
	case onnx.TensorProtoInt32:
		return tensor.Int32, nil
	case onnx.TensorProtoInt64:
		return tensor.Int64, nil
	case onnx.TensorProtoBool:
		return tensor.Bool, nil
	case onnx.TensorProtoComplex64:
		return tensor.Complex64, nil
	case onnx.TensorProtoComplex128:
		return tensor.Complex128, nil
	default:
		return tensor.Undefined, &ExportError{Err: ErrUnsupportedType, Details: onnx.DataTypeName(code)}
	}
}
