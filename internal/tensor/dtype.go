// Package tensor provides the tensor payload carried by graph initializers and
// tensor-valued attributes.
package tensor

// DType is a constraint for element types that can be copied into a RawTensor.
type DType interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~bool
}

// DataType represents runtime element type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Undefined DataType = iota
	Float32
	Float64
	Float16
	BFloat16
	Int8
	Int16
	Int32
	Int64
	Uint8
	Bool
	QInt8
	QUInt8
	QInt32
	Complex64
	Complex128
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32, QInt32:
		return 4
	case Float64, Int64, Complex64:
		return 8
	case Complex128:
		return 16
	case Float16, BFloat16, Int16:
		return 2
	case Int8, Uint8, Bool, QInt8, QUInt8:
		return 1
	default:
		panic("unknown data type")
	}
}

// IsQuantized reports whether the data type is one of the quantized integer types.
func (dt DataType) IsQuantized() bool {
	return dt == QInt8 || dt == QUInt8 || dt == QInt32
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case QInt8:
		return "qint8"
	case QUInt8:
		return "quint8"
	case QInt32:
		return "qint32"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	default:
		return "undefined"
	}
}

// ParseDataType returns the DataType named by s, as printed by String.
func ParseDataType(s string) (DataType, bool) {
	for dt := Float32; dt <= Complex128; dt++ {
		if dt.String() == s {
			return dt, true
		}
	}
	switch s {
	case "float", "f32":
		return Float32, true
	case "double", "f64":
		return Float64, true
	case "half", "f16":
		return Float16, true
	case "long":
		return Int64, true
	case "int":
		return Int32, true
	case "byte":
		return Uint8, true
	}
	return Undefined, false
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
