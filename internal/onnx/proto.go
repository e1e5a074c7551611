package onnx

// ONNX protobuf data structures (hand-written).

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s), default domain first
	ProducerName    string              // Producing tool
	ProducerVersion string              // Producing tool version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Main computation graph
	MetadataProps   []StringStringEntry // Key-value metadata
	Functions       []FunctionProto     // Model-local functions
}

// GraphProto represents a computation graph.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes, topologically sorted
	Inputs       []ValueInfoProto // Graph inputs
	Outputs      []ValueInfoProto // Graph outputs
	Initializers []TensorProto    // Weight tensors
	DocString    string           // Graph description
	ValueInfo    []ValueInfoProto // Intermediate value info
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string           // Node name (optional)
	OpType     string           // Operation type (e.g., "Conv", "MatMul", "Relu")
	Inputs     []string         // Input value names, "" for omitted optionals
	Outputs    []string         // Output value names
	Attributes []AttributeProto // Operation attributes
	Domain     string           // Operator domain (empty for default)
	DocString  string           // Node description
}

// TensorProto represents a tensor (weights/initializers/attribute payloads).
type TensorProto struct {
	Name         string              // Tensor name
	DataType     int32               // Element data type
	Dims         []int64             // Tensor shape
	RawData      []byte              // Raw little-endian data
	FloatData    []float32           // Float32 data (legacy)
	Int32Data    []int32             // Int32 data (legacy)
	Int64Data    []int64             // Int64 data (legacy)
	DocString    string              // Tensor description
	ExternalData []StringStringEntry // External storage description (location, offset, length)
	DataLocation int32               // DataLocationDefault or DataLocationExternal
}

// ValueInfoProto describes a value's name and type.
type ValueInfoProto struct {
	Name      string     // Value name
	Type      *TypeProto // Type information, nil when unknown
	DocString string     // Description
}

// TypeProto describes a value type. Exactly one field is set.
type TypeProto struct {
	TensorType   *TensorTypeProto   // Tensor type (most common)
	SequenceType *SequenceTypeProto // Homogeneous sequence
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32             // Element data type
	Shape    *TensorShapeProto // Tensor shape, nil when rank is unknown
}

// SequenceTypeProto describes a sequence of values of one type.
type SequenceTypeProto struct {
	ElemType *TypeProto
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto // Dimensions
}

// DimensionProto describes a single dimension. A non-empty DimParam takes precedence.
type DimensionProto struct {
	DimValue int64  // Static dimension value (e.g., 224 for image size)
	DimParam string // Dynamic dimension name (e.g., "batch_size")
}

// AttributeProto represents node attributes.
type AttributeProto struct {
	Name        string        // Attribute name
	RefAttrName string        // Name of the enclosing function's attribute this one refers to
	Type        int32         // Attribute type
	F           float32       // FLOAT value
	I           int64         // INT value
	S           []byte        // STRING value
	T           *TensorProto  // TENSOR value
	G           *GraphProto   // GRAPH value
	Floats      []float32     // FLOATS array
	Ints        []int64       // INTS array
	Strings     [][]byte      // STRINGS array
	Tensors     []TensorProto // TENSORS array
	Graphs      []GraphProto  // GRAPHS array
	DocString   string        // Description
}

// FunctionProto is a model-local operator defined by a body of nodes.
type FunctionProto struct {
	Name        string          // Operator name of the function
	Domain      string          // Operator domain of the function
	Inputs      []string        // Formal input names
	Outputs     []string        // Formal output names
	Attributes  []string        // Formal attribute names
	Nodes       []NodeProto     // Function body
	OpsetImport []OperatorSetID // Opsets used by the body
	DocString   string          // Description
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key   string
	Value string
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1  // FLOAT
	AttributeProtoInt       = 2  // INT
	AttributeProtoString    = 3  // STRING
	AttributeProtoTensor    = 4  // TENSOR
	AttributeProtoGraph     = 5  // GRAPH
	AttributeProtoFloats    = 6  // FLOATS
	AttributeProtoInts      = 7  // INTS
	AttributeProtoStrings   = 8  // STRINGS
	AttributeProtoTensors   = 9  // TENSORS
	AttributeProtoGraphs    = 10 // GRAPHS
)

// TensorProto.DataLocation values.
const (
	DataLocationDefault  = 0
	DataLocationExternal = 1
)

// ExternalSentinel is the raw_data placeholder for tensors whose bytes are
// exported separately by the caller.
const ExternalSentinel = "__EXTERNAL"

// ElemSize returns the byte width of a fixed-size ONNX element type, or 0.
func ElemSize(dataType int32) int {
	switch dataType {
	case TensorProtoUint8, TensorProtoInt8, TensorProtoBool:
		return 1
	case TensorProtoUint16, TensorProtoInt16, TensorProtoFloat16, TensorProtoBfloat16:
		return 2
	case TensorProtoFloat, TensorProtoInt32, TensorProtoUint32:
		return 4
	case TensorProtoDouble, TensorProtoInt64, TensorProtoUint64, TensorProtoComplex64:
		return 8
	case TensorProtoComplex128:
		return 16
	default:
		return 0
	}
}

// DataTypeName returns the ONNX name of an element type, e.g. "FLOAT".
func DataTypeName(dataType int32) string {
	switch dataType {
	case TensorProtoFloat:
		return "FLOAT"
	case TensorProtoUint8:
		return "UINT8"
	case TensorProtoInt8:
		return "INT8"
	case TensorProtoUint16:
		return "UINT16"
	case TensorProtoInt16:
		return "INT16"
	case TensorProtoInt32:
		return "INT32"
	case TensorProtoInt64:
		return "INT64"
	case TensorProtoString:
		return "STRING"
	case TensorProtoBool:
		return "BOOL"
	case TensorProtoFloat16:
		return "FLOAT16"
	case TensorProtoDouble:
		return "DOUBLE"
	case TensorProtoUint32:
		return "UINT32"
	case TensorProtoUint64:
		return "UINT64"
	case TensorProtoComplex64:
		return "COMPLEX64"
	case TensorProtoComplex128:
		return "COMPLEX128"
	case TensorProtoBfloat16:
		return "BFLOAT16"
	default:
		return "UNDEFINED"
	}
}
