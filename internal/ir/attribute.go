package ir

import (
	"github.com/born-ml/onnxport/internal/tensor"
)

// AttributeKind enumerates the attribute payload kinds.
type AttributeKind int

// Attribute kinds.
const (
	AttrUnknown AttributeKind = iota
	AttrFloat
	AttrFloats
	AttrInt
	AttrInts
	AttrString
	AttrStrings
	AttrTensor
	AttrTensors
	AttrGraph
	AttrGraphs
)

// String returns the kind name.
func (k AttributeKind) String() string {
	switch k {
	case AttrFloat:
		return "float"
	case AttrFloats:
		return "floats"
	case AttrInt:
		return "int"
	case AttrInts:
		return "ints"
	case AttrString:
		return "string"
	case AttrStrings:
		return "strings"
	case AttrTensor:
		return "tensor"
	case AttrTensors:
		return "tensors"
	case AttrGraph:
		return "graph"
	case AttrGraphs:
		return "graphs"
	default:
		return "unknown"
	}
}

// AttributeValue is the payload of an attribute. The set of implementations is closed.
type AttributeValue interface {
	Kind() AttributeKind
	isAttributeValue()
}

// Attribute is a named payload attached to a Node.
type Attribute struct {
	Name  string
	Value AttributeValue
}

// Attribute payloads.
type (
	FloatAttr   float64
	FloatsAttr  []float64
	IntAttr     int64
	IntsAttr    []int64
	StringAttr  string
	StringsAttr []string
	// TensorAttr is a tensor payload. Name is optional.
	TensorAttr struct {
		Tensor *tensor.RawTensor
		Name   string
	}
	TensorsAttr []*tensor.RawTensor
	GraphAttr   struct{ Graph *Graph }
	GraphsAttr  []*Graph
)

func (FloatAttr) Kind() AttributeKind   { return AttrFloat }
func (FloatsAttr) Kind() AttributeKind  { return AttrFloats }
func (IntAttr) Kind() AttributeKind     { return AttrInt }
func (IntsAttr) Kind() AttributeKind    { return AttrInts }
func (StringAttr) Kind() AttributeKind  { return AttrString }
func (StringsAttr) Kind() AttributeKind { return AttrStrings }
func (TensorAttr) Kind() AttributeKind  { return AttrTensor }
func (TensorsAttr) Kind() AttributeKind { return AttrTensors }
func (GraphAttr) Kind() AttributeKind   { return AttrGraph }
func (GraphsAttr) Kind() AttributeKind  { return AttrGraphs }

func (FloatAttr) isAttributeValue()   {}
func (FloatsAttr) isAttributeValue()  {}
func (IntAttr) isAttributeValue()     {}
func (IntsAttr) isAttributeValue()    {}
func (StringAttr) isAttributeValue()  {}
func (StringsAttr) isAttributeValue() {}
func (TensorAttr) isAttributeValue()  {}
func (TensorsAttr) isAttributeValue() {}
func (GraphAttr) isAttributeValue()   {}
func (GraphsAttr) isAttributeValue()  {}
