package ir

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxport/internal/tensor"
)

// ShapeSymbol identifies a symbolic (non-static) dimension. Two dimensions that
// carry the same ShapeSymbol are known to be equal. The zero value means "static".
type ShapeSymbol int64

// Dim is one axis of a tensor type: either a static size or a symbolic one.
type Dim struct {
	Value  int64       // Static size, meaningful when Symbol == 0
	Symbol ShapeSymbol // Symbolic identity, 0 for static axes
}

// StaticDim returns a dimension of known size.
func StaticDim(n int64) Dim { return Dim{Value: n} }

// SymbolicDim returns a dimension identified by sym.
func SymbolicDim(sym ShapeSymbol) Dim { return Dim{Symbol: sym} }

// IsStatic reports whether the dimension has a known size.
func (d Dim) IsStatic() bool { return d.Symbol == 0 }

// String renders static sizes as numbers and symbols as "s<id>".
func (d Dim) String() string {
	if d.IsStatic() {
		return fmt.Sprint(d.Value)
	}
	return fmt.Sprintf("s%d", d.Symbol)
}

// Type is the static type of a Value. The set of implementations is closed.
type Type interface {
	String() string
	isType()
}

// TensorType describes a tensor with optional element type and optional rank.
type TensorType struct {
	DType  tensor.DataType // tensor.Undefined when unknown
	Ranked bool            // Whether Dims is known
	Dims   []Dim
}

// Tensor returns a ranked tensor type.
func Tensor(dtype tensor.DataType, dims ...Dim) *TensorType {
	return &TensorType{DType: dtype, Ranked: true, Dims: dims}
}

// UnrankedTensor returns a tensor type with unknown rank.
func UnrankedTensor(dtype tensor.DataType) *TensorType {
	return &TensorType{DType: dtype}
}

func (t *TensorType) String() string {
	var b strings.Builder
	b.WriteString("Tensor<")
	b.WriteString(t.DType.String())
	b.WriteString(">")
	if t.Ranked {
		parts := make([]string, len(t.Dims))
		for i, d := range t.Dims {
			parts[i] = d.String()
		}
		b.WriteString("[" + strings.Join(parts, ",") + "]")
	}
	return b.String()
}

// BoolType is a scalar boolean.
type BoolType struct{}

// IntType is a scalar integer.
type IntType struct{}

// FloatType is a scalar floating-point number.
type FloatType struct{}

// NoneType is the type of the absent value.
type NoneType struct{}

// ListType is a homogeneous list.
type ListType struct {
	Elem Type
}

func (BoolType) String() string    { return "bool" }
func (IntType) String() string     { return "int" }
func (FloatType) String() string   { return "float" }
func (NoneType) String() string    { return "None" }
func (l *ListType) String() string { return "List[" + typeString(l.Elem) + "]" }

func typeString(t Type) string {
	if t == nil {
		return "?"
	}
	return t.String()
}

func (*TensorType) isType() {}
func (BoolType) isType()    {}
func (IntType) isType()     {}
func (FloatType) isType()   {}
func (NoneType) isType()    {}
func (*ListType) isType()   {}
