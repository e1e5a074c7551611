// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph builds the computation graphs that package onnx exports.
//
// A Graph owns a root Block. Blocks hold inputs, nodes in topological order
// and outputs; control-flow nodes (onnx::Loop, onnx::If) own nested blocks
// whose nodes may use values of enclosing blocks.
//
//	g := graph.NewGraph()
//	x := g.AddInput("x", graph.Tensor(tensor.Float32, graph.SymbolicDim(g.NewSymbol()), graph.StaticDim(3)))
//	relu := g.Block().AppendNode(graph.MustParseSymbol("onnx::Relu"), x)
//	g.RegisterOutput(relu.AddOutput("y", x.Type()))
//
// Graphs can also be read from YAML descriptions with LoadFile.
package graph

import (
	"github.com/born-ml/onnxport/internal/ir"
	"github.com/born-ml/onnxport/internal/loader"
)

// Graph structure.
type (
	Graph  = ir.Graph
	Block  = ir.Block
	Node   = ir.Node
	Value  = ir.Value
	Symbol = ir.Symbol
)

// Value types.
type (
	Type        = ir.Type
	TensorType  = ir.TensorType
	BoolType    = ir.BoolType
	IntType     = ir.IntType
	FloatType   = ir.FloatType
	NoneType    = ir.NoneType
	ListType    = ir.ListType
	Dim         = ir.Dim
	ShapeSymbol = ir.ShapeSymbol
)

// Attributes.
type (
	Attribute      = ir.Attribute
	AttributeKind  = ir.AttributeKind
	AttributeValue = ir.AttributeValue
	FloatAttr      = ir.FloatAttr
	FloatsAttr     = ir.FloatsAttr
	IntAttr        = ir.IntAttr
	IntsAttr       = ir.IntsAttr
	StringAttr     = ir.StringAttr
	StringsAttr    = ir.StringsAttr
	TensorAttr     = ir.TensorAttr
	TensorsAttr    = ir.TensorsAttr
	GraphAttr      = ir.GraphAttr
	GraphsAttr     = ir.GraphsAttr
)

// Well-known operators.
var (
	PrimConstant         = ir.PrimConstant
	PrimListConstruct    = ir.PrimListConstruct
	PrimForeignCall      = ir.PrimForeignCall
	ONNXConstant         = ir.ONNXConstant
	ONNXLoop             = ir.ONNXLoop
	ONNXIf               = ir.ONNXIf
	ONNXLocalFunctionDef = ir.ONNXLocalFunctionDef
)

// NewGraph returns an empty graph.
func NewGraph() *Graph { return ir.NewGraph() }

// NewShapeSymbol returns a symbolic dimension identity distinct from every
// other symbol of the process, including those of other graphs.
func NewShapeSymbol() ShapeSymbol { return ir.NewShapeSymbol() }

// ParseSymbol parses "namespace::name".
func ParseSymbol(qualified string) (Symbol, error) { return ir.ParseSymbol(qualified) }

// MustParseSymbol is like ParseSymbol but panics on error.
func MustParseSymbol(qualified string) Symbol { return ir.MustParseSymbol(qualified) }

// StaticDim is a dimension of known size.
func StaticDim(n int64) Dim { return ir.StaticDim(n) }

// SymbolicDim is a dimension identified by a graph symbol.
func SymbolicDim(sym ShapeSymbol) Dim { return ir.SymbolicDim(sym) }

// Tensor is a ranked tensor type.
var Tensor = ir.Tensor

// UnrankedTensor is a tensor type of unknown rank.
var UnrankedTensor = ir.UnrankedTensor

// Loaded is a graph read from a YAML description, with its initializers,
// dynamic axes and attribute references.
type Loaded = loader.LoadedGraph

// LoadFile reads a YAML graph description.
func LoadFile(path string) (*Loaded, error) {
	return loader.LoadGraphFile(path)
}
