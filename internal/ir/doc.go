// Package ir is the in-memory dataflow graph handed to the ONNX exporter.
//
// A Graph owns a root Block. Blocks hold an ordered list of Nodes, and Nodes
// that implement control flow own nested Blocks, so the structure is a strict
// tree. Values are named SSA edges: each Value is produced either by exactly one
// Node or is an input of a Block.
//
// The package provides just enough building API to describe a finished graph:
//
//	g := ir.NewGraph()
//	x := g.AddInput("x", ir.Tensor(tensor.Float32, ir.StaticDim(2), ir.StaticDim(3)))
//	n := g.Block().AppendNode(ir.MustParseSymbol("onnx::Relu"), x)
//	g.RegisterOutput(n.AddOutput("y", ir.Tensor(tensor.Float32, ir.StaticDim(2), ir.StaticDim(3))))
//
// Graph rewriting, optimization and execution live elsewhere.
package ir
