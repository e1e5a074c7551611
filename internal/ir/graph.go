package ir

import (
	"fmt"
	"sync/atomic"
)

// Graph is a dataflow graph rooted at a single Block.
type Graph struct {
	root     *Block
	names    map[string]struct{}
	nextName int
}

// lastSymbol is shared by every graph so that subgraphs built on their own,
// such as graph attributes, never reuse a symbol of the enclosing graph.
var lastSymbol atomic.Int64

// NewShapeSymbol returns a fresh symbolic dimension identity, unique in the process.
func NewShapeSymbol() ShapeSymbol {
	return ShapeSymbol(lastSymbol.Add(1))
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	g := &Graph{names: make(map[string]struct{})}
	g.root = &Block{graph: g}
	return g
}

// Block returns the root block.
func (g *Graph) Block() *Block { return g.root }

// Inputs returns the root block's inputs.
func (g *Graph) Inputs() []*Value { return g.root.inputs }

// Outputs returns the root block's outputs.
func (g *Graph) Outputs() []*Value { return g.root.outputs }

// Nodes returns the root block's nodes.
func (g *Graph) Nodes() []*Node { return g.root.nodes }

// AddInput appends an input to the root block.
func (g *Graph) AddInput(name string, typ Type) *Value { return g.root.AddInput(name, typ) }

// RegisterOutput appends v to the root block's outputs.
func (g *Graph) RegisterOutput(v *Value) { g.root.RegisterOutput(v) }

// NewSymbol returns a fresh symbolic dimension identity. Identities are
// unique across graphs, see NewShapeSymbol.
func (g *Graph) NewSymbol() ShapeSymbol {
	return NewShapeSymbol()
}

// uniqueName returns name, or a suffixed variant when name is empty or taken.
func (g *Graph) uniqueName(name string) string {
	if name == "" {
		for {
			candidate := fmt.Sprint(g.nextName)
			g.nextName++
			if _, taken := g.names[candidate]; !taken {
				g.names[candidate] = struct{}{}
				return candidate
			}
		}
	}
	candidate := name
	for i := 1; ; i++ {
		if _, taken := g.names[candidate]; !taken {
			g.names[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", name, i)
	}
}

// Block is an ordered list of nodes with its own inputs and outputs.
type Block struct {
	graph   *Graph
	owner   *Node
	inputs  []*Value
	outputs []*Value
	nodes   []*Node
}

// Graph returns the graph that owns b.
func (b *Block) Graph() *Graph { return b.graph }

// Owner returns the node that owns b, or nil for a root block.
func (b *Block) Owner() *Node { return b.owner }

// Inputs returns the block's inputs.
func (b *Block) Inputs() []*Value { return b.inputs }

// Outputs returns the block's outputs.
func (b *Block) Outputs() []*Value { return b.outputs }

// Nodes returns the block's nodes in order.
func (b *Block) Nodes() []*Node { return b.nodes }

// AddInput appends a block input. An empty or taken name is made unique.
func (b *Block) AddInput(name string, typ Type) *Value {
	v := &Value{name: b.graph.uniqueName(name), typ: typ, block: b}
	b.inputs = append(b.inputs, v)
	return v
}

// RegisterOutput appends v to the block's outputs.
func (b *Block) RegisterOutput(v *Value) {
	b.outputs = append(b.outputs, v)
}

// AppendNode appends a node of the given kind consuming inputs.
// A nil input marks an omitted optional operand.
func (b *Block) AppendNode(kind Symbol, inputs ...*Value) *Node {
	n := &Node{kind: kind, block: b, inputs: inputs}
	b.nodes = append(b.nodes, n)
	return n
}

// Node is a single operator application.
type Node struct {
	kind        Symbol
	block       *Block
	inputs      []*Value
	outputs     []*Value
	blocks      []*Block
	attrs       []Attribute
	sourceRange string
	scope       string
}

// Kind returns the qualified operator.
func (n *Node) Kind() Symbol { return n.kind }

// Owner returns the block containing n.
func (n *Node) Owner() *Block { return n.block }

// Inputs returns the node's operands in order.
func (n *Node) Inputs() []*Value { return n.inputs }

// Outputs returns the node's results in order.
func (n *Node) Outputs() []*Value { return n.outputs }

// Blocks returns the nested blocks owned by n.
func (n *Node) Blocks() []*Block { return n.blocks }

// AddOutput appends a result value. An empty or taken name is made unique.
func (n *Node) AddOutput(name string, typ Type) *Value {
	v := &Value{name: n.block.graph.uniqueName(name), typ: typ, node: n}
	n.outputs = append(n.outputs, v)
	return v
}

// AddBlock appends a nested block owned by n.
func (n *Node) AddBlock() *Block {
	b := &Block{graph: n.block.graph, owner: n}
	n.blocks = append(n.blocks, b)
	return b
}

// SetAttr sets an attribute, keeping the position of an existing one with the same name.
func (n *Node) SetAttr(name string, value AttributeValue) *Node {
	for i := range n.attrs {
		if n.attrs[i].Name == name {
			n.attrs[i].Value = value
			return n
		}
	}
	n.attrs = append(n.attrs, Attribute{Name: name, Value: value})
	return n
}

// Attr returns the attribute called name.
func (n *Node) Attr(name string) (AttributeValue, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Attributes returns the attributes in declaration order.
func (n *Node) Attributes() []Attribute { return n.attrs }

// HasAttributes reports whether n carries any attribute.
func (n *Node) HasAttributes() bool { return len(n.attrs) > 0 }

// SetSourceRange records where n came from in user code.
func (n *Node) SetSourceRange(r string) *Node {
	n.sourceRange = r
	return n
}

// SourceRange returns the recorded source location, or "".
func (n *Node) SourceRange() string { return n.sourceRange }

// SetScope records the module scope n was created in.
func (n *Node) SetScope(s string) *Node {
	n.scope = s
	return n
}

// Scope returns the recorded scope name, or "".
func (n *Node) Scope() string { return n.scope }

// MustBeNone reports whether n only produces the absent value.
func (n *Node) MustBeNone() bool {
	if len(n.outputs) != 1 {
		return false
	}
	_, none := n.outputs[0].typ.(NoneType)
	return none
}

// Value is a named SSA edge.
type Value struct {
	name  string
	typ   Type
	node  *Node  // Producer, nil for block inputs
	block *Block // Owning block for block inputs
}

// Name returns the value's unique name.
func (v *Value) Name() string { return v.name }

// Type returns the value's static type, possibly nil.
func (v *Value) Type() Type { return v.typ }

// SetType replaces the value's static type.
func (v *Value) SetType(t Type) { v.typ = t }

// Node returns the producing node, or nil for block inputs.
func (v *Value) Node() *Node { return v.node }

// IsBlockInput reports whether v is an input of a block rather than a node result.
func (v *Value) IsBlockInput() bool { return v.node == nil }

// Walk calls fn for every node of b, descending into nested blocks after visiting their owner.
func (b *Block) Walk(fn func(*Node)) {
	for _, n := range b.nodes {
		fn(n)
		for _, sub := range n.blocks {
			sub.Walk(fn)
		}
	}
}
