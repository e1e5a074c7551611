package onnx

import (
	"fmt"
	"sort"
	"strings"
)

// ModelInfo contains basic information about an ONNX model.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string
	OutputNames     []string
	NodeCount       int // Nodes in the main graph, nested graphs excluded
	WeightCount     int
	ExternalCount   int // Initializers stored outside the model file
	FunctionCount   int
	Domains         []string // Non-default imported domains, in import order
}

// GetModelInfo returns model information without building anything from it.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Info(proto), nil
}

// Info summarizes a parsed model.
func Info(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		FunctionCount:   len(proto.Functions),
	}

	for _, opset := range proto.OpsetImport {
		if normalizeDomain(opset.Domain) == "" {
			if info.OpsetVersion == 0 {
				info.OpsetVersion = opset.Version
			}
			continue
		}
		info.Domains = append(info.Domains, opset.Domain)
	}

	if proto.Graph != nil {
		// Inputs that are not initializers
		initNames := make(map[string]bool)
		for i := range proto.Graph.Initializers {
			initNames[proto.Graph.Initializers[i].Name] = true
			if proto.Graph.Initializers[i].DataLocation == DataLocationExternal {
				info.ExternalCount++
			}
		}
		for i := range proto.Graph.Inputs {
			if !initNames[proto.Graph.Inputs[i].Name] {
				info.InputNames = append(info.InputNames, proto.Graph.Inputs[i].Name)
			}
		}

		for _, output := range proto.Graph.Outputs {
			info.OutputNames = append(info.OutputNames, output.Name)
		}

		info.NodeCount = len(proto.Graph.Nodes)
		info.WeightCount = len(proto.Graph.Initializers)
	}

	return info
}

// Format renders a model as indented, human-readable text.
func Format(m *ModelProto) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ir_version: %d\n", m.IRVersion)
	fmt.Fprintf(&b, "producer: %s %s\n", m.ProducerName, m.ProducerVersion)
	for _, o := range m.OpsetImport {
		domain := o.Domain
		if domain == "" {
			domain = "ai.onnx"
		}
		fmt.Fprintf(&b, "opset_import: %s v%d\n", domain, o.Version)
	}
	if m.Graph != nil {
		formatGraph(&b, m.Graph, "")
	}
	for i := range m.Functions {
		fn := &m.Functions[i]
		fmt.Fprintf(&b, "function %s::%s(%s) -> (%s)", fn.Domain, fn.Name, strings.Join(fn.Inputs, ", "), strings.Join(fn.Outputs, ", "))
		if len(fn.Attributes) > 0 {
			fmt.Fprintf(&b, " attrs[%s]", strings.Join(fn.Attributes, ", "))
		}
		b.WriteString(" {\n")
		for j := range fn.Nodes {
			formatNode(&b, &fn.Nodes[j], "  ")
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func formatGraph(b *strings.Builder, g *GraphProto, indent string) {
	fmt.Fprintf(b, "%sgraph %s {\n", indent, g.Name)
	inner := indent + "  "
	for i := range g.Inputs {
		fmt.Fprintf(b, "%sinput %s\n", inner, FormatValueInfo(&g.Inputs[i]))
	}
	for i := range g.Initializers {
		fmt.Fprintf(b, "%sinitializer %s\n", inner, FormatTensor(&g.Initializers[i]))
	}
	for i := range g.Nodes {
		formatNode(b, &g.Nodes[i], inner)
	}
	for i := range g.ValueInfo {
		fmt.Fprintf(b, "%svalue_info %s\n", inner, FormatValueInfo(&g.ValueInfo[i]))
	}
	for i := range g.Outputs {
		fmt.Fprintf(b, "%soutput %s\n", inner, FormatValueInfo(&g.Outputs[i]))
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

func formatNode(b *strings.Builder, n *NodeProto, indent string) {
	op := n.OpType
	if n.Domain != "" {
		op = n.Domain + "." + op
	}
	fmt.Fprintf(b, "%s%s = %s(%s)", indent, strings.Join(n.Outputs, ", "), op, strings.Join(n.Inputs, ", "))
	if n.Name != "" {
		fmt.Fprintf(b, " name=%s", n.Name)
	}
	var graphs []*GraphProto
	for i := range n.Attributes {
		a := &n.Attributes[i]
		fmt.Fprintf(b, " %s=%s", a.Name, formatAttributeValue(a))
		switch {
		case a.G != nil:
			graphs = append(graphs, a.G)
		case len(a.Graphs) > 0:
			for j := range a.Graphs {
				graphs = append(graphs, &a.Graphs[j])
			}
		}
	}
	b.WriteString("\n")
	for _, g := range graphs {
		formatGraph(b, g, indent+"  ")
	}
}

func formatAttributeValue(a *AttributeProto) string {
	if a.RefAttrName != "" {
		return "@" + a.RefAttrName
	}
	switch a.Type {
	case AttributeProtoFloat:
		return fmt.Sprint(a.F)
	case AttributeProtoInt:
		return fmt.Sprint(a.I)
	case AttributeProtoString:
		return fmt.Sprintf("%q", a.S)
	case AttributeProtoFloats:
		return fmt.Sprint(a.Floats)
	case AttributeProtoInts:
		return fmt.Sprint(a.Ints)
	case AttributeProtoStrings:
		parts := make([]string, len(a.Strings))
		for i, s := range a.Strings {
			parts[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case AttributeProtoTensor:
		if a.T == nil {
			return "<tensor>"
		}
		return FormatTensor(a.T)
	case AttributeProtoTensors:
		return fmt.Sprintf("<%d tensors>", len(a.Tensors))
	case AttributeProtoGraph:
		if a.G == nil {
			return "<graph>"
		}
		return "<graph " + a.G.Name + ">"
	case AttributeProtoGraphs:
		return fmt.Sprintf("<%d graphs>", len(a.Graphs))
	default:
		return "<undefined>"
	}
}

// FormatTensor renders a tensor header, e.g. `w: FLOAT[2 3] (24 bytes)`.
func FormatTensor(t *TensorProto) string {
	s := fmt.Sprintf("%s: %s%v", t.Name, DataTypeName(t.DataType), t.Dims)
	switch {
	case t.DataLocation == DataLocationExternal:
		for _, e := range t.ExternalData {
			if e.Key == "location" {
				s += " external=" + e.Value
			}
		}
	case string(t.RawData) == ExternalSentinel:
		s += " deferred"
	default:
		s += fmt.Sprintf(" (%d bytes)", len(t.RawData))
	}
	return s
}

// FormatValueInfo renders a value name with its type, e.g. `x: FLOAT[batch,3]`.
func FormatValueInfo(v *ValueInfoProto) string {
	if v.Type == nil {
		return v.Name
	}
	return v.Name + ": " + FormatType(v.Type)
}

// FormatType renders a type descriptor.
func FormatType(t *TypeProto) string {
	switch {
	case t == nil:
		return "?"
	case t.TensorType != nil:
		s := DataTypeName(t.TensorType.ElemType)
		if t.TensorType.Shape != nil {
			dims := make([]string, len(t.TensorType.Shape.Dims))
			for i, d := range t.TensorType.Shape.Dims {
				if d.DimParam != "" {
					dims[i] = d.DimParam
				} else {
					dims[i] = fmt.Sprint(d.DimValue)
				}
			}
			s += "[" + strings.Join(dims, ",") + "]"
		}
		return s
	case t.SequenceType != nil:
		return "seq(" + FormatType(t.SequenceType.ElemType) + ")"
	default:
		return "?"
	}
}

// OpHistogram counts node op types across the main graph and every nested graph.
func OpHistogram(m *ModelProto) map[string]int {
	hist := make(map[string]int)
	var visit func(g *GraphProto)
	visit = func(g *GraphProto) {
		for i := range g.Nodes {
			n := &g.Nodes[i]
			key := n.OpType
			if n.Domain != "" {
				key = n.Domain + "." + key
			}
			hist[key]++
			for j := range n.Attributes {
				if n.Attributes[j].G != nil {
					visit(n.Attributes[j].G)
				}
				for k := range n.Attributes[j].Graphs {
					visit(&n.Attributes[j].Graphs[k])
				}
			}
		}
	}
	if m.Graph != nil {
		visit(m.Graph)
	}
	return hist
}

// SortedKeys returns the keys of a histogram in order.
func SortedKeys(hist map[string]int) []string {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
