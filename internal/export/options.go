package export

import (
	"github.com/born-ml/onnxport/internal/ir"
)

// Defaults used when the corresponding Options field is left empty.
const (
	DefaultOpsetVersion = 17
	DefaultIRVersion    = 8
	DefaultProducerName = "onnxport"
	DefaultGraphName    = "main_graph"
)

// ProducerVersion is recorded as producer_version in exported models.
var ProducerVersion = "0.1.0"

// Options configures an export session.
type Options struct {
	OpsetVersion    int64              // Default-domain opset version
	IRVersion       int64              // ONNX IR version recorded in the model
	ProducerName    string             // Recorded as producer_name
	ProducerVersion string             // Recorded as producer_version
	GraphName       string             // Base name of encoded graphs
	Policy          OperatorExportType // Which operators may be exported

	// DynamicAxes maps a value name to axis index to the symbolic name used
	// for that axis, overriding static sizes.
	DynamicAxes map[string]map[int]string

	DeferWeightExport        bool   // Return initializer payloads in Result.ExportMap instead of embedding them
	StripDocString           bool   // Omit source ranges from node doc strings
	KeepInitializersAsInputs bool   // List initializers among the graph inputs
	AddNodeNames             bool   // Name nodes <OpType>_<counter>
	UseExternalData          bool   // Store large tensors in files next to the model
	ExternalThreshold        int    // Element count above which tensors go external, DefaultExternalThreshold if <= 0
	ModelPath                string // Location of the model file, required for external data

	// CustomOpsets gives the opset version of custom domains; unlisted domains get version 1.
	CustomOpsets map[string]int64

	// ValueNames renames values when they are used as node inputs, e.g. to
	// refer to a function's formal parameter.
	ValueNames map[*ir.Value]string
	// AttributeRefs turns attributes of specific nodes into references to
	// attributes of the enclosing function: node -> attribute -> referenced name.
	AttributeRefs map[*ir.Node]map[string]string
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		OpsetVersion:             DefaultOpsetVersion,
		IRVersion:                DefaultIRVersion,
		ProducerName:             DefaultProducerName,
		ProducerVersion:          ProducerVersion,
		GraphName:                DefaultGraphName,
		Policy:                   PolicyONNX,
		KeepInitializersAsInputs: true,
		AddNodeNames:             true,
		ExternalThreshold:        DefaultExternalThreshold,
	}
}

// withDefaults fills empty scalar fields from DefaultOptions. Boolean fields are kept as given.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.OpsetVersion == 0 {
		o.OpsetVersion = d.OpsetVersion
	}
	if o.IRVersion == 0 {
		o.IRVersion = d.IRVersion
	}
	if o.ProducerName == "" {
		o.ProducerName = d.ProducerName
	}
	if o.ProducerVersion == "" {
		o.ProducerVersion = d.ProducerVersion
	}
	if o.GraphName == "" {
		o.GraphName = d.GraphName
	}
	if o.ExternalThreshold <= 0 {
		o.ExternalThreshold = d.ExternalThreshold
	}
	return o
}
