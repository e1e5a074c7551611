// Package loader reads the inputs of an export: graph descriptions and the
// weights that become initializers.
//
// Graph descriptions are YAML documents (see GraphSpec) built into an
// ir.Graph with its initializer map, dynamic axes and attribute references.
//
// Weights come from two formats:
//   - SafeTensors: JSON header followed by raw little-endian data
//   - GGUF (v2, v3): typed metadata followed by aligned tensor data
//
// Both readers validate every tensor's byte range against its shape and
// the file size before any data is read.
//
// Example:
//
//	g, err := loader.LoadGraphFile("model.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	weights, err := loader.LoadWeights("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for name, w := range weights {
//	    g.Initializers[name] = w
//	}
package loader
