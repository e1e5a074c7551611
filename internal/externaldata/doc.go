// Package externaldata writes the tensors of a deferred export to durable
// storage and points the exported model at them.
//
// An export run with deferred weight export leaves every initializer payload
// in Result.ExportMap and marks its TensorProto with the "__EXTERNAL"
// placeholder. Materialize hands those tensors to a Sink in name order, and
// Relink rewrites the placeholders into external-data location records.
//
// Available sinks:
//   - DirSink: one file per tensor in a directory, written in parallel
//   - SafeTensorsSink: a single .safetensors file (Hugging Face format)
//   - GCSSink: one object per tensor in a Google Cloud Storage bucket
//
// Example:
//
//	res, err := export.Export(g, weights, opts) // opts.DeferWeightExport = true
//	if err != nil {
//	    return err
//	}
//	locs, err := externaldata.Materialize(ctx, externaldata.NewDirSink(dir), res.ExportMap)
//	if err != nil {
//	    return err
//	}
//	if err := externaldata.Relink(res.Model, locs); err != nil {
//	    return err
//	}
package externaldata
