package externaldata

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Location is where a sink stored one tensor.
type Location struct {
	Path     string // File, object URL or path relative to the model file
	Offset   int64  // Byte offset of the payload within Path
	Length   int64  // Payload size in bytes
	Checksum string // Hex SHA-256 of the payload, for reporting only
}

// Sink stores tensor payloads. Put may return before the payload is durable;
// Close flushes everything and reports where each tensor ended up.
type Sink interface {
	Put(ctx context.Context, name string, t *tensor.RawTensor) error
	Close(ctx context.Context) (map[string]Location, error)
}

// Materialize writes every tensor of exportMap to sink in name order and
// closes it. The sink is closed even when a write fails.
func Materialize(ctx context.Context, sink Sink, exportMap map[string]*tensor.RawTensor) (map[string]Location, error) {
	log := klog.FromContext(ctx)

	names := make([]string, 0, len(exportMap))
	for name := range exportMap {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_, _ = sink.Close(ctx)
			return nil, err
		}
		if err := sink.Put(ctx, name, exportMap[name]); err != nil {
			_, _ = sink.Close(ctx)
			return nil, errors.WithMessagef(err, "storing %q", name)
		}
	}

	locs, err := sink.Close(ctx)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("materialized deferred tensors", "count", len(locs))
	return locs, nil
}

// Relink replaces the deferred-export placeholder of every initializer of m
// with an external-data record pointing at its stored location.
func Relink(m *onnx.ModelProto, locs map[string]Location) error {
	if m.Graph == nil {
		return nil
	}
	for i := range m.Graph.Initializers {
		tp := &m.Graph.Initializers[i]
		if string(tp.RawData) != onnx.ExternalSentinel {
			continue
		}
		loc, ok := locs[tp.Name]
		if !ok {
			return &TensorError{Err: ErrMissingLocation, Tensor: tp.Name}
		}
		tp.RawData = nil
		tp.DataLocation = onnx.DataLocationExternal
		tp.ExternalData = []onnx.StringStringEntry{{Key: "location", Value: loc.Path}}
		if loc.Offset > 0 {
			tp.ExternalData = append(tp.ExternalData, onnx.StringStringEntry{Key: "offset", Value: strconv.FormatInt(loc.Offset, 10)})
		}
		if loc.Length > 0 {
			tp.ExternalData = append(tp.ExternalData, onnx.StringStringEntry{Key: "length", Value: strconv.FormatInt(loc.Length, 10)})
		}
	}
	return nil
}
