package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/config"
	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/externaldata"
	"github.com/born-ml/onnxport/internal/loader"
)

type exportFlags struct {
	graph        string
	config       string
	weights      []string
	output       string
	opset        int64
	policy       string
	externalData bool
	deferTo      string
	dynamicAxes  []string
	stripDoc     bool
	noCheck      bool
}

func (c *CLI) exportCommand() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export --graph model.yaml -o model.onnx",
		Short: "Export a graph description as an ONNX model",
		Long: `Export a graph description as an ONNX model.

Options come from --config (TOML) and are overridden by flags. Weights files
(.safetensors or .gguf) provide initializers for graph inputs of the same name.

--defer-to stores initializers outside the model instead of embedding them:
  a directory      one file per tensor
  *.safetensors    a single SafeTensors file
  gs://bucket/dir  one object per tensor in Google Cloud Storage`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runExport(cmd.Context(), cmd, &f)
		},
	}

	cmd.Flags().StringVarP(&f.graph, "graph", "g", "", "graph description (YAML)")
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "export options (TOML)")
	cmd.Flags().StringArrayVarP(&f.weights, "weights", "w", nil, "weights file providing initializers (repeatable)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "model file (default: <graph>.onnx)")
	cmd.Flags().Int64Var(&f.opset, "opset", 0, "default-domain opset version")
	cmd.Flags().StringVar(&f.policy, "policy", "", "operator export type: onnx, onnx_native, onnx_native_fallback, onnx_fallthrough")
	cmd.Flags().BoolVar(&f.externalData, "external-data", false, "store large initializers in files next to the model")
	cmd.Flags().StringVar(&f.deferTo, "defer-to", "", "store every initializer in this directory, .safetensors file or gs:// prefix")
	cmd.Flags().StringArrayVar(&f.dynamicAxes, "dynamic-axis", nil, "value:axis=symbol, e.g. input_ids:0=batch (repeatable)")
	cmd.Flags().BoolVar(&f.stripDoc, "strip-doc-string", false, "omit source ranges from node doc strings")
	cmd.Flags().BoolVar(&f.noCheck, "no-check", false, "skip checking the serialized model")
	_ = cmd.MarkFlagRequired("graph")
	cmd.MarkFlagsMutuallyExclusive("external-data", "defer-to")
	return cmd
}

// exportOptions layers the graph's dynamic axes, the config file and the flags.
func (f *exportFlags) exportOptions(flags *pflag.FlagSet, loaded *loader.LoadedGraph) (export.Options, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return export.Options{}, err
	}

	cfg.DefaultDynamicAxes(loaded.DynamicAxes)
	for _, spec := range f.dynamicAxes {
		axes, err := parseDynamicAxis(spec)
		if err != nil {
			return export.Options{}, err
		}
		cfg.MergeDynamicAxes(axes)
	}

	if flags.Changed("opset") {
		cfg.OpsetVersion = f.opset
	}
	if flags.Changed("policy") {
		cfg.Policy = f.policy
	}
	if flags.Changed("strip-doc-string") {
		cfg.StripDocString = f.stripDoc
	}
	if f.externalData {
		cfg.UseExternalData = true
		cfg.DeferWeightExport = false
	}
	if f.deferTo != "" {
		cfg.DeferWeightExport = true
		cfg.UseExternalData = false
	}

	opts, err := cfg.ExportOptions()
	if err != nil {
		return export.Options{}, err
	}
	opts.AttributeRefs = loaded.AttributeRefs
	opts.ModelPath = f.output
	return opts, nil
}

// parseDynamicAxis parses "value:axis=symbol".
func parseDynamicAxis(spec string) (map[string]map[int]string, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 {
		return nil, errors.Errorf("dynamic axis %q: want value:axis=symbol", spec)
	}
	axis, symbol, ok := strings.Cut(spec[i+1:], "=")
	n, err := strconv.Atoi(axis)
	if !ok || err != nil || n < 0 || symbol == "" {
		return nil, errors.Errorf("dynamic axis %q: want value:axis=symbol", spec)
	}
	return map[string]map[int]string{spec[:i]: {n: symbol}}, nil
}

func (c *CLI) runExport(ctx context.Context, cmd *cobra.Command, f *exportFlags) error {
	log := klog.FromContext(ctx)
	if f.output == "" {
		f.output = strings.TrimSuffix(f.graph, filepath.Ext(f.graph)) + ".onnx"
	}

	loaded, err := loader.LoadGraphFile(f.graph)
	if err != nil {
		return err
	}
	if err := addWeights(loaded, f.weights); err != nil {
		return err
	}
	opts, err := f.exportOptions(cmd.Flags(), loaded)
	if err != nil {
		return err
	}

	var (
		res       *export.Result
		exportErr error
	)
	if caught := exceptions.TryCatch[error](func() {
		res, exportErr = export.Export(loaded.Graph, loaded.Initializers, opts)
	}); caught != nil {
		return errors.WithMessage(caught, "export failed")
	}
	if exportErr != nil {
		return exportErr
	}

	if f.deferTo != "" {
		if err := materialize(ctx, f.deferTo, f.output, res); err != nil {
			return err
		}
	}

	data, err := export.Serialize(res.Model)
	if err != nil {
		return err
	}
	if !f.noCheck {
		if err := export.CheckSerialized(data); err != nil {
			return err
		}
	}
	if err := os.WriteFile(f.output, data, 0o644); err != nil { //nolint:gosec // Model files are meant to be shared
		return errors.Wrapf(err, "failed to write %s", f.output)
	}
	log.V(1).Info("wrote model", "path", f.output, "size", humanize.Bytes(uint64(len(data))))

	for _, w := range res.Warnings {
		c.printWarning("%s", w)
	}
	c.printSuccess("Exported %s (%s)", f.output, humanize.Bytes(uint64(len(data))))
	g := res.Model.Graph
	c.printField("nodes", len(g.Nodes))
	c.printField("initializers", len(g.Initializers))
	if res.UsedExternalData || f.deferTo != "" {
		external := 0
		for i := range g.Initializers {
			if len(g.Initializers[i].ExternalData) > 0 {
				external++
			}
		}
		c.printField("external", external)
	}
	return nil
}

// addWeights loads every weights file into the graph's initializers. Each
// tensor must name a graph input.
func addWeights(loaded *loader.LoadedGraph, paths []string) error {
	inputs := make(map[string]bool)
	for _, in := range loaded.Graph.Inputs() {
		inputs[in.Name()] = true
	}
	for _, path := range paths {
		weights, err := loader.LoadWeights(path)
		if err != nil {
			return err
		}
		for name, t := range weights {
			if !inputs[name] {
				return errors.Errorf("%s: tensor %q is not a graph input", path, name)
			}
			loaded.Initializers[name] = t
		}
	}
	return nil
}

// materialize stores the deferred initializers of res in target and points
// the model at them. Local locations are made relative to the model file.
func materialize(ctx context.Context, target, modelPath string, res *export.Result) error {
	var (
		sink    externaldata.Sink
		baseDir string
	)
	switch {
	case strings.HasPrefix(target, "gs://"):
		gcs, err := externaldata.NewGCSSink(ctx, target)
		if err != nil {
			return err
		}
		sink = gcs
	case strings.EqualFold(filepath.Ext(target), ".safetensors"):
		sink = externaldata.NewSafeTensorsSink(target, map[string]string{"producer": export.DefaultProducerName})
		baseDir = filepath.Dir(target)
	default:
		if err := os.MkdirAll(target, 0o755); err != nil { //nolint:gosec // Weight directories are meant to be shared
			return errors.Wrapf(err, "failed to create %s", target)
		}
		sink = externaldata.NewDirSink(target)
		baseDir = target
	}

	locs, err := externaldata.Materialize(ctx, sink, res.ExportMap)
	if err != nil {
		return err
	}
	if baseDir != "" {
		modelDir, err := filepath.Abs(export.FileRootPath(modelPath))
		if err != nil {
			return errors.Wrap(err, "resolving model directory")
		}
		if baseDir, err = filepath.Abs(baseDir); err != nil {
			return errors.Wrap(err, "resolving weights directory")
		}
		for name, loc := range locs {
			rel, err := filepath.Rel(modelDir, filepath.Join(baseDir, loc.Path))
			if err != nil {
				return errors.Wrapf(err, "locating %q relative to %s", name, modelDir)
			}
			loc.Path = filepath.ToSlash(rel)
			locs[name] = loc
		}
	}
	return externaldata.Relink(res.Model, locs)
}
