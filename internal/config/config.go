// Package config loads export options from TOML files.
//
//	opset_version = 17
//	policy = "onnx_native_fallback"
//	keep_initializers_as_inputs = false
//
//	[custom_opsets]
//	"com.example" = 2
//
//	[dynamic_axes.input_ids]
//	0 = "batch"
//	1 = "sequence"
//
// Keys left out of the file keep the values of export.DefaultOptions.
package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/born-ml/onnxport/internal/export"
)

// Config is the file form of export.Options.
type Config struct {
	OpsetVersion    int64  `toml:"opset_version"`
	IRVersion       int64  `toml:"ir_version"`
	ProducerName    string `toml:"producer_name"`
	ProducerVersion string `toml:"producer_version"`
	GraphName       string `toml:"graph_name"`
	Policy          string `toml:"policy"`

	AddNodeNames             bool `toml:"add_node_names"`
	StripDocString           bool `toml:"strip_doc_string"`
	KeepInitializersAsInputs bool `toml:"keep_initializers_as_inputs"`
	UseExternalData          bool `toml:"use_external_data"`
	DeferWeightExport        bool `toml:"defer_weight_export"`
	ExternalThreshold        int  `toml:"external_threshold"`

	CustomOpsets map[string]int64 `toml:"custom_opsets"`

	// DynamicAxes maps value name -> axis index (as a TOML key) -> symbol name.
	DynamicAxes map[string]map[string]string `toml:"dynamic_axes"`
}

// Default returns the configuration matching export.DefaultOptions.
func Default() *Config {
	o := export.DefaultOptions()
	return &Config{
		OpsetVersion:             o.OpsetVersion,
		IRVersion:                o.IRVersion,
		ProducerName:             o.ProducerName,
		ProducerVersion:          o.ProducerVersion,
		GraphName:                o.GraphName,
		Policy:                   o.Policy.String(),
		AddNodeNames:             o.AddNodeNames,
		StripDocString:           o.StripDocString,
		KeepInitializersAsInputs: o.KeepInitializersAsInputs,
		UseExternalData:          o.UseExternalData,
		DeferWeightExport:        o.DeferWeightExport,
		ExternalThreshold:        o.ExternalThreshold,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if _, err := cfg.ExportOptions(); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// ExportOptions converts the configuration into export options.
func (c *Config) ExportOptions() (export.Options, error) {
	policy, err := export.ParseOperatorExportType(c.Policy)
	if err != nil {
		return export.Options{}, err
	}
	if c.OpsetVersion < 1 {
		return export.Options{}, errors.Errorf("opset_version must be positive, got %d", c.OpsetVersion)
	}
	if c.ExternalThreshold < 0 {
		return export.Options{}, errors.Errorf("external_threshold must not be negative, got %d", c.ExternalThreshold)
	}
	if c.UseExternalData && c.DeferWeightExport {
		return export.Options{}, errors.New("use_external_data and defer_weight_export are mutually exclusive")
	}
	axes, err := c.dynamicAxes()
	if err != nil {
		return export.Options{}, err
	}

	opts := export.DefaultOptions()
	opts.OpsetVersion = c.OpsetVersion
	opts.IRVersion = c.IRVersion
	opts.ProducerName = c.ProducerName
	opts.ProducerVersion = c.ProducerVersion
	opts.GraphName = c.GraphName
	opts.Policy = policy
	opts.AddNodeNames = c.AddNodeNames
	opts.StripDocString = c.StripDocString
	opts.KeepInitializersAsInputs = c.KeepInitializersAsInputs
	opts.UseExternalData = c.UseExternalData
	opts.DeferWeightExport = c.DeferWeightExport
	opts.ExternalThreshold = c.ExternalThreshold
	opts.DynamicAxes = axes
	if len(c.CustomOpsets) > 0 {
		opts.CustomOpsets = make(map[string]int64, len(c.CustomOpsets))
		for domain, version := range c.CustomOpsets {
			opts.CustomOpsets[domain] = version
		}
	}
	return opts, nil
}

func (c *Config) dynamicAxes() (map[string]map[int]string, error) {
	if len(c.DynamicAxes) == 0 {
		return nil, nil
	}
	out := make(map[string]map[int]string, len(c.DynamicAxes))
	for value, axes := range c.DynamicAxes {
		m := make(map[int]string, len(axes))
		for key, symbol := range axes {
			axis, err := strconv.Atoi(key)
			if err != nil || axis < 0 {
				return nil, errors.Errorf("dynamic_axes.%s: axis %q is not a non-negative integer", value, key)
			}
			if symbol == "" {
				return nil, errors.Errorf("dynamic_axes.%s.%s: empty symbol name", value, key)
			}
			m[axis] = symbol
		}
		out[value] = m
	}
	return out, nil
}

// MergeDynamicAxes adds axes to the configuration, replacing entries for the
// same value and axis.
func (c *Config) MergeDynamicAxes(axes map[string]map[int]string) {
	c.mergeDynamicAxes(axes, true)
}

// DefaultDynamicAxes adds the entries of axes the configuration does not
// already set.
func (c *Config) DefaultDynamicAxes(axes map[string]map[int]string) {
	c.mergeDynamicAxes(axes, false)
}

func (c *Config) mergeDynamicAxes(axes map[string]map[int]string, replace bool) {
	if len(axes) == 0 {
		return
	}
	if c.DynamicAxes == nil {
		c.DynamicAxes = make(map[string]map[string]string, len(axes))
	}
	for value, m := range axes {
		dst := c.DynamicAxes[value]
		if dst == nil {
			dst = make(map[string]string, len(m))
			c.DynamicAxes[value] = dst
		}
		for axis, symbol := range m {
			key := strconv.Itoa(axis)
			if _, set := dst[key]; set && !replace {
				continue
			}
			dst[key] = symbol
		}
	}
}
