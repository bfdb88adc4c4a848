package targets

import (
	"fmt"
	"path"
	"strings"
)

// Options configures the fixed target set
type Options struct {
	Entry      string
	OutDir     string
	GlobalName string
	Globals    map[string]string
}

// DefaultOptions returns the layout published by @geoarrow/deck.gl-layers
func DefaultOptions() Options {
	return Options{
		Entry:      "src/index.ts",
		OutDir:     "dist",
		GlobalName: "geoarrowDeckGlLayers",
		Globals: map[string]string{
			"@deck.gl/core":   "deck",
			"@deck.gl/layers": "deck",
			"apache-arrow":    "Arrow",
		},
	}
}

// Registry is the ordered, immutable list of build targets.
// It is built once at configuration-load time and only read afterwards.
type Registry struct {
	targets []BuildTarget
}

// NewRegistry builds the four distribution targets from opts.
// Empty fields fall back to DefaultOptions.
func NewRegistry(opts Options) *Registry {
	def := DefaultOptions()
	if opts.Entry == "" {
		opts.Entry = def.Entry
	}
	if opts.OutDir == "" {
		opts.OutDir = def.OutDir
	}
	if opts.GlobalName == "" {
		opts.GlobalName = def.GlobalName
	}
	if opts.Globals == nil {
		opts.Globals = def.Globals
	}

	out := func(file string) string {
		return path.Join(opts.OutDir, file)
	}

	r := &Registry{
		targets: []BuildTarget{
			{
				Name:             "esm",
				InputPath:        opts.Entry,
				OutputPath:       out("dist.es.mjs"),
				Format:           FormatESModule,
				SourceMapEnabled: true,
				Plugins:          []PluginRef{PluginTypeScript},
			},
			{
				Name:       "dts",
				InputPath:  opts.Entry,
				OutputPath: out("index.d.ts"),
				Format:     FormatESModule,
				Plugins:    []PluginRef{PluginDTS},
			},
			{
				Name:             "cjs",
				InputPath:        opts.Entry,
				OutputPath:       out("dist.cjs"),
				Format:           FormatCommonJS,
				SourceMapEnabled: true,
				Plugins:          []PluginRef{PluginTypeScript},
			},
			{
				Name:             "umd",
				InputPath:        opts.Entry,
				OutputPath:       out("dist.umd.js"),
				Format:           FormatUMD,
				GlobalName:       opts.GlobalName,
				SourceMapEnabled: true,
				Plugins:          []PluginRef{PluginTypeScript, PluginTerser},
				Globals:          opts.Globals,
			},
		},
	}

	// The registry owns its data; callers only ever see copies.
	for i := range r.targets {
		r.targets[i] = r.targets[i].clone()
	}
	return r
}

// Default returns the registry built from DefaultOptions
func Default() *Registry {
	return NewRegistry(DefaultOptions())
}

// ListTargets returns every target in build order:
// ES module, declarations, CommonJS, UMD.
func (r *Registry) ListTargets() []BuildTarget {
	list := make([]BuildTarget, len(r.targets))
	for i, t := range r.targets {
		list[i] = t.clone()
	}
	return list
}

// Lookup returns the target with the given name
func (r *Registry) Lookup(name string) (BuildTarget, bool) {
	for _, t := range r.targets {
		if t.Name == name {
			return t.clone(), true
		}
	}
	return BuildTarget{}, false
}

// Select returns the named targets in registry order.
// No names selects every target.
func (r *Registry) Select(names ...string) ([]BuildTarget, error) {
	if len(names) == 0 {
		return r.ListTargets(), nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return nil, fmt.Errorf("unknown target %q (valid: %s)", name, r.names())
		}
		wanted[name] = true
	}

	var selected []BuildTarget
	for _, t := range r.targets {
		if wanted[t.Name] {
			selected = append(selected, t.clone())
		}
	}
	return selected, nil
}

func (r *Registry) names() string {
	names := make([]string, len(r.targets))
	for i, t := range r.targets {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
