// Package targets holds the build target registry for the library's
// distribution artifacts.
package targets

import (
	"strings"
)

// PluginRef names a transformation stage applied during compilation.
type PluginRef string

const (
	PluginTypeScript PluginRef = "typescript"
	PluginTerser     PluginRef = "terser"
	PluginDTS        PluginRef = "dts"
)

// declarationSuffix is the naming convention for type declaration bundles
const declarationSuffix = ".d.ts"

// BuildTarget describes one requested compilation output
type BuildTarget struct {
	Name             string            `json:"name" yaml:"name"`
	InputPath        string            `json:"input" yaml:"input"`
	OutputPath       string            `json:"output" yaml:"output"`
	Format           Format            `json:"format" yaml:"format"`
	GlobalName       string            `json:"global_name,omitempty" yaml:"global_name,omitempty"`
	SourceMapEnabled bool              `json:"sourcemap" yaml:"sourcemap"`
	Plugins          []PluginRef       `json:"plugins" yaml:"plugins"`
	Globals          map[string]string `json:"globals,omitempty" yaml:"globals,omitempty"`
}

// IsDeclaration reports whether the target emits a type declaration bundle
// rather than executable code.
func (t BuildTarget) IsDeclaration() bool {
	return strings.HasSuffix(t.OutputPath, declarationSuffix) &&
		len(t.Plugins) == 1 && t.Plugins[0] == PluginDTS
}

// SourceMapPath returns the path of the source map emitted next to the
// artifact, or "" when the target has none.
func (t BuildTarget) SourceMapPath() string {
	if !t.SourceMapEnabled {
		return ""
	}
	return t.OutputPath + ".map"
}

// PluginNames returns the plugin references as plain strings
func (t BuildTarget) PluginNames() []string {
	names := make([]string, len(t.Plugins))
	for i, p := range t.Plugins {
		names[i] = string(p)
	}
	return names
}

func (t BuildTarget) clone() BuildTarget {
	c := t
	c.Plugins = append([]PluginRef(nil), t.Plugins...)
	if t.Globals != nil {
		c.Globals = make(map[string]string, len(t.Globals))
		for k, v := range t.Globals {
			c.Globals[k] = v
		}
	}
	return c
}
