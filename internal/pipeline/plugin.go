// Package pipeline compiles a single build target by running its plugin
// stages on top of the esbuild API.
package pipeline

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/geoarrow/distbuild/internal/targets"
)

// Plugin is a named transformation stage
type Plugin interface {
	Name() string
}

// Configurer adjusts compiler options before the target is compiled.
// Configurers run in plugin order, so later stages override earlier ones.
type Configurer interface {
	Plugin
	Configure(opts *api.BuildOptions, target targets.BuildTarget) error
}

// Emitter produces a target's artifacts without the compiler.
type Emitter interface {
	Plugin
	Emit(ctx context.Context, target targets.BuildTarget) ([]Artifact, error)
}

// ArtifactKind classifies an emitted file
type ArtifactKind string

const (
	KindCode        ArtifactKind = "code"
	KindSourceMap   ArtifactKind = "sourcemap"
	KindDeclaration ArtifactKind = "declaration"
)

// Artifact is one emitted file. Path is relative to the project root.
type Artifact struct {
	Path     string
	Contents []byte
	Kind     ArtifactKind
}

// Resolve maps plugin references to their implementations, keeping order
func (p *Pipeline) Resolve(refs []targets.PluginRef) ([]Plugin, error) {
	resolved := make([]Plugin, 0, len(refs))
	for _, ref := range refs {
		plugin, ok := p.plugins[ref]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", ref)
		}
		resolved = append(resolved, plugin)
	}
	return resolved, nil
}

// Register adds or replaces a plugin implementation
func (p *Pipeline) Register(plugin Plugin) {
	p.plugins[targets.PluginRef(plugin.Name())] = plugin
}
