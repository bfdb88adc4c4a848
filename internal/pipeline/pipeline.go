package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/geoarrow/distbuild/internal/targets"
)

// Config holds the settings shared by every target's pipeline
type Config struct {
	Root           string        // Project root; target paths are relative to it
	Tsconfig       string        // tsconfig path, relative to Root unless absolute
	LanguageTarget string        // e.g. "es2020"
	DTSBundler     string        // Explicit declaration bundler path (optional)
	DTSTimeout     time.Duration // Timeout for one declaration bundling run
}

// Pipeline compiles build targets
type Pipeline struct {
	root    string
	plugins map[targets.PluginRef]Plugin
}

// Output is the result of compiling one target
type Output struct {
	Artifacts []Artifact
	Analysis  *Analysis
	Warnings  []string
}

// New creates a pipeline with the built-in plugins registered
func New(cfg Config) (*Pipeline, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", cfg.Root, err)
	}

	langTarget := cfg.LanguageTarget
	if langTarget == "" {
		langTarget = "es2020"
	}
	esTarget, err := ParseLanguageTarget(langTarget)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		root:    root,
		plugins: make(map[targets.PluginRef]Plugin),
	}
	p.Register(&typeScriptPlugin{root: root, tsconfig: cfg.Tsconfig, target: esTarget})
	p.Register(terserPlugin{})
	p.Register(&dtsPlugin{root: root, tsconfig: cfg.Tsconfig, binary: cfg.DTSBundler, timeout: cfg.DTSTimeout})

	return p, nil
}

// Root returns the absolute project root
func (p *Pipeline) Root() string {
	return p.root
}

// Run compiles target through its plugin stages
func (p *Pipeline) Run(ctx context.Context, target targets.BuildTarget) (*Output, error) {
	plugins, err := p.Resolve(target.Plugins)
	if err != nil {
		return nil, err
	}
	if len(plugins) == 0 {
		return nil, fmt.Errorf("target %s has no plugins", target.Name)
	}

	for _, plugin := range plugins {
		emitter, ok := plugin.(Emitter)
		if !ok {
			continue
		}
		if len(plugins) > 1 {
			return nil, fmt.Errorf("plugin %s emits its own output and cannot be combined with other plugins", plugin.Name())
		}
		artifacts, err := emitter.Emit(ctx, target)
		if err != nil {
			return nil, err
		}
		return &Output{Artifacts: artifacts}, nil
	}

	opts, err := p.buildOptions(target)
	if err != nil {
		return nil, err
	}
	for _, plugin := range plugins {
		configurer, ok := plugin.(Configurer)
		if !ok {
			return nil, fmt.Errorf("plugin %s cannot be used in a compiled pipeline", plugin.Name())
		}
		if err := configurer.Configure(&opts, target); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
	}

	return p.compile(ctx, target, opts)
}

// buildOptions returns the compiler options implied by the target's format
func (p *Pipeline) buildOptions(target targets.BuildTarget) (api.BuildOptions, error) {
	opts := api.BuildOptions{
		EntryPoints:   []string{filepath.Join(p.root, target.InputPath)},
		Outfile:       filepath.Join(p.root, target.OutputPath),
		AbsWorkingDir: p.root,
		Bundle:        true,
		Write:         false, // Artifacts are written by the orchestrator
		Metafile:      true,
		Platform:      api.PlatformNeutral,
		Packages:      api.PackagesExternal,
		LogLevel:      api.LogLevelSilent,
	}
	if target.SourceMapEnabled {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch target.Format {
	case targets.FormatESModule:
		opts.Format = api.FormatESModule
	case targets.FormatCommonJS:
		opts.Format = api.FormatCommonJS
	case targets.FormatUMD:
		if !targets.ValidGlobalName(target.GlobalName) {
			return opts, fmt.Errorf("%w: %q", targets.ErrGlobalName, target.GlobalName)
		}
		opts.Format = api.FormatCommonJS
		opts.Banner = map[string]string{"js": umdBanner(target.GlobalName, target.Globals)}
		opts.Footer = map[string]string{"js": umdFooter()}
	default:
		return opts, fmt.Errorf("%w: %q", targets.ErrUnknownFormat, target.Format)
	}

	return opts, nil
}

// compile runs esbuild and collects the emitted files
func (p *Pipeline) compile(ctx context.Context, target targets.BuildTarget, opts api.BuildOptions) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, fmt.Errorf("compile %s: %s", target.Name, formatMessages(ctxErr.Errors, api.ErrorMessage))
	}
	defer buildCtx.Dispose()

	stop := context.AfterFunc(ctx, buildCtx.Cancel)
	defer stop()

	start := time.Now()
	result := buildCtx.Rebuild()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("compile %s: %s", target.Name, formatMessages(result.Errors, api.ErrorMessage))
	}

	log.Debug().
		Str("target", target.Name).
		Int("outputs", len(result.OutputFiles)).
		Dur("duration", time.Since(start)).
		Msg("esbuild finished")

	out := &Output{}
	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		out.Warnings = append(out.Warnings, strings.TrimSpace(msg))
	}

	for _, file := range result.OutputFiles {
		rel, err := filepath.Rel(p.root, file.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside the project root: %w", file.Path, err)
		}
		kind := KindCode
		if strings.HasSuffix(rel, ".map") {
			kind = KindSourceMap
		}
		out.Artifacts = append(out.Artifacts, Artifact{
			Path:     filepath.ToSlash(rel),
			Contents: file.Contents,
			Kind:     kind,
		})
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}
	analysis, err := meta.Analyze(filepath.ToSlash(filepath.Clean(target.OutputPath)))
	if err != nil {
		return nil, err
	}
	out.Analysis = analysis

	if target.Format == targets.FormatUMD {
		for _, missing := range analysis.MissingGlobals(target.Globals) {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("missing global variable name for external %q; it resolves to undefined in browser builds", missing))
		}
	}

	return out, nil
}

// formatMessages renders esbuild messages as a single line-separated string
func formatMessages(msgs []api.Message, kind api.MessageKind) string {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: kind})
	for i, msg := range formatted {
		formatted[i] = strings.TrimSpace(msg)
	}
	return strings.Join(formatted, "\n")
}
