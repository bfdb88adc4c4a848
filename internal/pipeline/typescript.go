package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/geoarrow/distbuild/internal/targets"
)

// languageTargets maps accepted language levels to esbuild targets
var languageTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseLanguageTarget parses a language level such as "es2020"
func ParseLanguageTarget(s string) (api.Target, error) {
	t, ok := languageTargets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unsupported language target: %s", s)
	}
	return t, nil
}

// typeScriptPlugin strips types and lowers syntax to the configured level
type typeScriptPlugin struct {
	root     string
	tsconfig string
	target   api.Target
}

func (p *typeScriptPlugin) Name() string { return string(targets.PluginTypeScript) }

func (p *typeScriptPlugin) Configure(opts *api.BuildOptions, _ targets.BuildTarget) error {
	opts.Target = p.target
	if opts.Loader == nil {
		opts.Loader = make(map[string]api.Loader)
	}
	opts.Loader[".ts"] = api.LoaderTS
	opts.Loader[".tsx"] = api.LoaderTSX
	opts.Loader[".mts"] = api.LoaderTS

	if p.tsconfig == "" {
		return nil
	}
	tsconfig := p.tsconfig
	if !filepath.IsAbs(tsconfig) {
		tsconfig = filepath.Join(p.root, tsconfig)
	}
	// A missing tsconfig is fine; esbuild then uses its own defaults.
	if _, err := os.Stat(tsconfig); err == nil {
		opts.Tsconfig = tsconfig
	}
	return nil
}

// terserPlugin minifies the emitted code
type terserPlugin struct{}

func (terserPlugin) Name() string { return string(targets.PluginTerser) }

func (terserPlugin) Configure(opts *api.BuildOptions, _ targets.BuildTarget) error {
	opts.MinifyWhitespace = true
	opts.MinifyIdentifiers = true
	opts.MinifySyntax = true
	opts.LegalComments = api.LegalCommentsEndOfFile
	return nil
}
