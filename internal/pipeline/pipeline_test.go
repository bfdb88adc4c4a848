package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoarrow/distbuild/internal/targets"
)

const testEntry = `
import { tableFromArrays } from "apache-arrow";
import { scale } from "./scale";

export interface Point {
    x: number;
    y: number;
}

export function makeTable(points: Point[]) {
    return tableFromArrays({
        x: Float64Array.from(points.map((p) => scale(p.x))),
        y: Float64Array.from(points.map((p) => scale(p.y))),
    });
}

export const LAYER_NAME: string = "GeoArrowScatterplotLayer";
`

const testScale = `
export function scale(value: number, factor: number = 2): number {
    return value * factor;
}
`

// writeProject creates a minimal library layout and returns its root
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func defaultProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"src/index.ts": testEntry,
		"src/scale.ts": testScale,
	})
}

func newTestPipeline(t *testing.T, root string) *Pipeline {
	t.Helper()
	p, err := New(Config{Root: root, Tsconfig: "tsconfig.json", LanguageTarget: "es2020"})
	require.NoError(t, err)
	return p
}

func artifactByKind(out *Output, kind ArtifactKind) *Artifact {
	for i := range out.Artifacts {
		if out.Artifacts[i].Kind == kind {
			return &out.Artifacts[i]
		}
	}
	return nil
}

func TestPipeline_Run_ESModule(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("esm")
	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)

	code := artifactByKind(out, KindCode)
	require.NotNil(t, code)
	assert.Equal(t, "dist/dist.es.mjs", code.Path)

	js := string(code.Contents)
	assert.Contains(t, js, `from "apache-arrow"`)
	assert.Contains(t, js, "export {")
	assert.NotContains(t, js, "interface Point")
	assert.Contains(t, js, "sourceMappingURL=dist.es.mjs.map")

	sourceMap := artifactByKind(out, KindSourceMap)
	require.NotNil(t, sourceMap)
	assert.Equal(t, "dist/dist.es.mjs.map", sourceMap.Path)
	assert.Contains(t, string(sourceMap.Contents), "src/index.ts")

	require.NotNil(t, out.Analysis)
	assert.Equal(t, []string{"apache-arrow"}, out.Analysis.ExternalImports)
	assert.Contains(t, out.Analysis.Exports, "makeTable")
	assert.Len(t, out.Analysis.InputFiles, 2)
	assert.Positive(t, out.Analysis.TotalBytes)
}

func TestPipeline_Run_CommonJS(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("cjs")
	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)

	code := artifactByKind(out, KindCode)
	require.NotNil(t, code)
	assert.Equal(t, "dist/dist.cjs", code.Path)

	js := string(code.Contents)
	assert.Contains(t, js, `require("apache-arrow")`)
	assert.Contains(t, js, "module.exports")
	assert.NotContains(t, js, "export {")
}

func TestPipeline_Run_UMD(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("umd")
	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)

	code := artifactByKind(out, KindCode)
	require.NotNil(t, code)
	assert.Equal(t, "dist/dist.umd.js", code.Path)

	js := string(code.Contents)
	assert.True(t, strings.HasPrefix(js, "(function (root, factory) {"), js[:40])
	assert.Contains(t, js, `target["geoarrowDeckGlLayers"] = factory(`)
	assert.Contains(t, js, "return module.exports;")
	assert.Contains(t, js, `require("apache-arrow")`)
	// Minified: local identifiers are renamed
	assert.NotContains(t, js, "value * factor")

	assert.NotNil(t, artifactByKind(out, KindSourceMap))
	assert.Empty(t, out.Warnings)
}

// umdLoaderScript loads dist.umd.js from its own directory through a browser
// global, an AMD define and CommonJS require, then prints what each one saw.
const umdLoaderScript = `
const fs = require("fs");
const path = require("path");
const vm = require("vm");

const bundle = path.join(__dirname, "dist.umd.js");
const code = fs.readFileSync(bundle, "utf8");
const arrow = { tableFromArrays: (cols) => ({ x: Array.from(cols.x), y: Array.from(cols.y) }) };
const use = (lib) => ({ layer: lib.LAYER_NAME, table: lib.makeTable([{ x: 1, y: 3 }]) });

const browser = { Arrow: arrow };
vm.runInNewContext(code, browser);

const amd = {};
amd.define = function (deps, factory) {
  amd.deps = deps;
  amd.lib = factory(function (id) { return id === "apache-arrow" ? arrow : undefined; });
};
amd.define.amd = true;
vm.runInNewContext(code, amd);

console.log(JSON.stringify({
  global: use(browser.geoarrowDeckGlLayers),
  amd: Object.assign(use(amd.lib), { deps: amd.deps }),
  commonjs: use(require(bundle)),
}));
`

func TestPipeline_Run_UMDExecutes(t *testing.T) {
	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node not installed")
	}

	root := defaultProject(t)
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("umd")
	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)
	code := artifactByKind(out, KindCode)
	require.NotNil(t, code)

	dir := writeProject(t, map[string]string{
		"package.json":                       `{"type": "commonjs"}`,
		"dist.umd.js":                        string(code.Contents),
		"check.js":                           umdLoaderScript,
		"node_modules/apache-arrow/index.js": `exports.tableFromArrays = (cols) => ({ x: Array.from(cols.x), y: Array.from(cols.y) });`,
	})

	cmd := exec.Command(node, "check.js")
	cmd.Dir = dir
	stdout, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		t.Fatalf("node: %v\n%s", err, exitErr.Stderr)
	}
	require.NoError(t, err)

	type loaded struct {
		Layer string               `json:"layer"`
		Table map[string][]float64 `json:"table"`
		Deps  []string             `json:"deps"`
	}
	var got struct {
		Global   loaded `json:"global"`
		AMD      loaded `json:"amd"`
		CommonJS loaded `json:"commonjs"`
	}
	require.NoError(t, json.Unmarshal(stdout, &got))

	want := map[string][]float64{"x": {2}, "y": {6}}
	for name, l := range map[string]loaded{"global": got.Global, "amd": got.AMD, "commonjs": got.CommonJS} {
		assert.Equal(t, "GeoArrowScatterplotLayer", l.Layer, name)
		assert.Equal(t, want, l.Table, name)
	}
	require.NotEmpty(t, got.AMD.Deps)
	assert.Equal(t, "require", got.AMD.Deps[0])
	assert.Contains(t, got.AMD.Deps, "apache-arrow")
}

func TestPipeline_Run_UMDMissingGlobal(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/index.ts": `import { scaleLinear } from "d3-scale";
export const s = scaleLinear();`,
	})
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("umd")
	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], `"d3-scale"`)
}

func TestPipeline_Run_WithoutSourceMap(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("cjs")
	target.SourceMapEnabled = false

	out, err := p.Run(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, KindCode, out.Artifacts[0].Kind)
	assert.NotContains(t, string(out.Artifacts[0].Contents), "sourceMappingURL")
}

func TestPipeline_Run_CompileError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/index.ts": `import { missing } from "./does-not-exist";
export const x = missing;`,
	})
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("esm")
	_, err := p.Run(context.Background(), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile esm")
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestPipeline_Run_CancelledContext(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target, _ := targets.Default().Lookup("esm")
	_, err := p.Run(ctx, target)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_InvalidTargets(t *testing.T) {
	root := defaultProject(t)
	p := newTestPipeline(t, root)
	base, _ := targets.Default().Lookup("umd")

	t.Run("unknown plugin", func(t *testing.T) {
		target := base
		target.Plugins = []targets.PluginRef{"babel"}
		_, err := p.Run(context.Background(), target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown plugin "babel"`)
	})

	t.Run("no plugins", func(t *testing.T) {
		target := base
		target.Plugins = nil
		_, err := p.Run(context.Background(), target)
		assert.Error(t, err)
	})

	t.Run("emitter combined with configurer", func(t *testing.T) {
		target := base
		target.Plugins = []targets.PluginRef{targets.PluginTypeScript, targets.PluginDTS}
		_, err := p.Run(context.Background(), target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be combined")
	})

	t.Run("umd with invalid global name", func(t *testing.T) {
		target := base
		target.GlobalName = "not-an-identifier"
		_, err := p.Run(context.Background(), target)
		assert.ErrorIs(t, err, targets.ErrGlobalName)
	})

	t.Run("unknown format", func(t *testing.T) {
		target := base
		target.Format = "system"
		_, err := p.Run(context.Background(), target)
		assert.ErrorIs(t, err, targets.ErrUnknownFormat)
	})
}

func TestPluginOrder(t *testing.T) {
	p := newTestPipeline(t, t.TempDir())

	plugins, err := p.Resolve([]targets.PluginRef{targets.PluginTypeScript, targets.PluginTerser})
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "typescript", plugins[0].Name())
	assert.Equal(t, "terser", plugins[1].Name())

	var opts api.BuildOptions
	for _, plugin := range plugins {
		require.NoError(t, plugin.(Configurer).Configure(&opts, targets.BuildTarget{}))
	}
	assert.Equal(t, api.ES2020, opts.Target)
	assert.True(t, opts.MinifyWhitespace)
	assert.True(t, opts.MinifyIdentifiers)
	assert.True(t, opts.MinifySyntax)
	assert.Equal(t, api.LoaderTS, opts.Loader[".ts"])
	assert.Empty(t, opts.Tsconfig, "missing tsconfig should not be passed to esbuild")
}

func TestTypeScriptPlugin_Tsconfig(t *testing.T) {
	root := writeProject(t, map[string]string{
		"tsconfig.json": `{"compilerOptions": {"strict": true}}`,
	})
	p := newTestPipeline(t, root)

	plugins, err := p.Resolve([]targets.PluginRef{targets.PluginTypeScript})
	require.NoError(t, err)

	var opts api.BuildOptions
	require.NoError(t, plugins[0].(Configurer).Configure(&opts, targets.BuildTarget{}))
	assert.Equal(t, filepath.Join(p.Root(), "tsconfig.json"), opts.Tsconfig)
}

func TestParseLanguageTarget(t *testing.T) {
	tests := []struct {
		input   string
		want    api.Target
		wantErr bool
	}{
		{"es2020", api.ES2020, false},
		{"ES2017", api.ES2017, false},
		{"esnext", api.ESNext, false},
		{"es5", api.DefaultTarget, true},
		{"", api.DefaultTarget, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLanguageTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_InvalidLanguageTarget(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), LanguageTarget: "es3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language target")
}
