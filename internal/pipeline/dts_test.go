package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoarrow/distbuild/internal/targets"
)

func TestDTSArgs(t *testing.T) {
	t.Run("with tsconfig", func(t *testing.T) {
		args := dtsArgs("/p/src/index.ts", "/tmp/x/index.d.ts", "/p/tsconfig.json")
		assert.Equal(t, []string{
			"--no-banner", "-o", "/tmp/x/index.d.ts",
			"--project", "/p/tsconfig.json",
			"/p/src/index.ts",
		}, args)
	})

	t.Run("without tsconfig", func(t *testing.T) {
		args := dtsArgs("/p/src/index.ts", "/tmp/x/index.d.ts", "")
		assert.Equal(t, []string{"--no-banner", "-o", "/tmp/x/index.d.ts", "/p/src/index.ts"}, args)
	})
}

func TestFindDTSBundler(t *testing.T) {
	t.Run("configured path must exist", func(t *testing.T) {
		_, err := findDTSBundler("/nonexistent/dts-bundle-generator", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configured dts bundler")
	})

	t.Run("configured path wins", func(t *testing.T) {
		bin := filepath.Join(t.TempDir(), "dts")
		require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

		path, err := findDTSBundler(bin, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("falls back to node_modules", func(t *testing.T) {
		if _, err := exec.LookPath(dtsBundlerBinary); err == nil {
			t.Skip("dts-bundle-generator is on PATH")
		}
		root := t.TempDir()
		local := filepath.Join(root, "node_modules", ".bin", dtsBundlerBinary)
		require.NoError(t, os.MkdirAll(filepath.Dir(local), 0o755))
		require.NoError(t, os.WriteFile(local, []byte("#!/bin/sh\n"), 0o755))

		path, err := findDTSBundler("", root)
		require.NoError(t, err)
		assert.Equal(t, local, path)
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := exec.LookPath(dtsBundlerBinary); err == nil {
			t.Skip("dts-bundle-generator is on PATH")
		}
		_, err := findDTSBundler("", t.TempDir())
		assert.ErrorIs(t, err, ErrDTSBundlerNotFound)
	})
}

// fakeBundler writes a shell script standing in for dts-bundle-generator.
// It copies $DTS_FAKE_OUTPUT to the -o argument, or fails when it is unset.
func fakeBundler(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script bundler stub requires a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "fake-dts")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestDTSPlugin_Emit(t *testing.T) {
	target, _ := targets.Default().Lookup("dts")

	t.Run("reads the bundled declarations", func(t *testing.T) {
		bin := fakeBundler(t, `#!/bin/sh
while [ "$#" -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; out="$1"; fi
  shift
done
printf 'export declare const LAYER_NAME: string;\n' > "$out"
`)
		plugin := &dtsPlugin{root: t.TempDir(), binary: bin}

		artifacts, err := plugin.Emit(context.Background(), target)
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.Equal(t, "dist/index.d.ts", artifacts[0].Path)
		assert.Equal(t, KindDeclaration, artifacts[0].Kind)
		assert.Equal(t, "export declare const LAYER_NAME: string;\n", string(artifacts[0].Contents))
	})

	t.Run("reports tool errors", func(t *testing.T) {
		bin := fakeBundler(t, `#!/bin/sh
echo "Compiling..." >&2
echo "src/index.ts(3,1): error TS2304: Cannot find name 'Foo'." >&2
exit 1
`)
		plugin := &dtsPlugin{root: t.TempDir(), binary: bin}

		_, err := plugin.Emit(context.Background(), target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declaration bundling failed")
		assert.Contains(t, err.Error(), "TS2304")
		assert.NotContains(t, err.Error(), "Compiling")
	})

	t.Run("times out", func(t *testing.T) {
		bin := fakeBundler(t, "#!/bin/sh\nexec sleep 5\n")
		plugin := &dtsPlugin{root: t.TempDir(), binary: bin, timeout: 50 * time.Millisecond}

		start := time.Now()
		_, err := plugin.Emit(context.Background(), target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declaration bundling timeout after 50ms")
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("caller deadline is not reported as a timeout", func(t *testing.T) {
		bin := fakeBundler(t, "#!/bin/sh\nexec sleep 5\n")
		plugin := &dtsPlugin{root: t.TempDir(), binary: bin, timeout: time.Minute}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := plugin.Emit(ctx, target)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotContains(t, err.Error(), "timeout after")
	})

	t.Run("missing bundler", func(t *testing.T) {
		plugin := &dtsPlugin{root: t.TempDir(), binary: "/nonexistent/dts"}
		_, err := plugin.Emit(context.Background(), target)
		assert.Error(t, err)
	})
}

func TestDTSPlugin_RealBundler(t *testing.T) {
	if _, err := exec.LookPath(dtsBundlerBinary); err != nil {
		t.Skip("dts-bundle-generator not installed, skipping declaration bundling test")
	}

	root := writeProject(t, map[string]string{
		"src/index.ts": testEntry,
		"src/scale.ts": testScale,
		"tsconfig.json": `{"compilerOptions": {"strict": true, "declaration": true, "moduleResolution": "node",
			"skipLibCheck": true}}`,
	})
	p := newTestPipeline(t, root)

	target, _ := targets.Default().Lookup("dts")
	out, err := p.Run(context.Background(), target)
	if err != nil {
		// apache-arrow typings are not installed in the temp project
		t.Skipf("declaration bundler could not resolve dependencies: %v", err)
	}
	require.Len(t, out.Artifacts, 1)
	assert.Contains(t, string(out.Artifacts[0].Contents), "Point")
}

func TestCleanToolError(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		tmpDir string
		want   string
	}{
		{
			name:   "keeps error lines",
			input:  "Compiling...\nsrc/a.ts: error TS1005: ';' expected.\nDone",
			tmpDir: "/tmp/distbuild-dts-abc",
			want:   "src/a.ts: error TS1005: ';' expected.",
		},
		{
			name:   "strips temp dir",
			input:  "Error: cannot write /tmp/distbuild-dts-abc123/index.d.ts",
			tmpDir: "/tmp/distbuild-dts-abc123",
			want:   "Error: cannot write index.d.ts",
		},
		{
			name:   "falls back to full message",
			input:  "  something odd happened  ",
			tmpDir: "/tmp/distbuild-dts-x",
			want:   "something odd happened",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanToolError(tt.input, tt.tmpDir))
		})
	}
}
