package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geoarrow/distbuild/internal/targets"
)

// dtsBundlerBinary is the declaration bundler looked up on PATH and in node_modules
const dtsBundlerBinary = "dts-bundle-generator"

// defaultDTSTimeout bounds a single declaration bundling run
const defaultDTSTimeout = 2 * time.Minute

// ErrDTSBundlerNotFound is returned when no declaration bundler executable exists
var ErrDTSBundlerNotFound = errors.New("dts-bundle-generator is required for declaration targets. Install it with `npm install --save-dev dts-bundle-generator`")

// dtsPlugin bundles the entry point's type declarations into one file
type dtsPlugin struct {
	root     string
	tsconfig string
	binary   string
	timeout  time.Duration
}

func (p *dtsPlugin) Name() string { return string(targets.PluginDTS) }

// findDTSBundler locates the declaration bundler executable.
// An explicitly configured path wins, then PATH, then the project's node_modules.
func findDTSBundler(configured, root string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured dts bundler %s: %w", configured, err)
		}
		return configured, nil
	}

	if path, err := exec.LookPath(dtsBundlerBinary); err == nil {
		return path, nil
	}

	local := filepath.Join(root, "node_modules", ".bin", dtsBundlerBinary)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	return "", ErrDTSBundlerNotFound
}

// dtsArgs builds the declaration bundler command line
func dtsArgs(entry, outFile, tsconfig string) []string {
	args := []string{"--no-banner", "-o", outFile}
	if tsconfig != "" {
		args = append(args, "--project", tsconfig)
	}
	return append(args, entry)
}

func (p *dtsPlugin) Emit(ctx context.Context, target targets.BuildTarget) ([]Artifact, error) {
	binary, err := findDTSBundler(p.binary, p.root)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "distbuild-dts-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	outFile := filepath.Join(tmpDir, filepath.Base(target.OutputPath))

	tsconfig := ""
	if p.tsconfig != "" {
		candidate := p.tsconfig
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(p.root, candidate)
		}
		if _, err := os.Stat(candidate); err == nil {
			tsconfig = candidate
		}
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultDTSTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := dtsArgs(filepath.Join(p.root, target.InputPath), outFile, tsconfig)
	log.Debug().Str("binary", binary).Strs("args", args).Msg("Running declaration bundler")

	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec // binary is resolved by findDTSBundler
	cmd.Dir = p.root
	cmd.WaitDelay = time.Second

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The caller's own cancellation or deadline takes precedence over ours
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("declaration bundling timeout after %s", timeout)
	}

	if runErr != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		if errMsg == "" {
			errMsg = runErr.Error()
		}
		return nil, fmt.Errorf("declaration bundling failed: %s", cleanToolError(errMsg, tmpDir))
	}

	contents, err := os.ReadFile(outFile) //nolint:gosec // file is inside our temp directory
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration bundle: %w", err)
	}

	return []Artifact{{
		Path:     filepath.ToSlash(target.OutputPath),
		Contents: contents,
		Kind:     KindDeclaration,
	}}, nil
}

// cleanToolError strips temp paths and keeps only the lines that describe
// the failure.
func cleanToolError(errMsg, tmpDir string) string {
	errMsg = strings.ReplaceAll(errMsg, tmpDir+string(filepath.Separator), "")
	errMsg = regexp.MustCompile(`/tmp/distbuild-dts-[a-zA-Z0-9]+/`).ReplaceAllString(errMsg, "")

	var relevant []string
	for _, line := range strings.Split(errMsg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "error") ||
			strings.Contains(line, "Error") ||
			strings.Contains(line, "Cannot find") {
			relevant = append(relevant, line)
		}
	}

	if len(relevant) > 0 {
		return strings.Join(relevant, "\n")
	}
	return strings.TrimSpace(errMsg)
}
