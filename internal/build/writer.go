package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/geoarrow/distbuild/internal/pipeline"
	"github.com/geoarrow/distbuild/internal/targets"
)

// Writer persists artifacts below a project root
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at root
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Write writes every artifact, creating parent directories as needed
func (w *Writer) Write(artifacts []pipeline.Artifact) error {
	for _, a := range artifacts {
		full := filepath.Join(w.root, filepath.FromSlash(a.Path))

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil { //nolint:gosec // output directories are meant to be readable
			return fmt.Errorf("failed to create directory for %s: %w", a.Path, err)
		}
		if err := os.WriteFile(full, a.Contents, 0o644); err != nil { //nolint:gosec // distribution artifacts are meant to be readable
			return fmt.Errorf("failed to write %s: %w", a.Path, err)
		}
	}
	return nil
}

// Clean removes the outputs of list and their source maps.
// It returns the paths that were actually removed.
func (w *Writer) Clean(list []targets.BuildTarget) ([]string, error) {
	var removed []string
	var errs []error

	for _, t := range list {
		// A map left behind by an earlier configuration is stale too, so it
		// is removed whether or not the target emits one now
		for _, p := range []string{t.OutputPath, t.OutputPath + ".map"} {
			full := filepath.Join(w.root, filepath.FromSlash(p))
			err := os.Remove(full)
			switch {
			case err == nil:
				removed = append(removed, p)
				log.Debug().Str("path", p).Msg("Removed artifact")
			case errors.Is(err, fs.ErrNotExist):
			default:
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
			}
		}
	}

	return removed, errors.Join(errs...)
}
