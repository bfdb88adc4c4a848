package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"` // "cjs" or "esm"
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// Analysis describes what went into one emitted bundle
type Analysis struct {
	TotalBytes      int            `json:"total_bytes"`
	InputFiles      []FileAnalysis `json:"inputs,omitempty"`
	ExternalImports []string       `json:"external_imports,omitempty"`
	Exports         []string       `json:"exports,omitempty"`
}

// FileAnalysis contains analysis for a single input file
type FileAnalysis struct {
	Path          string  `json:"path"`
	Bytes         int     `json:"bytes"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
	ImportCount   int     `json:"import_count"`
}

// parseMetafile decodes the metafile emitted by esbuild
func parseMetafile(raw string) (*Metafile, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return &meta, nil
}

// Analyze summarises the metafile output written to outputPath, which is
// relative to the build's working directory.
func (m *Metafile) Analyze(outputPath string) (*Analysis, error) {
	output, ok := m.Outputs[outputPath]
	if !ok {
		return nil, fmt.Errorf("metafile has no output %s", outputPath)
	}

	result := &Analysis{
		TotalBytes: output.Bytes,
		Exports:    append([]string(nil), output.Exports...),
	}

	seen := make(map[string]bool)
	for _, imp := range output.Imports {
		if imp.External && !seen[imp.Path] {
			seen[imp.Path] = true
			result.ExternalImports = append(result.ExternalImports, imp.Path)
		}
	}

	for inputPath, contrib := range output.Inputs {
		inputInfo, ok := m.Inputs[inputPath]
		if !ok {
			continue
		}

		percentage := 0.0
		if result.TotalBytes > 0 {
			percentage = float64(contrib.BytesInOutput) / float64(result.TotalBytes) * 100
		}

		result.InputFiles = append(result.InputFiles, FileAnalysis{
			Path:          inputPath,
			Bytes:         inputInfo.Bytes,
			BytesInOutput: contrib.BytesInOutput,
			Percentage:    percentage,
			ImportCount:   len(inputInfo.Imports),
		})
	}

	// Largest contributors first, path as tie-breaker for stable output
	sort.Slice(result.InputFiles, func(i, j int) bool {
		a, b := result.InputFiles[i], result.InputFiles[j]
		if a.BytesInOutput != b.BytesInOutput {
			return a.BytesInOutput > b.BytesInOutput
		}
		return a.Path < b.Path
	})
	sort.Strings(result.ExternalImports)
	sort.Strings(result.Exports)

	return result, nil
}

// MissingGlobals returns the external imports that have no browser global
func (a *Analysis) MissingGlobals(globals map[string]string) []string {
	var missing []string
	for _, imp := range a.ExternalImports {
		if _, ok := globals[imp]; !ok {
			missing = append(missing, imp)
		}
	}
	return missing
}
