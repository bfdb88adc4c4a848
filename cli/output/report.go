package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/geoarrow/distbuild/internal/build"
	"github.com/geoarrow/distbuild/internal/pipeline"
)

// maxBreakdownFiles limits the per-target breakdown unless details are requested
const maxBreakdownFiles = 10

// TargetSummary is the structured form of one target result
type TargetSummary struct {
	Name      string   `json:"name" yaml:"name"`
	Format    string   `json:"format" yaml:"format"`
	Output    string   `json:"output" yaml:"output"`
	Status    string   `json:"status" yaml:"status"`
	Bytes     int      `json:"bytes" yaml:"bytes"`
	MapBytes  int      `json:"map_bytes,omitempty" yaml:"map_bytes,omitempty"`
	Duration  string   `json:"duration" yaml:"duration"`
	Externals []string `json:"externals,omitempty" yaml:"externals,omitempty"`
	Warnings  []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// ReportSummary is the structured form of a build report
type ReportSummary struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	TraceID    string          `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
	Duration   string          `json:"duration" yaml:"duration"`
	TotalBytes int             `json:"total_bytes" yaml:"total_bytes"`
	Targets    []TargetSummary `json:"targets" yaml:"targets"`
}

// Summarize converts a report into its structured form
func Summarize(report *build.Report) ReportSummary {
	summary := ReportSummary{
		RunID:      report.RunID,
		TraceID:    report.TraceID,
		Duration:   report.Duration.Round(time.Millisecond).String(),
		TotalBytes: report.TotalBytes(),
		Targets:    make([]TargetSummary, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		ts := TargetSummary{
			Name:     res.Name,
			Format:   res.Format.String(),
			Output:   res.Output,
			Status:   res.Status(),
			Bytes:    res.Bytes,
			MapBytes: res.MapBytes,
			Duration: res.Duration.Round(time.Millisecond).String(),
			Warnings: res.Warnings,
		}
		if res.Analysis != nil {
			ts.Externals = res.Analysis.ExternalImports
		}
		if res.Err != nil {
			ts.Error = res.Err.Error()
		}
		summary.Targets = append(summary.Targets, ts)
	}
	return summary
}

// DisplayReport prints a size summary of every target in build order
func DisplayReport(w io.Writer, report *build.Report) {
	if len(report.Results) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w, "\n=== Build Summary ===")

	// Calculate column widths for alignment
	nameLen, outLen := len("TARGET"), len("OUTPUT")
	for _, res := range report.Results {
		nameLen = max(nameLen, len(res.Name))
		outLen = max(outLen, len(res.Output))
	}

	_, _ = fmt.Fprintf(w, "%-*s  %-*s  %10s  %10s  %s\n", nameLen, "TARGET", outLen, "OUTPUT", "SIZE", "MAP", "STATUS")
	rule := fmt.Sprintf("%s  %s  ----------  ----------  ------\n", strings.Repeat("-", nameLen), strings.Repeat("-", outLen))
	_, _ = fmt.Fprint(w, rule)

	for _, res := range report.Results {
		size, mapSize := "-", "-"
		if res.Err == nil {
			size = humanize.IBytes(uint64(res.Bytes))
			if res.MapBytes > 0 {
				mapSize = humanize.IBytes(uint64(res.MapBytes))
			}
		}
		_, _ = fmt.Fprintf(w, "%-*s  %-*s  %10s  %10s  %s\n", nameLen, res.Name, outLen, res.Output, size, mapSize, res.Status())
	}

	_, _ = fmt.Fprint(w, rule)
	_, _ = fmt.Fprintf(w, "%-*s  %-*s  %10s\n", nameLen, "TOTAL", outLen, "", humanize.IBytes(uint64(report.TotalBytes())))
	_, _ = fmt.Fprintf(w, "Built in %s (run %s)\n", report.Duration.Round(time.Millisecond), report.RunID)

	var warnings []string
	for _, res := range report.Results {
		for _, warn := range res.Warnings {
			warnings = append(warnings, res.Name+": "+warn)
		}
	}
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		_, _ = fmt.Fprintln(w, "\nFailures:")
		for _, res := range failed {
			_, _ = fmt.Fprintf(w, "  - %s: %v\n", res.Name, res.Err)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// DisplayAnalysis prints the input breakdown of one target's output
func DisplayAnalysis(w io.Writer, name string, analysis *pipeline.Analysis, showDetails bool) {
	if analysis == nil {
		return
	}

	_, _ = fmt.Fprintf(w, "=== Bundle Analysis: %s ===\n", name)
	_, _ = fmt.Fprintf(w, "Total size: %s\n", humanize.IBytes(uint64(analysis.TotalBytes)))

	if len(analysis.ExternalImports) > 0 {
		_, _ = fmt.Fprintln(w, "\nExternal imports (resolved by the consumer):")
		for _, imp := range analysis.ExternalImports {
			_, _ = fmt.Fprintf(w, "  - %s\n", imp)
		}
	}

	if len(analysis.Exports) > 0 {
		_, _ = fmt.Fprintf(w, "\nExports: %s\n", strings.Join(analysis.Exports, ", "))
	}

	if len(analysis.InputFiles) > 0 {
		_, _ = fmt.Fprintln(w, "\nBundle breakdown:")

		limit := maxBreakdownFiles
		if showDetails {
			limit = len(analysis.InputFiles)
		}
		shown := analysis.InputFiles[:min(limit, len(analysis.InputFiles))]

		pathLen := 0
		for _, file := range shown {
			pathLen = max(pathLen, len(truncatePath(file.Path, 50)))
		}
		for _, file := range shown {
			_, _ = fmt.Fprintf(w, "  %-*s  %10s  %5.1f%%\n",
				pathLen,
				truncatePath(file.Path, 50),
				humanize.IBytes(uint64(file.BytesInOutput)),
				file.Percentage,
			)
		}
		if remaining := len(analysis.InputFiles) - len(shown); remaining > 0 {
			_, _ = fmt.Fprintf(w, "  ... and %d more files\n", remaining)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
