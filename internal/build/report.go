package build

import (
	"time"

	"github.com/geoarrow/distbuild/internal/pipeline"
	"github.com/geoarrow/distbuild/internal/targets"
)

// TargetResult is the outcome of building one target
type TargetResult struct {
	Name     string             `json:"name"`
	Format   targets.Format     `json:"format"`
	Output   string             `json:"output"`
	Bytes    int                `json:"bytes"`
	MapBytes int                `json:"map_bytes,omitempty"`
	Duration time.Duration      `json:"duration"`
	Warnings []string           `json:"warnings,omitempty"`
	Analysis *pipeline.Analysis `json:"analysis,omitempty"`
	Err      error              `json:"-"`
}

// Status returns "ok" or "failed"
func (r TargetResult) Status() string {
	if r.Err != nil {
		return "failed"
	}
	return "ok"
}

// Report collects the results of one build run, in target order
type Report struct {
	RunID    string         `json:"run_id"`
	TraceID  string         `json:"trace_id,omitempty"`
	Duration time.Duration  `json:"duration"`
	Results  []TargetResult `json:"results"`
}

// TotalBytes sums the artifact sizes of successful targets, source maps excluded
func (r *Report) TotalBytes() int {
	total := 0
	for _, res := range r.Results {
		if res.Err == nil {
			total += res.Bytes
		}
	}
	return total
}

// Failed returns the results that carry an error
func (r *Report) Failed() []TargetResult {
	var failed []TargetResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
