// Package build runs every registry target through its pipeline and writes
// the resulting artifacts.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/geoarrow/distbuild/internal/observability"
	"github.com/geoarrow/distbuild/internal/pipeline"
	"github.com/geoarrow/distbuild/internal/targets"
)

// Compiler turns one target into artifacts
type Compiler interface {
	Run(ctx context.Context, target targets.BuildTarget) (*pipeline.Output, error)
}

// Options controls a build run
type Options struct {
	Parallelism int  // Maximum targets compiled at once
	FailFast    bool // Cancel remaining targets after the first failure
}

// Runner builds targets and writes their artifacts
type Runner struct {
	compiler Compiler
	writer   *Writer
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	opts     Options
}

// NewRunner creates a runner. metrics and tracer may be nil.
func NewRunner(compiler Compiler, writer *Writer, metrics *observability.Metrics, tracer *observability.Tracer, opts Options) *Runner {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Runner{
		compiler: compiler,
		writer:   writer,
		metrics:  metrics,
		tracer:   tracer,
		opts:     opts,
	}
}

// Run validates list and builds every target, independently of the others.
// The returned report holds a result per target in list order; the error
// joins every target failure.
func (r *Runner) Run(ctx context.Context, list []targets.BuildTarget) (*Report, error) {
	if err := targets.Validate(list); err != nil {
		return nil, fmt.Errorf("invalid build targets: %w", err)
	}

	report := &Report{
		RunID:   uuid.New().String(),
		Results: make([]TargetResult, len(list)),
	}
	logger := log.With().Str("run_id", report.RunID).Logger()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartBuildSpan(ctx, report.RunID, len(list))
		defer span.End()

		if traceID := observability.ExtractTraceID(ctx); traceID != "" {
			report.TraceID = traceID
			logger = logger.With().Str("trace_id", traceID).Logger()
		}
	}

	logger.Info().Int("targets", len(list)).Int("parallelism", r.opts.Parallelism).Msg("Build started")
	start := time.Now()

	var g *errgroup.Group
	gctx := ctx
	if r.opts.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(r.opts.Parallelism)

	for i, target := range list {
		g.Go(func() error {
			// Each goroutine owns one slot of Results
			report.Results[i] = r.buildTarget(gctx, logger, target)
			return report.Results[i].Err
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.MarkRunFinished(time.Now())
	}

	var errs []error
	for _, res := range report.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}

	event := logger.Info()
	if len(errs) > 0 {
		event = logger.Error().Int("failed", len(errs))
	}
	event.Dur("duration", report.Duration).Int("bytes", report.TotalBytes()).Msg("Build finished")

	return report, errors.Join(errs...)
}

// buildTarget compiles and writes one target
func (r *Runner) buildTarget(ctx context.Context, logger zerolog.Logger, target targets.BuildTarget) (res TargetResult) {
	res = TargetResult{
		Name:   target.Name,
		Format: target.Format,
		Output: target.OutputPath,
	}
	start := time.Now()

	if r.tracer != nil {
		spanCtx, span := r.tracer.StartTargetSpan(ctx, target.Name, target.Format.String(), target.OutputPath)
		ctx = spanCtx
		defer func() { observability.EndSpan(span, res.Err) }()
	}

	logger = logger.With().Str("target", target.Name).Str("format", target.Format.String()).Logger()
	logger.Debug().Str("output", target.OutputPath).Strs("plugins", target.PluginNames()).Msg("Building target")

	defer func() {
		res.Duration = time.Since(start)
		if r.metrics != nil {
			r.metrics.RecordTarget(target.Name, target.Format.String(), res.Duration, res.Err)
		}
		if res.Err != nil {
			logger.Error().Err(res.Err).Dur("duration", res.Duration).Msg("Target failed")
			return
		}
		for _, w := range res.Warnings {
			logger.Warn().Msg(w)
		}
		logger.Info().
			Str("output", target.OutputPath).
			Int("bytes", res.Bytes).
			Dur("duration", res.Duration).
			Msg("Target built")
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	out, err := r.compiler.Run(ctx, target)
	if err != nil {
		res.Err = err
		return res
	}
	res.Warnings = out.Warnings
	res.Analysis = out.Analysis

	if err := r.writer.Write(out.Artifacts); err != nil {
		res.Err = err
		return res
	}

	for _, a := range out.Artifacts {
		switch a.Kind {
		case pipeline.KindSourceMap:
			res.MapBytes += len(a.Contents)
		default:
			res.Bytes += len(a.Contents)
		}
		if r.metrics != nil {
			r.metrics.RecordArtifact(target.Name, string(a.Kind), len(a.Contents))
		}
	}
	observability.SetSpanAttributes(ctx, attribute.Int("target.bytes", res.Bytes))

	return res
}
