package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geoarrow/distbuild/cli/output"
	"github.com/geoarrow/distbuild/internal/build"
	"github.com/geoarrow/distbuild/internal/observability"
	"github.com/geoarrow/distbuild/internal/pipeline"
)

var (
	buildParallel    int
	buildFailFast    bool
	buildAnalyze     bool
	buildDetails     bool
	buildMetricsFile string
)

var buildCmd = &cobra.Command{
	Use:   "build [names...]",
	Short: "Build the distribution bundles",
	Long: `Build every target, or only the named ones, and write the artifacts.

Targets are built independently: a failing target does not stop the others
unless --fail-fast is given. The command exits non-zero if any target failed.

Examples:
  distbuild build
  distbuild build esm cjs
  distbuild build --analyze --details umd
  distbuild build --metrics-file /var/lib/node_exporter/distbuild.prom`,
	ValidArgsFunction: completeTargetNames,
	RunE:              runBuild,
}

func init() {
	buildCmd.Flags().IntVar(&buildParallel, "parallel", 0, "maximum targets built at once (default from config)")
	buildCmd.Flags().BoolVar(&buildFailFast, "fail-fast", false, "cancel remaining targets after the first failure")
	buildCmd.Flags().BoolVar(&buildAnalyze, "analyze", false, "show the bundle breakdown of each target")
	buildCmd.Flags().BoolVar(&buildDetails, "details", false, "show every input file in the breakdown")
	buildCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
}

func runBuild(cmd *cobra.Command, args []string) error {
	list, err := selectTargets(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := observability.NewTracer(ctx, cfg.Tracing, Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	p, err := pipeline.New(cfg.PipelineConfig())
	if err != nil {
		return err
	}

	parallelism := cfg.Parallelism
	if buildParallel > 0 {
		parallelism = buildParallel
	}

	metrics := observability.NewMetrics()
	runner := build.NewRunner(p, build.NewWriter(p.Root()), metrics, tracer, build.Options{
		Parallelism: parallelism,
		FailFast:    buildFailFast,
	})

	report, runErr := runner.Run(ctx, list)
	if report == nil {
		return runErr
	}

	metricsFile := cfg.MetricsFile
	if buildMetricsFile != "" {
		metricsFile = buildMetricsFile
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			formatter.PrintWarning(err.Error())
		}
	}

	if err := printReport(report); err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d targets failed: %w", len(failed), len(report.Results), runErr)
	}
	return nil
}

// printReport writes the report in the configured output format
func printReport(report *build.Report) error {
	if formatter.IsStructured() {
		return formatter.Print(output.Summarize(report))
	}
	if formatter.Quiet {
		return nil
	}

	output.DisplayReport(formatter.Writer, report)
	if buildAnalyze {
		for _, res := range report.Results {
			output.DisplayAnalysis(formatter.Writer, res.Name, res.Analysis, buildDetails)
		}
	}
	return nil
}
