// Package cmd provides the Cobra commands for the distbuild CLI.
package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geoarrow/distbuild/cli/output"
	"github.com/geoarrow/distbuild/internal/config"
	"github.com/geoarrow/distbuild/internal/targets"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	cfg       *config.Config
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "distbuild",
	Short: "distbuild - Build the distributable bundles of @geoarrow/deck.gl-layers",
	Long: `distbuild compiles the library entry point into every distribution format
published to npm and CDNs:

  esm   dist/dist.es.mjs   ES module for bundlers
  dts   dist/index.d.ts    bundled type declarations
  cjs   dist/dist.cjs      CommonJS for Node require()
  umd   dist/dist.umd.js   minified UMD for script tags

Dependencies such as deck.gl and apache-arrow are never inlined.

Get started:
  distbuild targets      List the build targets
  distbuild build        Build every target
  distbuild check        Check package.json against the targets`,
	SilenceUsage: true,
	// main prints the returned error
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./distbuild.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cleanCmd)
}

// setup loads the configuration and prepares logging and output
func setup(cmd *cobra.Command) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	// Commands that never touch the project skip configuration
	if cmd == versionCmd || cmd == completionCmd {
		return nil
	}

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	switch {
	case debug || cfg.Debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().
		Str("root", cfg.Root).
		Str("entry", cfg.Entry).
		Str("out_dir", cfg.OutDir).
		Msg("Configuration loaded")
	return nil
}

// selectTargets builds the registry from the configuration and returns the
// named targets, or all of them when names is empty.
func selectTargets(names []string) ([]targets.BuildTarget, error) {
	list, err := targets.NewRegistry(cfg.TargetOptions()).Select(names...)
	if err != nil {
		return nil, err
	}
	if err := targets.Validate(list); err != nil {
		return nil, fmt.Errorf("invalid build targets: %w", err)
	}
	return list, nil
}

// completeTargetNames completes target name arguments
func completeTargetNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var names []string
	for _, t := range targets.Default().ListTargets() {
		names = append(names, t.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
