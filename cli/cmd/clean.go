package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoarrow/distbuild/internal/build"
	"github.com/geoarrow/distbuild/internal/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [names...]",
	Short: "Remove build artifacts",
	Long: `Remove the outputs of every target, or only the named ones, together
with their source maps. Missing files are ignored.`,
	ValidArgsFunction: completeTargetNames,
	RunE:              runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	list, err := selectTargets(args)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg.PipelineConfig())
	if err != nil {
		return err
	}

	removed, err := build.NewWriter(p.Root()).Clean(list)
	if err != nil {
		return err
	}

	if formatter.IsStructured() {
		if removed == nil {
			removed = []string{}
		}
		return formatter.PrintList(removed)
	}

	if err := formatter.PrintList(removed); err != nil {
		return err
	}
	formatter.PrintSuccess(fmt.Sprintf("Removed %d files", len(removed)))
	return nil
}
