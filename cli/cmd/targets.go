package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geoarrow/distbuild/cli/output"
	"github.com/geoarrow/distbuild/internal/targets"
)

var targetsCmd = &cobra.Command{
	Use:     "targets [names...]",
	Aliases: []string{"ls", "list"},
	Short:   "List the build targets",
	Long: `List the build targets in build order.

Examples:
  distbuild targets
  distbuild targets umd -o yaml`,
	ValidArgsFunction: completeTargetNames,
	RunE:              runTargets,
}

func runTargets(cmd *cobra.Command, args []string) error {
	list, err := selectTargets(args)
	if err != nil {
		return err
	}

	if formatter.IsStructured() {
		return formatter.Print(list)
	}

	return formatter.PrintTable(targetsTable(list))
}

// targetsTable renders targets one per row
func targetsTable(list []targets.BuildTarget) output.TableData {
	data := output.TableData{
		Headers: []string{"NAME", "FORMAT", "INPUT", "OUTPUT", "SOURCEMAP", "PLUGINS", "GLOBALS"},
	}
	for _, t := range list {
		sourceMap := "no"
		if t.SourceMapEnabled {
			sourceMap = "yes"
		}
		data.Rows = append(data.Rows, []string{
			t.Name,
			t.Format.String(),
			t.InputPath,
			t.OutputPath,
			sourceMap,
			strings.Join(t.PluginNames(), ","),
			formatGlobals(t),
		})
	}
	return data
}

// formatGlobals renders a UMD target's global name and external mapping
func formatGlobals(t targets.BuildTarget) string {
	if t.GlobalName == "" {
		return "-"
	}

	modules := make([]string, 0, len(t.Globals))
	for module := range t.Globals {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	parts := []string{t.GlobalName}
	for _, module := range modules {
		parts = append(parts, module+"="+t.Globals[module])
	}
	return strings.Join(parts, " ")
}
