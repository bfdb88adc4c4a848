package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoarrow/distbuild/cli/output"
	"github.com/geoarrow/distbuild/internal/pkgjson"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the targets and package.json entry points",
	Long: `Validate the build targets and compare the package.json entry fields
(module, main, types, unpkg, jsdelivr, exports) with the target outputs.

Mismatched or missing required fields are errors. Missing CDN fields are
warnings.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	list, err := selectTargets(nil)
	if err != nil {
		return err
	}

	path := cfg.PackageJSONPath()
	if path == "" {
		formatter.PrintSuccess(fmt.Sprintf("%d targets are valid (package.json check disabled)", len(list)))
		return nil
	}

	manifest, err := pkgjson.Load(path)
	if err != nil {
		return err
	}

	findings := pkgjson.Check(manifest, list)
	if len(findings) > 0 || formatter.IsStructured() {
		data := output.TableData{Headers: []string{"SEVERITY", "FIELD", "GOT", "WANT"}}
		for _, f := range findings {
			got := f.Got
			if got == "" {
				got = "-"
			}
			data.Rows = append(data.Rows, []string{string(f.Severity), f.Field, got, f.Want})
		}
		if err := formatter.PrintTable(data); err != nil {
			return err
		}
	}

	if pkgjson.HasErrors(findings) {
		return fmt.Errorf("%s does not match the build targets", path)
	}

	formatter.PrintSuccess(fmt.Sprintf("%s %s matches %d targets", manifest.Name, manifest.Version, len(list)))
	return nil
}
