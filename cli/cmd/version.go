package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of distbuild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatter.IsStructured() {
			return formatter.Print(map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_date": BuildDate,
			})
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "distbuild %s\n", Version)
		_, _ = fmt.Fprintf(w, "Commit: %s\n", Commit)
		_, _ = fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
		return nil
	},
}
