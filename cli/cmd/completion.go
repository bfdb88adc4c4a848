package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate a shell completion script for distbuild.

Besides commands and flags, the scripts complete target names for
"build", "clean" and "targets" (esm, dts, cjs, umd).

  bash:        source <(distbuild completion bash)
  zsh:         distbuild completion zsh > "${fpath[1]}/_distbuild"
  fish:        distbuild completion fish | source
  powershell:  distbuild completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func runCompletion(cmd *cobra.Command, args []string) error {
	root, w := cmd.Root(), cmd.OutOrStdout()

	var err error
	switch args[0] {
	case "bash":
		err = root.GenBashCompletionV2(w, true)
	case "zsh":
		err = root.GenZshCompletion(w)
	case "fish":
		err = root.GenFishCompletion(w, true)
	case "powershell":
		err = root.GenPowerShellCompletionWithDesc(w)
	}
	if err != nil {
		return fmt.Errorf("failed to generate %s completion: %w", args[0], err)
	}
	return nil
}
