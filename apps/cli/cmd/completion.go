package cmd

import "github.com/spf13/cobra"

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for ws.

To load completions:

Bash:
  $ source <(ws completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ ws completion bash > /etc/bash_completion.d/ws
  # macOS:
  $ ws completion bash > $(brew --prefix)/etc/bash_completion.d/ws

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ ws completion zsh > "${fpath[1]}/_ws"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ ws completion fish | source

  # To load completions for each session, execute once:
  $ ws completion fish > ~/.config/fish/completions/ws.fish

PowerShell:
  PS> ws completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> ws completion powershell > ws.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
}
