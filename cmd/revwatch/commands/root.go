package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the CLI
func Execute() error {
	root := &cobra.Command{
		Use:           "revwatch",
		Short:         "Local cache of on-chain signature revocations",
		Long:          "revwatch mirrors signature-revocation events for one lock\ninto a local database and serves revocation checks over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		NewRunCommand(),
		NewStatusCommand(),
		NewCheckCommand(),
		NewResyncCommand(),
		NewVersionCommand(),
	)

	return root.Execute()
}
