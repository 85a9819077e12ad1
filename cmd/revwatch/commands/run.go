package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrazakos/revwatch"
	"github.com/mrazakos/revwatch/internal/config"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine and the operational API",
		Long: `Run the sync engine and the operational API

Connects to the configured RPC endpoint, backfills missed revocation
events, subscribes to new ones and serves revocation checks over HTTP
until interrupted.`,

		Example: `  # Run with a config file
  revwatch run -c revwatch.yaml

  # Configuration via environment
  REVWATCH_NETWORK=sepolia REVWATCH_LOCK_ID=42 revwatch run`,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			svc, err := revwatch.New(cfg, revwatch.WithLogger(newLogger()))
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return svc.Run(ctx)
		},
	}

	return cmd
}
