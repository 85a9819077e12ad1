package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrazakos/revwatch/internal/config"
	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/verify"
)

func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <signature-hash>",
		Short: "Check whether a signature hash is revoked",
		Long: `Check whether a signature hash is revoked

Reads the local database directly, so it works against the database of a
running instance (WAL mode) or offline.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := verify.New(db.Revocations(), db.AuditLog(), nil, newLogger())

			fact, err := svc.Lookup(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("not revoked: %s\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("REVOKED: %s\n", fact.ID)
			fmt.Printf("  lock:     %d\n", fact.LockID)
			fmt.Printf("  by:       %s\n", fact.RevokedBy)
			fmt.Printf("  block:    %d (tx %s)\n", fact.BlockNumber, fact.TxRef)
			fmt.Printf("  observed: %s\n", fact.ObservedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	return cmd
}
