package commands

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func NewResyncCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Trigger a full resync on a running instance",
		Long: `Trigger a full resync on a running instance

Rewinds the checkpoint to the configured start block and re-scans the
whole history. Recovery action; normal operation never needs it.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Minute}

			resp, err := client.Post(addr+"/resync", "application/json", nil)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", addr, err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("resync failed: %s", string(body))
			}

			fmt.Println("resync completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "base URL of the running instance")

	return cmd
}
