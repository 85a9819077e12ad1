package commands

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mrazakos/revwatch/internal/engine"
)

func NewStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running revwatch instance",

		Example: `  # Query the default address
  revwatch status

  # Query a remote instance
  revwatch status --addr http://10.0.0.5:8080`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "base URL of the running instance")

	return cmd
}

func showStatus(addr string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var health engine.Health
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Status:            %s\n", health.Status)
	fmt.Printf("State:             %s\n", health.State)
	fmt.Printf("Current height:    %d\n", health.CurrentHeight)
	fmt.Printf("Last scanned:      %d (lag %d)\n", health.LastScannedBlock, health.Lag)
	fmt.Printf("Subscription live: %v\n", health.SubscriptionLive)
	fmt.Printf("Scan active:       %v\n", health.ScanActive)
	fmt.Printf("Applied:           %d via push, %d via scan\n", health.PushApplied, health.ScanApplied)
	fmt.Printf("Duplicates:        %d\n", health.Duplicates)
	fmt.Printf("Apply failures:    %d\n", health.ApplyFailures)
	if !health.LastScanAt.IsZero() {
		fmt.Printf("Last scan:         %s ago\n", time.Since(health.LastScanAt).Round(time.Second))
	}
	if !health.LastPushAt.IsZero() {
		fmt.Printf("Last push:         %s ago\n", time.Since(health.LastPushAt).Round(time.Second))
	}
	if health.Error != "" {
		fmt.Printf("Error:             %s\n", health.Error)
	}

	return nil
}
