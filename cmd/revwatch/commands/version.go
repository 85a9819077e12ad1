package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrazakos/revwatch"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("revwatch %s (%s, %s/%s)\n",
				revwatch.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
