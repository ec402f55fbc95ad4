package cli

import (
	"fmt"

	"github.com/sentinelx/host-scanner/pkg/config"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print host scanner version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("host scanner version: %s\n", config.Version)
	},
}
