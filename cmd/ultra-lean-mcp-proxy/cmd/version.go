package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at link time via -ldflags "-X .../cmd.version=...". It
// is left at "dev" for ordinary builds.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "ultra-lean-mcp-proxy %s\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
