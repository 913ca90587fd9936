// Package cmd provides the CLI commands for ultra-lean-mcp-proxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ultra-lean-mcp-proxy",
	Short: "ultra-lean-mcp-proxy - transparent token-saving MCP proxy",
	Long: `ultra-lean-mcp-proxy sits between an MCP client and an upstream MCP
server launched as a subprocess, reducing the bytes and language-model
tokens exchanged on tools/list and tools/call while remaining
behaviorally transparent to any client that does not negotiate the
extension.

Quick start:
  ultra-lean-mcp-proxy run -- npx @modelcontextprotocol/server-filesystem /tmp

Configuration:
  Config is loaded from ultra-lean-mcp-proxy.yaml in the current
  directory, $HOME/.ultra-lean-mcp-proxy/, or /etc/ultra-lean-mcp-proxy/.

  Environment variables override config values with the
  ULTRA_LEAN_MCP_PROXY_ prefix, e.g. ULTRA_LEAN_MCP_PROXY_PROXY_LOG_LEVEL=debug.

Commands:
  run         Run the proxy in front of an upstream MCP server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ultra-lean-mcp-proxy.yaml)")
}
