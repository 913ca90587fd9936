// Command ultra-lean-mcp-proxy is a transparent line-delimited JSON-RPC
// proxy that sits between an MCP client and an upstream MCP server
// subprocess, reducing the bytes and tokens exchanged on tools/list and
// tools/call.
package main

import "github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/cmd/ultra-lean-mcp-proxy/cmd"

func main() {
	cmd.Execute()
}
