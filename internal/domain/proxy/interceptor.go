// Package proxy contains the core domain logic for the MCP proxy: the
// message interceptor contract, the optimization pipeline that
// implements it, and the session/pending-request/extension plumbing
// shared across the three intercepted methods (initialize, tools/list,
// tools/call).
package proxy

import (
	"context"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/pkg/mcp"
)

// MessageInterceptor inspects and optionally rewrites a message flowing
// through the proxy in either direction. Returning the message unchanged
// is always a valid implementation; Pipeline is the production
// implementation and is the only one that ever rewrites a message.
type MessageInterceptor interface {
	// Intercept inspects msg and returns the message to actually send
	// (which may be msg itself, a rewritten copy, or a locally
	// synthesized response with Direction flipped to answer the caller
	// without reaching the upstream). A non-nil error aborts delivery
	// entirely; for a client->server message the client is sent a
	// JSON-RPC error, while a rejected server->client message is dropped.
	Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error)
}

// PassthroughInterceptor forwards every message unchanged. It exists as
// a minimal MessageInterceptor for tests and for a configuration with
// every optimization disabled, where Pipeline would otherwise do no
// rewriting at all.
type PassthroughInterceptor struct{}

// NewPassthroughInterceptor creates a passthrough interceptor.
func NewPassthroughInterceptor() *PassthroughInterceptor {
	return &PassthroughInterceptor{}
}

// Intercept returns the message unchanged.
func (i *PassthroughInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	return msg, nil
}

var _ MessageInterceptor = (*PassthroughInterceptor)(nil)
var _ MessageInterceptor = (*Pipeline)(nil)
