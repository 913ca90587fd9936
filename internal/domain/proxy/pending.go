package proxy

import (
	"sync"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

// PendingRequest records what a client->upstream request was, so the
// matching upstream->client response can be post-processed correctly.
type PendingRequest struct {
	Method string

	// tools/list fields.
	IfNoneMatch      string
	IfNoneMatchValid bool

	// tools/call fields.
	ToolName  string
	Args      jsonvalue.Value
	CacheKey  string
	Cacheable bool
}

// PendingTracker maps in-flight request ids to their PendingRequest,
// keyed by the request id's JSON text form (stable across ID's internal
// representation, whether numeric or string).
type PendingTracker struct {
	mu      sync.Mutex
	pending map[string]PendingRequest
}

// NewPendingTracker returns an empty tracker.
func NewPendingTracker() *PendingTracker {
	return &PendingTracker{pending: make(map[string]PendingRequest)}
}

// Put records a pending request under idKey.
func (t *PendingTracker) Put(idKey string, req PendingRequest) {
	t.mu.Lock()
	t.pending[idKey] = req
	t.mu.Unlock()
}

// Take removes and returns the pending request for idKey, if any.
func (t *PendingTracker) Take(idKey string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.pending[idKey]
	if ok {
		delete(t.pending, idKey)
	}
	return req, ok
}
