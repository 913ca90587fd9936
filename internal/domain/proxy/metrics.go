package proxy

import "sync/atomic"

// RuntimeMetrics accumulates upstream-facing traffic counters for the
// optional "_ultra_lean_mcp_proxy.runtime_metrics" extension field. All
// fields are updated with atomics so either read loop can record without
// taking the store's mutex.
type RuntimeMetrics struct {
	upstreamRequests  atomic.Int64
	upstreamResponses atomic.Int64
	bytesToUpstream   atomic.Int64
	bytesFromUpstream atomic.Int64
	estimatedTokens   atomic.Int64
}

// RecordRequest records a request forwarded to the upstream.
func (m *RuntimeMetrics) RecordRequest(bytes int) {
	m.upstreamRequests.Add(1)
	m.bytesToUpstream.Add(int64(bytes))
}

// RecordResponse records a response received from the upstream,
// including its estimated token count.
func (m *RuntimeMetrics) RecordResponse(bytes, tokens int) {
	m.upstreamResponses.Add(1)
	m.bytesFromUpstream.Add(int64(bytes))
	m.estimatedTokens.Add(int64(tokens))
}

// Snapshot is the JSON shape attached under runtime_metrics.
type Snapshot struct {
	UpstreamRequests  int64 `json:"upstream_requests"`
	UpstreamResponses int64 `json:"upstream_responses"`
	BytesToUpstream   int64 `json:"bytes_to_upstream"`
	BytesFromUpstream int64 `json:"bytes_from_upstream"`
	EstimatedTokens   int64 `json:"estimated_tokens"`
}

// Snapshot returns a point-in-time read of all counters.
func (m *RuntimeMetrics) Snapshot() Snapshot {
	return Snapshot{
		UpstreamRequests:  m.upstreamRequests.Load(),
		UpstreamResponses: m.upstreamResponses.Load(),
		BytesToUpstream:   m.bytesToUpstream.Load(),
		BytesFromUpstream: m.bytesFromUpstream.Load(),
		EstimatedTokens:   m.estimatedTokens.Load(),
	}
}
