// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"
)

// StatsService tracks the proxy's optional end-of-run summary statistics
// (printed on upstream exit when enabled) using
// lock-free atomic counters for the per-request outcomes and saved bytes,
// and a mutex-protected per-tool map of tool-call counts. All operations are safe for concurrent access from
// both read loops.
type StatsService struct {
	cacheHits           atomic.Int64
	cacheMisses         atomic.Int64
	hashSyncConditional atomic.Int64
	hashSyncFull        atomic.Int64
	lazySearches        atomic.Int64
	resultCompressed    atomic.Int64
	resultSkipped       atomic.Int64
	deltaApplied        atomic.Int64
	deltaSnapshot       atomic.Int64
	bytesSaved          atomic.Int64

	mu         sync.Mutex
	perTool    map[string]int64 // tool name -> tool-call count
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{perTool: make(map[string]int64)}
}

// RecordCacheHit increments the response-cache hit counter.
func (s *StatsService) RecordCacheHit() { s.cacheHits.Add(1) }

// RecordCacheMiss increments the response-cache miss counter.
func (s *StatsService) RecordCacheMiss() { s.cacheMisses.Add(1) }

// RecordHashSyncConditional increments the count of tools/list requests
// short-circuited by a matching if_none_match hash.
func (s *StatsService) RecordHashSyncConditional() { s.hashSyncConditional.Add(1) }

// RecordHashSyncFull increments the count of tools/list requests that
// were forwarded and answered with a full tool list.
func (s *StatsService) RecordHashSyncFull() { s.hashSyncFull.Add(1) }

// RecordLazySearch increments the count of search_tools meta-tool calls.
func (s *StatsService) RecordLazySearch() { s.lazySearches.Add(1) }

// RecordResultCompressed increments the count of tools/call results
// accepted by the result-compression engine's savings gate.
func (s *StatsService) RecordResultCompressed() { s.resultCompressed.Add(1) }

// RecordResultSkipped increments the count of tools/call results that
// were eligible but rejected by a pre-gate or the savings gate.
func (s *StatsService) RecordResultSkipped() { s.resultSkipped.Add(1) }

// RecordDeltaApplied increments the count of tools/call results
// delivered as a delta patch rather than a full payload.
func (s *StatsService) RecordDeltaApplied() { s.deltaApplied.Add(1) }

// RecordDeltaSnapshot increments the count of periodic full-snapshot
// responses emitted by the delta engine.
func (s *StatsService) RecordDeltaSnapshot() { s.deltaSnapshot.Add(1) }

// RecordBytesSaved adds n bytes to the cumulative savings counter,
// computed as originalBytes - deliveredBytes for a compressed or
// delta-patched response.
func (s *StatsService) RecordBytesSaved(n int64) {
	if n > 0 {
		s.bytesSaved.Add(n)
	}
}

// RecordToolCall increments the per-tool call counter. Empty tool names
// are skipped.
func (s *StatsService) RecordToolCall(tool string) {
	if tool == "" {
		return
	}
	s.mu.Lock()
	s.perTool[tool]++
	s.mu.Unlock()
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	HashSyncConditional int64            `json:"hash_sync_conditional"`
	HashSyncFull        int64            `json:"hash_sync_full"`
	LazySearches        int64            `json:"lazy_searches"`
	ResultCompressed    int64            `json:"result_compressed"`
	ResultSkipped       int64            `json:"result_skipped"`
	DeltaApplied        int64            `json:"delta_applied"`
	DeltaSnapshot       int64            `json:"delta_snapshot"`
	BytesSaved          int64            `json:"bytes_saved"`
	ToolCalls           map[string]int64 `json:"tool_calls"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	tc := make(map[string]int64, len(s.perTool))
	for k, v := range s.perTool {
		tc[k] = v
	}
	s.mu.Unlock()

	return Stats{
		CacheHits:           s.cacheHits.Load(),
		CacheMisses:         s.cacheMisses.Load(),
		HashSyncConditional: s.hashSyncConditional.Load(),
		HashSyncFull:        s.hashSyncFull.Load(),
		LazySearches:        s.lazySearches.Load(),
		ResultCompressed:    s.resultCompressed.Load(),
		ResultSkipped:       s.resultSkipped.Load(),
		DeltaApplied:        s.deltaApplied.Load(),
		DeltaSnapshot:       s.deltaSnapshot.Load(),
		BytesSaved:          s.bytesSaved.Load(),
		ToolCalls:           tc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.cacheHits.Store(0)
	s.cacheMisses.Store(0)
	s.hashSyncConditional.Store(0)
	s.hashSyncFull.Store(0)
	s.lazySearches.Store(0)
	s.resultCompressed.Store(0)
	s.resultSkipped.Store(0)
	s.deltaApplied.Store(0)
	s.deltaSnapshot.Store(0)
	s.bytesSaved.Store(0)

	s.mu.Lock()
	s.perTool = make(map[string]int64)
	s.mu.Unlock()
}
