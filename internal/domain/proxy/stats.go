package proxy

// StatsRecorder receives the proxy's optional end-of-run summary
// counters, emitted when the upstream exits. Implemented by
// service.StatsService; Pipeline treats a nil recorder as "stats
// disabled" so the hot path pays nothing when --stats was not passed.
type StatsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordHashSyncConditional()
	RecordHashSyncFull()
	RecordLazySearch()
	RecordResultCompressed()
	RecordResultSkipped()
	RecordDeltaApplied()
	RecordDeltaSnapshot()
	RecordBytesSaved(n int64)
	RecordToolCall(tool string)
}
