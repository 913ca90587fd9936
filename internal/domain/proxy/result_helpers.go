package proxy

import (
	"encoding/json"
	"time"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/config"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/delta"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/respcache"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/resultcompress"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/pkg/mcp"
)

// decodeResult unmarshals an upstream response's result object into a
// plain map, returning nil when the response carries no object result
// (an error response, a scalar result, or an undecodable body).
func decodeResult(msg *mcp.Message) map[string]any {
	resp := msg.Response()
	if resp == nil || resp.Result == nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil
	}
	return result
}

// rebuildResponse re-serializes result as the JSON-RPC success body for
// msg's request id, preserving msg's raw bytes unchanged on any marshal
// failure so the proxy stays fail-open.
func (p *Pipeline) rebuildResponse(msg *mcp.Message, result map[string]any) (*mcp.Message, error) {
	raw, err := CreateJSONRPCResult(msg.RawID(), result)
	if err != nil {
		return msg, nil
	}
	decoded, _ := mcp.DecodeMessage(raw)
	return &mcp.Message{
		Raw:       raw,
		Direction: msg.Direction,
		Decoded:   decoded,
		Timestamp: msg.Timestamp,
		SessionID: msg.SessionID,
	}, nil
}

// attachRuntimeMetrics merges the proxy's cumulative byte/token counters
// into result's extension field, when stats reporting is enabled.
func (p *Pipeline) attachRuntimeMetrics(result map[string]any) {
	if !p.StatsEnabled || p.Metrics == nil {
		return
	}
	snap := p.Metrics.Snapshot()
	ext := map[string]any{
		"upstream_requests":   snap.UpstreamRequests,
		"upstream_responses":  snap.UpstreamResponses,
		"bytes_to_upstream":   snap.BytesToUpstream,
		"bytes_from_upstream": snap.BytesFromUpstream,
		"estimated_tokens":    snap.EstimatedTokens,
	}
	SetExtension(result, mergeInto(GetExtension(result), "runtime_metrics", ext))
}

// storeCacheEntry writes a tools/call result into the response cache,
// computing the adaptive TTL against the previous raw (pre-compression)
// result kept under the same key.
func (p *Pipeline) storeCacheEntry(key string, rawResult jsonvalue.Value, compressedResult map[string]any, eff config.OptimizationsConfig) {
	now := time.Now()
	previous, hasPrev := p.Store.RawHistoryGet(key)

	base := time.Duration(eff.Caching.TTLSeconds) * time.Second
	ttlMin := time.Duration(eff.Caching.TTLMinSeconds) * time.Second
	ttlMax := time.Duration(eff.Caching.TTLMaxSeconds) * time.Second
	decision := respcache.AdaptiveTTL(base, ttlMin, ttlMax, previous, hasPrev, rawResult)

	p.Store.CachePut(key, compressedResult, decision.TTL, now)
	p.Store.RawHistoryPut(key, rawResult, now)
}

// applyDelta replaces result's body with a lapc-delta-v1 envelope against
// the value last seen under historyKey, when the gates in eff accept the
// patch; otherwise it falls through to a full snapshot. History always
// records the full payload, never the envelope, so the next diff runs
// against real data. The snapshot counter advances only on successful
// deltas and a rejected delta resets it (the client just got a full
// payload, so the patch chain restarts).
func (p *Pipeline) applyDelta(result map[string]any, historyKey, toolName string, eff config.OptimizationsConfig) {
	now := time.Now()
	healthKey := store.HealthKey{Feature: "delta", Tool: toolName}
	previous, hasPrev := p.Store.HistoryGet(historyKey)

	if hasPrev {
		gates := delta.Gates{
			MaxPatchBytes:   eff.DeltaResponses.MaxPatchBytes,
			MinSavingsRatio: eff.DeltaResponses.MinSavingsRatio,
			MaxPatchRatio:   eff.DeltaResponses.MaxPatchRatio,
		}
		env, ok, err := delta.Create(previous, jsonvalue.Value(result), gates)
		switch {
		case err != nil:
			p.Store.RecordOutcome(healthKey, "hurt", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
			p.Store.ResetDeltaCounter(historyKey)
		case ok:
			if !p.Store.BumpDeltaCounter(historyKey, eff.DeltaResponses.SnapshotInterval) {
				p.Store.HistoryPut(historyKey, result, now)
				for k := range result {
					delete(result, k)
				}
				result["structuredContent"] = map[string]any{"delta": envelopeToMap(env)}
				p.Store.RecordOutcome(healthKey, "success", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
				if p.Stats != nil {
					p.Stats.RecordDeltaApplied()
				}
				return
			}
			if p.Stats != nil {
				p.Stats.RecordDeltaSnapshot()
			}
		default:
			p.Store.RecordOutcome(healthKey, "neutral", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
			p.Store.ResetDeltaCounter(historyKey)
		}
	}

	p.Store.HistoryPut(historyKey, result, now)
}

// applyResultCompression pre-gates on payload size and compressibility,
// alias+columnar compresses, accept-gates on estimated token savings,
// reuses the shared key dictionary, and records auto-disable health.
// Fail-open: any rejection leaves result untouched.
func (p *Pipeline) applyResultCompression(result map[string]any, toolName string, eff config.OptimizationsConfig) {
	healthKey := store.HealthKey{Feature: "result_compression", Tool: toolName}
	target := compressionTarget(result)
	if target == nil {
		return
	}

	opts := resultcompress.Options{
		Mode:                 resultcompress.Mode(eff.ResultCompression.Mode),
		MinPayloadBytes:      eff.ResultCompression.MinPayloadBytes,
		MinCompressibility:   eff.ResultCompression.MinCompressibility,
		ColumnarMinRows:      eff.ResultCompression.ColumnarMinRows,
		ColumnarMinFields:    eff.ResultCompression.ColumnarMinFields,
		MinTokenSavingsAbs:   eff.ResultCompression.MinTokenSavingsAbs,
		MinTokenSavingsRatio: eff.ResultCompression.MinTokenSavingsRatio,
		StripEmpty:           eff.ResultCompression.StripEmpty,
	}

	if ok, _ := resultcompress.PreGate(target, opts); !ok {
		p.Store.RecordOutcome(healthKey, "neutral", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
		if p.Stats != nil {
			p.Stats.RecordResultSkipped()
		}
		return
	}

	env, ok := resultcompress.Compress(target, opts)
	if !ok {
		p.Store.RecordOutcome(healthKey, "neutral", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
		if p.Stats != nil {
			p.Stats.RecordResultSkipped()
		}
		return
	}

	if eff.ResultCompression.SharedKeyDictionary && len(env.Keys) > 0 {
		digest := resultcompress.KeyDigest(env.Keys)
		if _, existed := p.Store.KeyTableFor(digest); existed {
			rebootstrap := p.Store.BumpKeyTableHits(digest, eff.ResultCompression.KeyBootstrapInterval)
			if !rebootstrap {
				env.Keys = nil
			}
			env.KeysRef = digest
		} else {
			p.Store.RememberKeyTable(digest, env.Keys)
			env.KeysRef = digest
		}
	}

	result["structuredContent"] = map[string]any{"compressed": envelopeCompressToMap(env)}
	dropRedundantContentText(result, target)
	p.Store.RecordOutcome(healthKey, "success", eff.AutoDisable.Threshold, eff.AutoDisable.CooldownRequests)
	if p.Stats != nil {
		p.Stats.RecordResultCompressed()
		p.Stats.RecordBytesSaved(int64(env.SavedBytes))
	}
}

// compressionTarget returns the value result compression should act on:
// structuredContent when present, otherwise the first text content item
// parsed as JSON.
func compressionTarget(result map[string]any) jsonvalue.Value {
	if sc, ok := result["structuredContent"]; ok {
		return sc
	}
	items, ok := result["content"].([]any)
	if !ok {
		return nil
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if m["type"] != "text" {
			continue
		}
		text, ok := m["text"].(string)
		if !ok || text == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil
		}
		return parsed
	}
	return nil
}

// dropRedundantContentText removes text content items whose JSON parse
// equals original — the pre-compression payload now carried in
// structuredContent — once compression has succeeded. Text items that
// hold anything else (logs, human-readable summaries, unrelated JSON)
// are kept: a client reading content[] instead of structuredContent
// must not lose data.
func dropRedundantContentText(result map[string]any, original jsonvalue.Value) {
	items, ok := result["content"].([]any)
	if !ok {
		return
	}
	kept := make([]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok && m["type"] == "text" {
			if text, ok := m["text"].(string); ok {
				var parsed any
				if err := json.Unmarshal([]byte(text), &parsed); err == nil && jsonvalue.Equal(parsed, original) {
					continue
				}
			}
		}
		kept = append(kept, item)
	}
	if len(kept) == len(items) {
		return
	}
	if len(kept) == 0 {
		kept = []any{map[string]any{"type": "text", "text": "(compressed; see structuredContent.compressed)"}}
	}
	result["content"] = kept
}

func envelopeCompressToMap(env resultcompress.Envelope) map[string]any {
	out := map[string]any{
		"encoding":        env.Encoding,
		"compressed":      env.Compressed,
		"originalBytes":   env.OriginalBytes,
		"compressedBytes": env.CompressedBytes,
		"savedBytes":      env.SavedBytes,
		"savedRatio":      env.SavedRatio,
		"data":            env.Data,
	}
	if env.Mode != "" {
		out["mode"] = env.Mode
	}
	if len(env.Keys) > 0 {
		out["keys"] = env.Keys
	}
	if env.KeysRef != "" {
		out["keysRef"] = env.KeysRef
	}
	return out
}
