package proxy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/config"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/compress"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/delta"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/hashsync"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/lazy"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/respcache"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/resultcompress"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/pkg/mcp"
)

const capabilityPath = "experimental.ultra_lean_mcp_proxy.tools_hash_sync.version"

// Pipeline implements MessageInterceptor, orchestrating the five
// optimization engines and the tools-hash/lazy/cache state store across
// the methods the proxy understands (initialize, tools/list, tools/call).
// Every other method, and every malformed message, passes through
// untouched.
type Pipeline struct {
	Store    *store.Store
	Resolver *config.Resolver
	Session  *Session
	Pending  *PendingTracker
	Metrics  *RuntimeMetrics

	StatsEnabled bool
	Stats        StatsRecorder
	Logger       *slog.Logger
}

// NewPipeline wires a Pipeline from its dependencies. stats may be nil,
// in which case the end-of-run summary counters are simply not
// collected.
func NewPipeline(st *store.Store, resolver *config.Resolver, session *Session, logger *slog.Logger, statsEnabled bool, stats StatsRecorder) *Pipeline {
	return &Pipeline{
		Store:        st,
		Resolver:     resolver,
		Session:      session,
		Pending:      NewPendingTracker(),
		Metrics:      &RuntimeMetrics{},
		StatsEnabled: statsEnabled,
		Stats:        stats,
		Logger:       logger,
	}
}

// Intercept dispatches msg by direction and method.
func (p *Pipeline) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Decoded == nil {
		return msg, nil
	}

	switch msg.Direction {
	case mcp.ClientToServer:
		if msg.IsRequest() {
			return p.handleClientRequest(msg)
		}
		return msg, nil
	case mcp.ServerToClient:
		if msg.IsResponse() {
			return p.handleUpstreamResponse(msg)
		}
		return msg, nil
	default:
		return msg, nil
	}
}

// --- client -> upstream -------------------------------------------------

func (p *Pipeline) handleClientRequest(msg *mcp.Message) (*mcp.Message, error) {
	req := msg.Request()
	idKey := string(msg.RawID())

	switch req.Method {
	case "initialize":
		params := msg.ParseParams()
		p.Session.HashSyncNegotiated = negotiatesHashSync(params)
		p.Pending.Put(idKey, PendingRequest{Method: req.Method})
		return p.forwardRequest(msg)

	case "tools/list":
		return p.handleToolsListRequest(msg, idKey)

	case "tools/call":
		return p.handleToolsCallRequest(msg, idKey)

	default:
		p.Pending.Put(idKey, PendingRequest{Method: req.Method})
		return p.forwardRequest(msg)
	}
}

func (p *Pipeline) forwardRequest(msg *mcp.Message) (*mcp.Message, error) {
	if p.Metrics != nil {
		p.Metrics.RecordRequest(len(msg.Raw))
	}
	return msg, nil
}

func negotiatesHashSync(params map[string]any) bool {
	if params == nil {
		return false
	}
	caps, ok := params["capabilities"].(map[string]any)
	if !ok {
		return false
	}
	v := digPath(caps, capabilityPath)
	n, ok := v.(float64)
	return ok && n == 1
}

func digPath(obj map[string]any, dotted string) any {
	parts := strings.Split(dotted, ".")
	var cur any = obj
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func (p *Pipeline) handleToolsListRequest(msg *mcp.Message, idKey string) (*mcp.Message, error) {
	global := p.Resolver.Global()
	params := msg.ParseParams()

	pending := PendingRequest{Method: "tools/list"}

	if global.ToolsHashSync.Enabled && p.Session.HashSyncNegotiated {
		ext := GetExtension(params)
		ifNoneMatch, _ := digNested(ext, "tools_hash_sync", "if_none_match").(string)
		hash, valid := hashsync.ParseIfNoneMatch(ifNoneMatch)
		pending.IfNoneMatch = hash
		pending.IfNoneMatchValid = valid

		if valid {
			scopeKey := p.scopeKeyForHashSync()
			scope := p.Store.HashScope(scopeKey)
			decision := hashsync.Evaluate(hash, scope, global.ToolsHashSync.RefreshInterval)
			if decision.ShortCircuit {
				p.Store.IncrConditionalHits(scopeKey)
				if p.Stats != nil {
					p.Stats.RecordHashSyncConditional()
				}
				return p.shortCircuitNotModified(msg, decision.Hash)
			}
		}
	}

	p.Pending.Put(idKey, pending)
	return p.forwardRequest(msg)
}

func digNested(obj map[string]any, keys ...string) any {
	var cur any = obj
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func (p *Pipeline) scopeKeyForHashSync() string {
	profileFingerprint := ProfileFingerprint(p.Session.ServerName, p.Resolver.Profile().Match.CommandContains)
	return hashsync.ScopeKey(p.Session.ID, p.Session.ServerName, profileFingerprint)
}

func (p *Pipeline) shortCircuitNotModified(msg *mcp.Message, hash string) (*mcp.Message, error) {
	result := map[string]any{"tools": []any{}}
	ext := map[string]any{"not_modified": true, "tools_hash": hash}
	SetExtension(result, mergeInto(nil, "tools_hash_sync", ext))
	p.attachRuntimeMetrics(result)

	raw, err := CreateJSONRPCResult(msg.RawID(), result)
	if err != nil {
		return msg, nil
	}
	return p.synthesizeResponse(raw)
}

func (p *Pipeline) synthesizeResponse(raw []byte) (*mcp.Message, error) {
	decoded, _ := mcp.DecodeMessage(raw)
	return &mcp.Message{
		Raw:       raw,
		Direction: mcp.ServerToClient,
		Decoded:   decoded,
		Timestamp: time.Now(),
		SessionID: p.Session.ID,
	}, nil
}

func (p *Pipeline) handleToolsCallRequest(msg *mcp.Message, idKey string) (*mcp.Message, error) {
	params := msg.ParseParams()
	toolName, _ := params["name"].(string)

	if toolName == lazy.MetaToolName {
		return p.handleMetaToolCall(msg, params)
	}

	eff := p.Resolver.EffectiveForTool(toolName)
	args, _ := params["arguments"].(map[string]any)

	pending := PendingRequest{Method: "tools/call", ToolName: toolName, Args: args}

	if p.Stats != nil {
		p.Stats.RecordToolCall(toolName)
	}

	verbs := buildVerbSet(eff.Caching)
	cacheable := eff.Caching.Enabled && respcache.Eligible(eff.Caching.Enabled, true, eff.Caching.CacheMutatingTools, verbs, toolName, false)
	if cacheable {
		key, err := respcache.Key(p.Session.ID, p.Session.ServerName, toolName, args)
		if err == nil {
			pending.CacheKey = key
			pending.Cacheable = true
			if cached, hit := p.Store.CacheGet(key, time.Now()); hit {
				if p.Stats != nil {
					p.Stats.RecordCacheHit()
				}
				return p.deliverCacheHit(msg, key, cached, eff)
			}
			if p.Stats != nil {
				p.Stats.RecordCacheMiss()
			}
		}
	}

	p.Pending.Put(idKey, pending)
	return p.forwardRequest(msg)
}

func buildVerbSet(c config.CachingConfig) respcache.VerbSet {
	base := respcache.DefaultVerbSet()
	if len(c.MutatingVerbs) > 0 {
		base = respcache.Override(c.MutatingVerbs)
	}
	if len(c.ExtraMutatingVerbs) > 0 {
		base = base.WithExtra(c.ExtraMutatingVerbs)
	}
	return base
}

func (p *Pipeline) deliverCacheHit(msg *mcp.Message, key string, cached jsonvalue.Value, eff config.OptimizationsConfig) (*mcp.Message, error) {
	result, _ := cached.(map[string]any)
	if result == nil {
		result = map[string]any{}
	}

	previous, hasPrev := p.Store.HistoryGet(key)
	p.Store.HistoryPut(key, result, time.Now())
	if hasPrev && eff.DeltaResponses.Enabled {
		gates := delta.Gates{
			MaxPatchBytes:   eff.DeltaResponses.MaxPatchBytes,
			MinSavingsRatio: eff.DeltaResponses.MinSavingsRatio,
			MaxPatchRatio:   eff.DeltaResponses.MaxPatchRatio,
		}
		env, ok, err := delta.Create(previous, result, gates)
		if err == nil && ok {
			result["structuredContent"] = map[string]any{"delta": envelopeToMap(env)}
		}
	}
	p.attachRuntimeMetrics(result)

	raw, err := CreateJSONRPCResult(msg.RawID(), result)
	if err != nil {
		return msg, nil
	}
	return p.synthesizeResponse(raw)
}

func envelopeToMap(env delta.Envelope) map[string]any {
	out := map[string]any{"encoding": env.Encoding}
	if env.Unchanged {
		out["unchanged"] = true
	}
	if env.CurrentHash != "" {
		out["currentHash"] = env.CurrentHash
	}
	if len(env.Ops) > 0 {
		ops := make([]any, len(env.Ops))
		for i, op := range env.Ops {
			ops[i] = map[string]any{"path": op.Path, "op": op.Op, "value": op.Value}
		}
		out["ops"] = ops
	}
	return out
}

func (p *Pipeline) handleMetaToolCall(msg *mcp.Message, params map[string]any) (*mcp.Message, error) {
	if p.Stats != nil {
		p.Stats.RecordLazySearch()
	}
	args, _ := params["arguments"].(map[string]any)
	query, _ := args["query"].(string)

	global := p.Resolver.Global()
	catalog := p.Store.Catalog()

	result := lazy.BuildSearchResult(query, catalog, global.LazyLoading.SearchTopK,
		global.LazyLoading.MinConfidenceScore, global.LazyLoading.FallbackFullOnLowConfidence)

	content := map[string]any{
		"content":          []any{map[string]any{"type": "text", "text": "search results attached"}},
		"structuredContent": lazy.ToResultValue(result),
	}
	p.attachRuntimeMetrics(content)

	raw, err := CreateJSONRPCResult(msg.RawID(), content)
	if err != nil {
		return msg, nil
	}
	return p.synthesizeResponse(raw)
}

// --- upstream -> client --------------------------------------------------

func (p *Pipeline) handleUpstreamResponse(msg *mcp.Message) (*mcp.Message, error) {
	if p.Metrics != nil {
		tokens := jsonvalue.EstimateTokens(string(msg.Raw))
		p.Metrics.RecordResponse(len(msg.Raw), tokens)
	}

	resp := msg.Response()
	idKey := string(msg.RawID())
	pending, ok := p.Pending.Take(idKey)
	if !ok {
		return msg, nil
	}

	if resp.Error != nil {
		return msg, nil
	}

	switch pending.Method {
	case "initialize":
		return p.handleInitializeResponse(msg)
	case "tools/list":
		return p.handleToolsListResponse(msg, pending)
	case "tools/call":
		return p.handleToolsCallResponse(msg, pending)
	default:
		return msg, nil
	}
}

func (p *Pipeline) handleInitializeResponse(msg *mcp.Message) (*mcp.Message, error) {
	if !p.Session.HashSyncNegotiated {
		return msg, nil
	}
	result := decodeResult(msg)
	if result == nil {
		return msg, nil
	}
	caps, _ := result["capabilities"].(map[string]any)
	if caps == nil {
		caps = map[string]any{}
	}
	experimental, _ := caps["experimental"].(map[string]any)
	if experimental == nil {
		experimental = map[string]any{}
	}
	experimental["ultra_lean_mcp_proxy"] = map[string]any{"tools_hash_sync": map[string]any{"version": 1}}
	caps["experimental"] = experimental
	result["capabilities"] = caps

	return p.rebuildResponse(msg, result)
}

func (p *Pipeline) handleToolsListResponse(msg *mcp.Message, pending PendingRequest) (*mcp.Message, error) {
	result := decodeResult(msg)
	if result == nil {
		return msg, nil
	}

	rawTools, _ := result["tools"].([]any)
	tools := make([]store.Tool, 0, len(rawTools))
	for _, rt := range rawTools {
		m, ok := rt.(map[string]any)
		if !ok {
			continue
		}
		tools = append(tools, toolFromMap(m))
	}

	global := p.Resolver.Global()

	if global.DefinitionCompression.Enabled {
		for i := range tools {
			if tools[i].InputSchema != nil {
				compress.ValidateSchemaShape(tools[i].Name, tools[i].InputSchema, p.Logger)
			}
			tools[i] = compress.CompressTool(tools[i])
		}
	}
	p.Store.SetCatalog(tools)

	visible := tools
	if global.LazyLoading.Enabled {
		tokenCount := jsonvalue.EstimateValueTokens(toolsToAny(tools))
		mode := lazy.Mode(global.LazyLoading.Mode)
		if lazy.ShouldActivate(mode, len(tools), tokenCount, global.LazyLoading.MinTools, global.LazyLoading.MinTokens) {
			visible = lazy.VisibleTools(mode, tools)
		}
	}

	result["tools"] = toolsToAny(visible)

	if global.ToolsHashSync.Enabled && p.Session.HashSyncNegotiated {
		fingerprint := ""
		if global.ToolsHashSync.BindServerFingerprint {
			fingerprint = hashsync.ServerFingerprint(p.Session.ID, p.Session.UpstreamCommand)
		}
		hash, err := hashsync.Hash(visible, fingerprint)
		if err == nil {
			scopeKey := p.scopeKeyForHashSync()
			p.Store.SetHashScope(scopeKey, hash, time.Now())

			if pending.IfNoneMatchValid && pending.IfNoneMatch == hash {
				// A matching conditional that reached the upstream (the
				// periodic refresh bypass, or a hash learned before this
				// scope had one stored) still advances the conditional
				// counter, so the next bypass is another refresh_interval
				// away rather than firing on every subsequent request.
				p.Store.IncrConditionalHits(scopeKey)
				result["tools"] = []any{}
				SetExtension(result, mergeInto(nil, "tools_hash_sync",
					map[string]any{"not_modified": true, "tools_hash": hash}))
				if p.Stats != nil {
					p.Stats.RecordHashSyncConditional()
				}
			} else {
				SetExtension(result, mergeInto(nil, "tools_hash_sync",
					map[string]any{"not_modified": false, "tools_hash": hash}))
				if p.Stats != nil {
					p.Stats.RecordHashSyncFull()
				}
			}
		}
	}

	return p.rebuildResponse(msg, result)
}

func toolFromMap(m map[string]any) store.Tool {
	name, _ := m["name"].(string)
	desc, _ := m["description"].(string)
	schema, _ := m["inputSchema"].(map[string]any)
	return store.Tool{Name: name, Description: desc, InputSchema: schema}
}

// toolsToAny mirrors hashsync's tool serialization exactly: the hash
// preimage must be computed over the same array the client receives.
func toolsToAny(tools []store.Tool) []any {
	out := make([]any, len(tools))
	for i, t := range tools {
		m := map[string]any{"name": t.Name}
		if t.Description != "" {
			m["description"] = t.Description
		}
		if t.InputSchema != nil {
			m["inputSchema"] = t.InputSchema
		}
		out[i] = m
	}
	return out
}

func (p *Pipeline) handleToolsCallResponse(msg *mcp.Message, pending PendingRequest) (*mcp.Message, error) {
	result := decodeResult(msg)
	if result == nil {
		return msg, nil
	}

	eff := p.Resolver.EffectiveForTool(pending.ToolName)
	rawResult := jsonvalue.Clone(result)

	if eff.ResultCompression.Enabled {
		rcKey := store.HealthKey{Feature: "result_compression", Tool: pending.ToolName}
		if p.Store.InCooldown(rcKey) {
			p.Store.TickCooldown(rcKey)
		} else {
			p.applyResultCompression(result, pending.ToolName, eff)
		}
	}

	verbs := buildVerbSet(eff.Caching)
	if verbs.IsMutating(pending.ToolName) {
		p.Store.InvalidateScope(p.Session.ScopeKey() + ":")
	}

	if pending.Cacheable && pending.CacheKey != "" {
		p.storeCacheEntry(pending.CacheKey, rawResult, result, eff)
	}

	historyKey := pending.CacheKey
	if historyKey == "" {
		historyKey = p.Session.ScopeKey() + ":" + pending.ToolName + ":" + hashArgs(pending.Args)
	}
	deltaKey := store.HealthKey{Feature: "delta", Tool: pending.ToolName}
	if eff.DeltaResponses.Enabled && !p.Store.InCooldown(deltaKey) {
		p.applyDelta(result, historyKey, pending.ToolName, eff)
	} else {
		if eff.DeltaResponses.Enabled {
			p.Store.TickCooldown(deltaKey)
		}
		p.Store.HistoryPut(historyKey, result, time.Now())
	}

	p.attachRuntimeMetrics(result)
	return p.rebuildResponse(msg, result)
}

func hashArgs(args jsonvalue.Value) string {
	canon, err := jsonvalue.CanonicalJSON(args)
	if err != nil {
		return ""
	}
	return resultcompress.KeyDigest(map[string]string{"_": string(canon)})
}

