package config

import "strings"

// Resolver picks the active server profile for a given upstream command
// and exposes the effective, per-tool-merged optimization settings:
// defaults <- config file <- environment <- CLI, then server-profile
// match, then per-tool override.
type Resolver struct {
	cfg     *ProxyConfig
	profile ServerProfile
}

// NewResolver layers the default server profile's optimizations onto
// the globals, then selects the first named profile whose
// match.command_contains is a substring of the joined upstream command
// line and deep-merges it on top. Profile iteration order follows Go's
// native map order, which is intentionally undefined; callers that need
// a specific precedence among multiple matching profiles should give
// the joined command only one true match.
func NewResolver(cfg *ProxyConfig, upstreamCommand string) *Resolver {
	base := cfg.Servers.Default
	baseOpts := cfg.Optimizations
	if base.Optimizations != nil {
		baseOpts = deepMergeOptimizations(cfg.Optimizations, *base.Optimizations)
	}
	base.Optimizations = &baseOpts

	r := &Resolver{cfg: cfg, profile: base}
	for _, profile := range cfg.Servers.Profiles {
		if profile.Match.CommandContains != "" && strings.Contains(upstreamCommand, profile.Match.CommandContains) {
			r.profile = mergeProfile(base, profile)
			break
		}
	}
	return r
}

// mergeProfile deep-merges a named profile onto the already-resolved
// base: the named profile's optimizations override field-by-field, its
// tool overrides are unioned with (and win over) the base's, and its
// match selector is kept so the active profile remains identifiable.
func mergeProfile(base, override ServerProfile) ServerProfile {
	merged := base
	merged.Match = override.Match
	if override.Optimizations != nil {
		mergedOpts := deepMergeOptimizations(*base.Optimizations, *override.Optimizations)
		merged.Optimizations = &mergedOpts
	}
	merged.Tools = mergeToolOverrides(base.Tools, override.Tools)
	return merged
}

func mergeToolOverrides(base, override map[string]ToolOverride) map[string]ToolOverride {
	merged := make(map[string]ToolOverride, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// deepMergeOptimizations recurses field-by-field: each non-zero string
// or numeric field of the override replaces the base's value, and a
// zero-valued one leaves the base's value in place. Boolean toggles are
// not taken from the override: result_compression and lazy_loading
// derive Enabled from a non-empty mode, definition_compression is
// replaced only when the override section is non-zero, and every other
// bool (caching.enabled, delta_responses.enabled, tools_hash_sync.enabled,
// auto_disable.enabled, strip_empty, shared_key_dictionary,
// fallback_full_on_low_confidence, bind_server_fingerprint,
// cache_mutating_tools) keeps the base's value.
func deepMergeOptimizations(base, override OptimizationsConfig) OptimizationsConfig {
	merged := base

	if override.DefinitionCompression != (DefinitionCompressionConfig{}) {
		merged.DefinitionCompression = override.DefinitionCompression
	}

	merged.ResultCompression = mergeResultCompression(base.ResultCompression, override.ResultCompression)
	merged.DeltaResponses = mergeDeltaResponses(base.DeltaResponses, override.DeltaResponses)
	merged.LazyLoading = mergeLazyLoading(base.LazyLoading, override.LazyLoading)
	merged.ToolsHashSync = mergeToolsHashSync(base.ToolsHashSync, override.ToolsHashSync)
	merged.Caching = mergeCaching(base.Caching, override.Caching)
	merged.AutoDisable = mergeAutoDisable(base.AutoDisable, override.AutoDisable)

	return merged
}

func mergeResultCompression(base, o ResultCompressionConfig) ResultCompressionConfig {
	m := base
	if o.Mode != "" {
		m.Mode = o.Mode
		m.Enabled = o.Mode != "off"
	}
	if o.MinPayloadBytes != 0 {
		m.MinPayloadBytes = o.MinPayloadBytes
	}
	if o.MinCompressibility != 0 {
		m.MinCompressibility = o.MinCompressibility
	}
	if o.ColumnarMinRows != 0 {
		m.ColumnarMinRows = o.ColumnarMinRows
	}
	if o.ColumnarMinFields != 0 {
		m.ColumnarMinFields = o.ColumnarMinFields
	}
	if o.MinTokenSavingsAbs != 0 {
		m.MinTokenSavingsAbs = o.MinTokenSavingsAbs
	}
	if o.MinTokenSavingsRatio != 0 {
		m.MinTokenSavingsRatio = o.MinTokenSavingsRatio
	}
	if o.KeyBootstrapInterval != 0 {
		m.KeyBootstrapInterval = o.KeyBootstrapInterval
	}
	return m
}

func mergeDeltaResponses(base, o DeltaResponsesConfig) DeltaResponsesConfig {
	m := base
	if o.MaxPatchBytes != 0 {
		m.MaxPatchBytes = o.MaxPatchBytes
	}
	if o.MinSavingsRatio != 0 {
		m.MinSavingsRatio = o.MinSavingsRatio
	}
	if o.MaxPatchRatio != 0 {
		m.MaxPatchRatio = o.MaxPatchRatio
	}
	if o.SnapshotInterval != 0 {
		m.SnapshotInterval = o.SnapshotInterval
	}
	return m
}

func mergeLazyLoading(base, o LazyLoadingConfig) LazyLoadingConfig {
	m := base
	if o.Mode != "" {
		m.Mode = o.Mode
		m.Enabled = o.Mode != "off"
	}
	if o.MinTools != 0 {
		m.MinTools = o.MinTools
	}
	if o.MinTokens != 0 {
		m.MinTokens = o.MinTokens
	}
	if o.SearchTopK != 0 {
		m.SearchTopK = o.SearchTopK
	}
	if o.MinConfidenceScore != 0 {
		m.MinConfidenceScore = o.MinConfidenceScore
	}
	return m
}

func mergeToolsHashSync(base, o ToolsHashSyncConfig) ToolsHashSyncConfig {
	m := base
	if o.RefreshInterval != 0 {
		m.RefreshInterval = o.RefreshInterval
	}
	return m
}

func mergeCaching(base, o CachingConfig) CachingConfig {
	m := base
	if o.TTLSeconds != 0 {
		m.TTLSeconds = o.TTLSeconds
	}
	if o.TTLMinSeconds != 0 {
		m.TTLMinSeconds = o.TTLMinSeconds
	}
	if o.TTLMaxSeconds != 0 {
		m.TTLMaxSeconds = o.TTLMaxSeconds
	}
	if o.MaxEntries != 0 {
		m.MaxEntries = o.MaxEntries
	}
	if len(o.MutatingVerbs) > 0 {
		m.MutatingVerbs = o.MutatingVerbs
	}
	if len(o.ExtraMutatingVerbs) > 0 {
		m.ExtraMutatingVerbs = append(m.ExtraMutatingVerbs, o.ExtraMutatingVerbs...)
	}
	return m
}

func mergeAutoDisable(base, o AutoDisableConfig) AutoDisableConfig {
	m := base
	if o.Threshold != 0 {
		m.Threshold = o.Threshold
	}
	if o.CooldownRequests != 0 {
		m.CooldownRequests = o.CooldownRequests
	}
	return m
}

// Profile returns the resolved server profile (default deep-merged with
// whichever named profile matched, if any).
func (r *Resolver) Profile() ServerProfile {
	return r.profile
}

// Global returns the active profile's optimization settings without any
// per-tool override applied — used for the method-global engines
// (lazy loading, tools-hash sync) that have no per-tool variant.
func (r *Resolver) Global() OptimizationsConfig {
	if r.profile.Optimizations != nil {
		return *r.profile.Optimizations
	}
	return r.cfg.Optimizations
}

// EffectiveForTool applies the resolved profile's per-tool override
// (enabled, caching_enabled, caching_ttl_seconds, and mutating-verb
// set/extend) on top of its already-merged optimizations.
func (r *Resolver) EffectiveForTool(toolName string) OptimizationsConfig {
	base := OptimizationsConfig{}
	if r.profile.Optimizations != nil {
		base = *r.profile.Optimizations
	} else {
		base = r.cfg.Optimizations
	}

	override, ok := r.profile.Tools[toolName]
	if !ok {
		return base
	}

	effective := base
	if override.Enabled != nil {
		enabled := *override.Enabled
		effective.ResultCompression.Enabled = enabled
		effective.DeltaResponses.Enabled = enabled
		effective.DefinitionCompression.Enabled = enabled
	}
	if override.CachingEnabled != nil {
		effective.Caching.Enabled = *override.CachingEnabled
	}
	if override.CachingTTLSeconds != nil {
		effective.Caching.TTLSeconds = *override.CachingTTLSeconds
	}
	if len(override.MutatingVerbs) > 0 {
		effective.Caching.MutatingVerbs = override.MutatingVerbs
	}
	if len(override.ExtraMutatingVerbs) > 0 {
		effective.Caching.ExtraMutatingVerbs = append(
			append([]string{}, effective.Caching.ExtraMutatingVerbs...),
			override.ExtraMutatingVerbs...)
	}
	return effective
}
