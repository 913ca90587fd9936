// Package config provides the configuration schema for ultra-lean-mcp-proxy.
//
// The document recognizes three top-level sections: proxy (runtime
// behavior), optimizations (the five engines' tuning knobs), and servers
// (per-upstream profile overrides selected by a command substring match).
// Resolution order is defaults <- config file <- environment <- CLI
// flags, later sources winning (see loader.go), followed by struct-tag
// and cross-field validation (see validator.go).
package config

// ProxyConfig is the root configuration document.
type ProxyConfig struct {
	Proxy         ProxyOptions        `yaml:"proxy" mapstructure:"proxy"`
	Optimizations OptimizationsConfig `yaml:"optimizations" mapstructure:"optimizations"`
	Servers       ServersConfig       `yaml:"servers" mapstructure:"servers"`
}

// ProxyOptions controls ambient runtime behavior, not tied to any single
// optimization engine.
type ProxyOptions struct {
	SessionID       string `yaml:"session_id" mapstructure:"session_id"`
	LogLevel        string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Stats           bool   `yaml:"stats" mapstructure:"stats"`
	TraceRPC        bool   `yaml:"trace_rpc" mapstructure:"trace_rpc"`
	StrictConfig    bool   `yaml:"strict_config" mapstructure:"strict_config"`
	MaxCacheEntries int    `yaml:"max_cache_entries" mapstructure:"max_cache_entries" validate:"omitempty,min=1"`
}

// OptimizationsConfig groups the five engines' tuning knobs plus the
// auto-disable health tracker shared by result compression and delta.
type OptimizationsConfig struct {
	DefinitionCompression DefinitionCompressionConfig `yaml:"definition_compression" mapstructure:"definition_compression"`
	ResultCompression     ResultCompressionConfig     `yaml:"result_compression" mapstructure:"result_compression"`
	DeltaResponses        DeltaResponsesConfig        `yaml:"delta_responses" mapstructure:"delta_responses"`
	LazyLoading           LazyLoadingConfig           `yaml:"lazy_loading" mapstructure:"lazy_loading"`
	ToolsHashSync         ToolsHashSyncConfig         `yaml:"tools_hash_sync" mapstructure:"tools_hash_sync"`
	Caching               CachingConfig               `yaml:"caching" mapstructure:"caching"`
	AutoDisable           AutoDisableConfig           `yaml:"auto_disable" mapstructure:"auto_disable"`
}

// DefinitionCompressionConfig toggles the description/schema rewrite
// engine. It has no tunables beyond enablement: the rule order and the
// 20-character gate are part of the engine's contract, not
// configuration.
type DefinitionCompressionConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ResultCompressionConfig tunes the lapc-json-v1 engine.
type ResultCompressionConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	Mode                 string  `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=off balanced aggressive"`
	MinPayloadBytes      int     `yaml:"min_payload_bytes" mapstructure:"min_payload_bytes" validate:"omitempty,min=0"`
	MinCompressibility   float64 `yaml:"min_compressibility" mapstructure:"min_compressibility" validate:"omitempty,min=0,max=1"`
	ColumnarMinRows      int     `yaml:"columnar_min_rows" mapstructure:"columnar_min_rows" validate:"omitempty,min=2"`
	ColumnarMinFields    int     `yaml:"columnar_min_fields" mapstructure:"columnar_min_fields" validate:"omitempty,min=1"`
	MinTokenSavingsAbs   int     `yaml:"min_token_savings_abs" mapstructure:"min_token_savings_abs" validate:"omitempty,min=0"`
	MinTokenSavingsRatio float64 `yaml:"min_token_savings_ratio" mapstructure:"min_token_savings_ratio" validate:"omitempty,min=0,max=1"`
	StripEmpty           bool    `yaml:"strip_empty" mapstructure:"strip_empty"`
	SharedKeyDictionary  bool    `yaml:"shared_key_dictionary" mapstructure:"shared_key_dictionary"`
	KeyBootstrapInterval int     `yaml:"key_bootstrap_interval" mapstructure:"key_bootstrap_interval" validate:"omitempty,min=1"`
}

// DeltaResponsesConfig tunes the lapc-delta-v1 engine.
type DeltaResponsesConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxPatchBytes   int     `yaml:"max_patch_bytes" mapstructure:"max_patch_bytes" validate:"omitempty,min=1"`
	MinSavingsRatio float64 `yaml:"min_savings_ratio" mapstructure:"min_savings_ratio" validate:"omitempty,min=0,max=1"`
	MaxPatchRatio   float64 `yaml:"max_patch_ratio" mapstructure:"max_patch_ratio" validate:"omitempty,min=0,max=1"`
	SnapshotInterval int     `yaml:"snapshot_interval" mapstructure:"snapshot_interval" validate:"omitempty,min=1"`
}

// LazyLoadingConfig tunes lazy tool visibility.
type LazyLoadingConfig struct {
	Enabled                     bool    `yaml:"enabled" mapstructure:"enabled"`
	Mode                        string  `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=off minimal catalog search_only"`
	MinTools                    int     `yaml:"min_tools" mapstructure:"min_tools" validate:"omitempty,min=0"`
	MinTokens                   int     `yaml:"min_tokens" mapstructure:"min_tokens" validate:"omitempty,min=0"`
	SearchTopK                  int     `yaml:"search_top_k" mapstructure:"search_top_k" validate:"omitempty,min=1"`
	MinConfidenceScore          float64 `yaml:"min_confidence_score" mapstructure:"min_confidence_score" validate:"omitempty,min=0"`
	FallbackFullOnLowConfidence bool    `yaml:"fallback_full_on_low_confidence" mapstructure:"fallback_full_on_low_confidence"`
}

// ToolsHashSyncConfig tunes tools-hash synchronization.
type ToolsHashSyncConfig struct {
	Enabled               bool   `yaml:"enabled" mapstructure:"enabled"`
	Algorithm             string `yaml:"algorithm" mapstructure:"algorithm" validate:"omitempty,eq=sha256"`
	RefreshInterval       int    `yaml:"refresh_interval" mapstructure:"refresh_interval" validate:"omitempty,min=0"`
	BindServerFingerprint bool   `yaml:"bind_server_fingerprint" mapstructure:"bind_server_fingerprint"`
}

// CachingConfig tunes the response cache.
type CachingConfig struct {
	Enabled            bool     `yaml:"enabled" mapstructure:"enabled"`
	TTLSeconds         int      `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"omitempty,min=1"`
	TTLMinSeconds      int      `yaml:"ttl_min_seconds" mapstructure:"ttl_min_seconds" validate:"omitempty,min=1"`
	TTLMaxSeconds      int      `yaml:"ttl_max_seconds" mapstructure:"ttl_max_seconds" validate:"omitempty,min=1"`
	MaxEntries         int      `yaml:"max_entries" mapstructure:"max_entries" validate:"omitempty,min=1"`
	CacheMutatingTools bool     `yaml:"cache_mutating_tools" mapstructure:"cache_mutating_tools"`
	MutatingVerbs      []string `yaml:"mutating_verbs" mapstructure:"mutating_verbs"`
	ExtraMutatingVerbs []string `yaml:"extra_mutating_verbs" mapstructure:"extra_mutating_verbs"`
}

// AutoDisableConfig tunes the per-(feature,tool) health tracker shared by
// result compression and the delta engine.
type AutoDisableConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	Threshold        int  `yaml:"threshold" mapstructure:"threshold" validate:"omitempty,min=1"`
	CooldownRequests int  `yaml:"cooldown_requests" mapstructure:"cooldown_requests" validate:"omitempty,min=1"`
}

// ServersConfig holds the default profile plus any named, command-matched
// override profiles.
type ServersConfig struct {
	Default  ServerProfile            `yaml:"default" mapstructure:"default"`
	Profiles map[string]ServerProfile `yaml:"profiles" mapstructure:"profiles" validate:"omitempty,dive"`
}

// ServerProfile is one named override layer. Match selects the profile;
// Optimizations deep-merges onto the globals; Tools carries per-tool
// overrides.
type ServerProfile struct {
	Match         MatchConfig             `yaml:"match" mapstructure:"match"`
	Optimizations *OptimizationsConfig    `yaml:"optimizations" mapstructure:"optimizations"`
	Tools         map[string]ToolOverride `yaml:"tools" mapstructure:"tools"`
}

// MatchConfig selects a profile by testing CommandContains as a
// substring of the joined upstream command line.
type MatchConfig struct {
	CommandContains string `yaml:"command_contains" mapstructure:"command_contains"`
}

// ToolOverride overrides any feature for a single tool name, including
// enablement and the cache TTL.
type ToolOverride struct {
	Enabled            *bool    `yaml:"enabled" mapstructure:"enabled"`
	CachingEnabled     *bool    `yaml:"caching_enabled" mapstructure:"caching_enabled"`
	CachingTTLSeconds  *int     `yaml:"caching_ttl_seconds" mapstructure:"caching_ttl_seconds"`
	MutatingVerbs      []string `yaml:"mutating_verbs" mapstructure:"mutating_verbs"`
	ExtraMutatingVerbs []string `yaml:"extra_mutating_verbs" mapstructure:"extra_mutating_verbs"`
}

// SetDefaults populates a programmatically constructed config with the
// proxy's built-in defaults, including the engines' enabled toggles.
// The viper load path does not use it — there the same defaults are
// registered on the viper instance (see loader.go) so that an explicit
// "enabled: false" in the file or environment survives the merge.
func (c *ProxyConfig) SetDefaults() {
	if c.Proxy.LogLevel == "" {
		c.Proxy.LogLevel = "info"
	}
	if c.Proxy.MaxCacheEntries == 0 {
		c.Proxy.MaxCacheEntries = 1000
	}

	o := &c.Optimizations
	o.DefinitionCompression.Enabled = true

	if o.ResultCompression.Mode == "" {
		o.ResultCompression.Mode = "balanced"
	}
	if o.ResultCompression.MinPayloadBytes == 0 {
		o.ResultCompression.MinPayloadBytes = 512
	}
	if o.ResultCompression.MinCompressibility == 0 {
		o.ResultCompression.MinCompressibility = 0.2
	}
	if o.ResultCompression.ColumnarMinRows == 0 {
		o.ResultCompression.ColumnarMinRows = 3
	}
	if o.ResultCompression.ColumnarMinFields == 0 {
		o.ResultCompression.ColumnarMinFields = 2
	}
	if o.ResultCompression.MinTokenSavingsAbs == 0 {
		o.ResultCompression.MinTokenSavingsAbs = 8
	}
	if o.ResultCompression.MinTokenSavingsRatio == 0 {
		o.ResultCompression.MinTokenSavingsRatio = 0.1
	}
	if o.ResultCompression.KeyBootstrapInterval == 0 {
		o.ResultCompression.KeyBootstrapInterval = 50
	}
	o.ResultCompression.Enabled = o.ResultCompression.Mode != "off"
	o.ResultCompression.SharedKeyDictionary = true

	if o.DeltaResponses.MaxPatchBytes == 0 {
		o.DeltaResponses.MaxPatchBytes = 4096
	}
	if o.DeltaResponses.MinSavingsRatio == 0 {
		o.DeltaResponses.MinSavingsRatio = 0.2
	}
	if o.DeltaResponses.MaxPatchRatio == 0 {
		o.DeltaResponses.MaxPatchRatio = 0.6
	}
	if o.DeltaResponses.SnapshotInterval == 0 {
		o.DeltaResponses.SnapshotInterval = 20
	}
	o.DeltaResponses.Enabled = true

	if o.LazyLoading.Mode == "" {
		o.LazyLoading.Mode = "off"
	}
	if o.LazyLoading.MinTools == 0 {
		o.LazyLoading.MinTools = 20
	}
	if o.LazyLoading.MinTokens == 0 {
		o.LazyLoading.MinTokens = 2000
	}
	if o.LazyLoading.SearchTopK == 0 {
		o.LazyLoading.SearchTopK = 5
	}
	if o.LazyLoading.MinConfidenceScore == 0 {
		o.LazyLoading.MinConfidenceScore = 2.0
	}
	o.LazyLoading.Enabled = o.LazyLoading.Mode != "off"

	if o.ToolsHashSync.Algorithm == "" {
		o.ToolsHashSync.Algorithm = "sha256"
	}
	if o.ToolsHashSync.RefreshInterval == 0 {
		o.ToolsHashSync.RefreshInterval = 50
	}
	o.ToolsHashSync.Enabled = true

	if o.Caching.TTLSeconds == 0 {
		o.Caching.TTLSeconds = 60
	}
	if o.Caching.TTLMinSeconds == 0 {
		o.Caching.TTLMinSeconds = 10
	}
	if o.Caching.TTLMaxSeconds == 0 {
		o.Caching.TTLMaxSeconds = 600
	}
	if o.Caching.MaxEntries == 0 {
		o.Caching.MaxEntries = c.Proxy.MaxCacheEntries
	}
	o.Caching.Enabled = true

	if o.AutoDisable.Threshold == 0 {
		o.AutoDisable.Threshold = 5
	}
	if o.AutoDisable.CooldownRequests == 0 {
		o.AutoDisable.CooldownRequests = 20
	}
	o.AutoDisable.Enabled = true
}

// Normalize applies the cross-field forcing rules: lazy_mode != off
// forces lazy loading on; result_compression_mode = off forces
// compression off. Called after CLI overrides and before Validate, so a
// CLI --lazy-mode or --result-compression-mode flag correctly drives the
// corresponding enabled toggle.
func (c *ProxyConfig) Normalize() {
	if c.Optimizations.LazyLoading.Mode != "" && c.Optimizations.LazyLoading.Mode != "off" {
		c.Optimizations.LazyLoading.Enabled = true
	}
	if c.Optimizations.LazyLoading.Mode == "off" {
		c.Optimizations.LazyLoading.Enabled = false
	}
	if c.Optimizations.ResultCompression.Mode == "off" {
		c.Optimizations.ResultCompression.Enabled = false
	}
}
