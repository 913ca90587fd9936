package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "ULTRA_LEAN_MCP_PROXY"

// InitViper wires up viper's defaults, search paths, and environment
// binding. If configFile is non-empty it is used verbatim; otherwise
// viper searches the conventional locations for
// "ultra-lean-mcp-proxy.yaml"/".yml".
func InitViper(configFile string) *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindNestedEnvKeys(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}

	v.SetConfigName("ultra-lean-mcp-proxy")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ultra-lean-mcp-proxy"))
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("ProgramData"); appData != "" {
			v.AddConfigPath(filepath.Join(appData, "ultra-lean-mcp-proxy"))
		}
	} else {
		v.AddConfigPath("/etc/ultra-lean-mcp-proxy")
	}
	return v
}

// setViperDefaults registers every built-in default on the viper
// instance, so file and environment values layer over them in the merge
// rather than being overwritten afterwards. An explicit
// "enabled: false" in the file survives; a bare-struct SetDefaults
// could not tell it apart from an omitted key.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("proxy.log_level", "info")
	v.SetDefault("proxy.max_cache_entries", 1000)

	v.SetDefault("optimizations.definition_compression.enabled", true)

	v.SetDefault("optimizations.result_compression.enabled", true)
	v.SetDefault("optimizations.result_compression.mode", "balanced")
	v.SetDefault("optimizations.result_compression.min_payload_bytes", 512)
	v.SetDefault("optimizations.result_compression.min_compressibility", 0.2)
	v.SetDefault("optimizations.result_compression.columnar_min_rows", 3)
	v.SetDefault("optimizations.result_compression.columnar_min_fields", 2)
	v.SetDefault("optimizations.result_compression.min_token_savings_abs", 8)
	v.SetDefault("optimizations.result_compression.min_token_savings_ratio", 0.1)
	v.SetDefault("optimizations.result_compression.shared_key_dictionary", true)
	v.SetDefault("optimizations.result_compression.key_bootstrap_interval", 50)

	v.SetDefault("optimizations.delta_responses.enabled", true)
	v.SetDefault("optimizations.delta_responses.max_patch_bytes", 4096)
	v.SetDefault("optimizations.delta_responses.min_savings_ratio", 0.2)
	v.SetDefault("optimizations.delta_responses.max_patch_ratio", 0.6)
	v.SetDefault("optimizations.delta_responses.snapshot_interval", 20)

	v.SetDefault("optimizations.lazy_loading.enabled", false)
	v.SetDefault("optimizations.lazy_loading.mode", "off")
	v.SetDefault("optimizations.lazy_loading.min_tools", 20)
	v.SetDefault("optimizations.lazy_loading.min_tokens", 2000)
	v.SetDefault("optimizations.lazy_loading.search_top_k", 5)
	v.SetDefault("optimizations.lazy_loading.min_confidence_score", 2.0)

	v.SetDefault("optimizations.tools_hash_sync.enabled", true)
	v.SetDefault("optimizations.tools_hash_sync.algorithm", "sha256")
	v.SetDefault("optimizations.tools_hash_sync.refresh_interval", 50)

	v.SetDefault("optimizations.caching.enabled", true)
	v.SetDefault("optimizations.caching.ttl_seconds", 60)
	v.SetDefault("optimizations.caching.ttl_min_seconds", 10)
	v.SetDefault("optimizations.caching.ttl_max_seconds", 600)
	v.SetDefault("optimizations.caching.max_entries", 1000)

	v.SetDefault("optimizations.auto_disable.enabled", true)
	v.SetDefault("optimizations.auto_disable.threshold", 5)
	v.SetDefault("optimizations.auto_disable.cooldown_requests", 20)
}

// bindNestedEnvKeys binds the handful of nested keys viper's
// AutomaticEnv doesn't reliably pick up on its own (nested struct
// fields need an explicit dotted-key bind to line up with the env var
// form, where each "." of the key becomes a single "_").
func bindNestedEnvKeys(v *viper.Viper) {
	keys := []string{
		"proxy.session_id",
		"proxy.log_level",
		"proxy.stats",
		"proxy.trace_rpc",
		"optimizations.result_compression.mode",
		"optimizations.result_compression.enabled",
		"optimizations.delta_responses.enabled",
		"optimizations.lazy_loading.mode",
		"optimizations.lazy_loading.enabled",
		"optimizations.tools_hash_sync.enabled",
		"optimizations.tools_hash_sync.refresh_interval",
		"optimizations.caching.enabled",
		"optimizations.caching.ttl_seconds",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// LoadConfig reads, unmarshals, defaults, normalizes, and validates the
// configuration document. strictConfig turns unknown-key decode errors
// into a hard failure rather than a silent ignore.
func LoadConfig(v *viper.Viper, strictConfig bool) (*ProxyConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := decode(v, strictConfig)
	if err != nil {
		return nil, err
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigRaw behaves like LoadConfig but skips Normalize and
// Validate, returning the document exactly as decoded (built-in
// defaults included, since they are registered on the viper instance).
func LoadConfigRaw(v *viper.Viper) (*ProxyConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return decode(v, false)
}

func decode(v *viper.Viper, strictConfig bool) (*ProxyConfig, error) {
	var cfg ProxyConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		flexibleBoolHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if strictConfig {
		if err := v.UnmarshalExact(&cfg, hook); err != nil {
			return nil, fmt.Errorf("decoding config (strict): %w", err)
		}
		return &cfg, nil
	}
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// flexibleBoolHookFunc decodes boolean-valued environment and file
// strings in all the accepted forms: 1/0, true/false, yes/no, on/off.
func flexibleBoolHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
			return data, nil
		}
		s := strings.ToLower(strings.TrimSpace(data.(string)))
		switch s {
		case "1", "t", "true", "yes", "on":
			return true, nil
		case "0", "f", "false", "no", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean value %q", data)
	}
}

// ConfigFileUsed reports the path viper resolved, or "" if none was
// found (an entirely defaulted, file-less run is valid).
func ConfigFileUsed(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
