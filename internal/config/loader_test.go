package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ultra-lean-mcp-proxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	v := InitViper("")
	v.AddConfigPath(t.TempDir())

	cfg, err := LoadConfig(v, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Optimizations.Caching.Enabled {
		t.Error("expected caching enabled by default")
	}
	if !cfg.Optimizations.ToolsHashSync.Enabled {
		t.Error("expected tools-hash sync enabled by default")
	}
	if cfg.Optimizations.ResultCompression.Mode != "balanced" {
		t.Errorf("ResultCompression.Mode = %q, want balanced", cfg.Optimizations.ResultCompression.Mode)
	}
	if cfg.Optimizations.Caching.TTLSeconds != 60 {
		t.Errorf("Caching.TTLSeconds = %d, want 60", cfg.Optimizations.Caching.TTLSeconds)
	}
}

func TestLoadConfigExplicitDisableSurvivesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
optimizations:
  caching:
    enabled: false
  delta_responses:
    enabled: false
`)
	v := InitViper(path)
	cfg, err := LoadConfig(v, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Optimizations.Caching.Enabled {
		t.Error("expected explicit caching.enabled=false to survive default layering")
	}
	if cfg.Optimizations.DeltaResponses.Enabled {
		t.Error("expected explicit delta_responses.enabled=false to survive default layering")
	}
	// Untouched sections keep their defaults.
	if !cfg.Optimizations.ResultCompression.Enabled {
		t.Error("expected result compression to stay enabled by default")
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
optimizations:
  caching:
    ttl_seconds: 30
`)
	t.Setenv("ULTRA_LEAN_MCP_PROXY_OPTIMIZATIONS_CACHING_TTL_SECONDS", "120")

	v := InitViper(path)
	cfg, err := LoadConfig(v, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Optimizations.Caching.TTLSeconds != 120 {
		t.Errorf("Caching.TTLSeconds = %d, want env override 120", cfg.Optimizations.Caching.TTLSeconds)
	}
}

func TestLoadConfigAcceptsBooleanWordForms(t *testing.T) {
	t.Setenv("ULTRA_LEAN_MCP_PROXY_OPTIMIZATIONS_CACHING_ENABLED", "off")
	t.Setenv("ULTRA_LEAN_MCP_PROXY_OPTIMIZATIONS_DELTA_RESPONSES_ENABLED", "yes")

	v := InitViper("")
	v.AddConfigPath(t.TempDir())
	cfg, err := LoadConfig(v, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Optimizations.Caching.Enabled {
		t.Error(`expected "off" to decode as false`)
	}
	if !cfg.Optimizations.DeltaResponses.Enabled {
		t.Error(`expected "yes" to decode as true`)
	}
}

func TestLoadConfigStrictRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
optimizations:
  cachng:
    enabled: false
`)
	v := InitViper(path)
	if _, err := LoadConfig(v, true); err == nil {
		t.Error("expected strict load to reject misspelled key")
	}
}

func TestLoadConfigRejectsInvalidDocument(t *testing.T) {
	path := writeConfigFile(t, `
optimizations:
  lazy_loading:
    mode: bogus
`)
	v := InitViper(path)
	if _, err := LoadConfig(v, false); err == nil {
		t.Error("expected validation failure for unknown lazy mode")
	}
}
