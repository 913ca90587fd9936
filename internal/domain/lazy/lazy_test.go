package lazy

import (
	"testing"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

func sampleCatalog(n int) []store.Tool {
	out := make([]store.Tool, n)
	for i := 0; i < n; i++ {
		out[i] = store.Tool{Name: "tool_x", Description: "a generic tool"}
	}
	return out
}

func TestShouldActivate(t *testing.T) {
	if ShouldActivate(Off, 100, 10000, 5, 100) {
		t.Error("off mode must never activate")
	}
	if !ShouldActivate(Minimal, 10, 0, 5, 100) {
		t.Error("expected activation on tool-count threshold")
	}
	if !ShouldActivate(Minimal, 0, 200, 5, 100) {
		t.Error("expected activation on token-count threshold")
	}
	if ShouldActivate(Minimal, 1, 1, 5, 100) {
		t.Error("expected no activation below both thresholds")
	}
}

func TestVisibleToolsMinimalAppendsMetaTool(t *testing.T) {
	catalog := []store.Tool{
		{Name: "list_pull_requests", Description: "lists PRs", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"repo": map[string]any{"type": "string"}},
		}},
	}
	out := VisibleTools(Minimal, catalog)
	if len(out) != 2 {
		t.Fatalf("expected 2 tools (1 narrowed + meta), got %d", len(out))
	}
	if out[len(out)-1].Name != MetaToolName {
		t.Errorf("expected last tool to be the meta-tool, got %q", out[len(out)-1].Name)
	}
	props := out[0].InputSchema["properties"].(map[string]any)
	if _, ok := props["repo"]; !ok {
		t.Error("expected minimal view to preserve property names")
	}
}

func TestVisibleToolsSearchOnlyShipsNoRealTools(t *testing.T) {
	out := VisibleTools(SearchOnly, sampleCatalog(5))
	if len(out) != 1 || out[0].Name != MetaToolName {
		t.Errorf("expected only the meta-tool in search_only mode, got %v", out)
	}
}

func TestVisibleToolsCatalogEmbedsNameList(t *testing.T) {
	catalog := []store.Tool{{Name: "list_pull_requests"}, {Name: "create_issue"}}
	out := VisibleTools(Catalog, catalog)
	meta := out[len(out)-1]
	if !contains(meta.Description, "list_pull_requests") || !contains(meta.Description, "create_issue") {
		t.Errorf("expected catalog-mode meta description to embed tool names, got %q", meta.Description)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestSearchRanksNameMatchFirst(t *testing.T) {
	catalog := []store.Tool{
		{Name: "list_issues", Description: "lists repo issues"},
		{Name: "list_pull_requests", Description: "lists open pull requests"},
		{Name: "create_issue", Description: "opens a new issue"},
	}
	matches := Search("pull requests", catalog, 5)
	if len(matches) == 0 || matches[0].Tool.Name != "list_pull_requests" {
		t.Fatalf("expected list_pull_requests to rank first, got %+v", matches)
	}
}

func TestSearchTopKLimitsResults(t *testing.T) {
	matches := Search("tool", sampleCatalog(10), 3)
	if len(matches) != 3 {
		t.Errorf("expected top_k=3 results, got %d", len(matches))
	}
}

func TestBuildSearchResultFallbackOnLowConfidence(t *testing.T) {
	catalog := []store.Tool{{Name: "unrelated_tool", Description: "does something else"}}
	result := BuildSearchResult("completely nonmatching query xyz", catalog, 5, 10.0, true)
	if !result.FullCatalogAttached {
		t.Error("expected full catalog fallback on low confidence")
	}

	result2 := BuildSearchResult("completely nonmatching query xyz", catalog, 5, 10.0, false)
	if result2.FullCatalogAttached {
		t.Error("expected no fallback when fallbackFullOnLowConfidence is false")
	}
}
