package compress

import (
	"strings"
	"testing"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

func TestApplyShortStringsPassThrough(t *testing.T) {
	short := "Gets a file"
	if got := Apply(short); got != short {
		t.Errorf("expected short description unchanged, got %q", got)
	}
}

func TestApplyIsIdempotentOnShortStrings(t *testing.T) {
	short := "short text"
	once := Apply(short)
	twice := Apply(once)
	if once != twice {
		t.Errorf("expected idempotence, got %q then %q", once, twice)
	}
}

func TestApplyRewritesFillerAndLongForms(t *testing.T) {
	desc := "This tool enables users to retrieve the repository configuration information for a project."
	got := Apply(desc)

	if strings.Contains(strings.ToLower(got), "this tool enables users to") {
		t.Errorf("expected filler phrase removed, got %q", got)
	}
	if strings.Contains(got, "repository") {
		t.Errorf("expected 'repository' shortened, got %q", got)
	}
	if !strings.Contains(got, "repo") {
		t.Errorf("expected short form 'repo' present, got %q", got)
	}
	// With the filler phrase gone, "get" starts the sentence and is
	// re-capitalized.
	if !strings.HasPrefix(got, "Get ") {
		t.Errorf("expected 'retrieve' mapped to 'get' and re-capitalized, got %q", got)
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	desc := "This tool enables users to retrieve repository configuration and environment information reliably."
	a := Apply(desc)
	b := Apply(desc)
	if a != b {
		t.Errorf("expected deterministic output, got %q vs %q", a, b)
	}
}

func TestApplyCollapsesRepeatedDots(t *testing.T) {
	desc := "Fetches the requested resource from storage.... then returns it to the caller for inspection"
	got := Apply(desc)
	if strings.Contains(got, "..") {
		t.Errorf("expected repeated dots collapsed, got %q", got)
	}
}

func TestCompressToolWalksSchema(t *testing.T) {
	tool := store.Tool{
		Name:        "list_items",
		Description: "This tool enables users to retrieve items from the repository for a given project.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"repo": map[string]any{
					"type":        "string",
					"description": "This tool enables users to retrieve the repository name to query against.",
				},
			},
			"items": map[string]any{
				"description": "This tool enables users to retrieve a single page worth of repository items here.",
			},
		},
	}

	out := CompressTool(tool)

	if out.Name != tool.Name {
		t.Errorf("expected name untouched, got %q", out.Name)
	}
	if strings.Contains(strings.ToLower(out.Description), "this tool enables") {
		t.Errorf("expected top-level description compressed, got %q", out.Description)
	}

	props := out.InputSchema["properties"].(map[string]any)
	repoProp := props["repo"].(map[string]any)
	if strings.Contains(strings.ToLower(repoProp["description"].(string)), "this tool enables") {
		t.Errorf("expected nested property description compressed, got %q", repoProp["description"])
	}

	items := out.InputSchema["items"].(map[string]any)
	if strings.Contains(strings.ToLower(items["description"].(string)), "this tool enables") {
		t.Errorf("expected items description compressed, got %q", items["description"])
	}

	// Input must not be mutated.
	if !strings.Contains(tool.Description, "This tool enables") {
		t.Error("expected original tool to be left unmodified")
	}
}
