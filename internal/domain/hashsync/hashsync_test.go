package hashsync

import (
	"testing"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

func TestParseIfNoneMatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", "sha256:" + repeat("a", 64), true},
		{"wrong algo", "md5:" + repeat("a", 64), false},
		{"short body", "sha256:abc", false},
		{"non hex", "sha256:" + repeat("z", 64), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseIfNoneMatch(tt.raw)
			if ok != tt.ok {
				t.Errorf("ParseIfNoneMatch(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
		})
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}

func TestHashDeterministicUnderKeyOrder(t *testing.T) {
	toolsA := []store.Tool{
		{Name: "x", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "string"}},
		}},
	}
	toolsB := []store.Tool{
		{Name: "x", InputSchema: map[string]any{
			"properties": map[string]any{"a": map[string]any{"type": "string"}},
			"type":       "object",
		}},
	}

	h1, err := Hash(toolsA, "")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(toolsB, "")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected key-order-independent hash, got %s != %s", h1, h2)
	}
}

func TestEvaluateShortCircuit(t *testing.T) {
	scope := store.HashScope{LastHash: "sha256:" + repeat("a", 64), ConditionalHits: 0}

	d := Evaluate(scope.LastHash, scope, 50)
	if !d.ShortCircuit {
		t.Fatal("expected short-circuit on matching hash")
	}

	d = Evaluate("sha256:"+repeat("b", 64), scope, 50)
	if d.ShortCircuit {
		t.Fatal("expected no short-circuit on mismatched hash")
	}

	d = Evaluate("not-a-valid-hash", scope, 50)
	if d.ShortCircuit {
		t.Fatal("expected no short-circuit for malformed if_none_match")
	}
}

func TestEvaluateRefreshIntervalBypass(t *testing.T) {
	hash := "sha256:" + repeat("a", 64)
	scope := store.HashScope{LastHash: hash, ConditionalHits: 48}

	// The 49th matching conditional request (hits 48 -> 49) is not a
	// multiple of the refresh interval (50), so it should short-circuit.
	d := Evaluate(hash, scope, 50)
	if !d.ShortCircuit {
		t.Fatal("expected short-circuit before refresh interval reached")
	}

	scope.ConditionalHits = 49
	d = Evaluate(hash, scope, 50)
	if d.ShortCircuit {
		t.Fatal("expected refresh bypass on the 50th matching conditional request")
	}
}
