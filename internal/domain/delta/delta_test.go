package delta

import (
	"strings"
	"testing"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

func relaxedGates() Gates {
	return Gates{MaxPatchBytes: 1 << 20, MinSavingsRatio: -1, MaxPatchRatio: 1 << 20}
}

// ballast keeps the full payload large enough that a small patch always
// out-saves it; tiny payloads are rejected by the token gate by design.
var ballast = strings.Repeat("the quick brown fox jumps over the lazy dog ", 10)

func TestCreateUnchangedForIdenticalValues(t *testing.T) {
	v := map[string]any{"items": []any{1.0, 2.0, 3.0}}
	env, ok, err := Create(v, v, relaxedGates())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ok || !env.Unchanged {
		t.Fatalf("expected unchanged=true for identical values, got %+v ok=%v", env, ok)
	}
	if env.CurrentHash == "" {
		t.Error("expected currentHash to be set")
	}
}

func TestCreateApplyRoundTrip(t *testing.T) {
	prev := map[string]any{
		"name":        "alpha",
		"description": ballast,
		"stars":       10.0,
		"tags":        []any{"a", "b"},
	}
	curr := map[string]any{
		"name":        "alpha",
		"description": ballast,
		"stars":       20.0,
		"tags":        []any{"a", "b", "c"},
		"owner":       "org",
	}

	env, ok, err := Create(prev, curr, relaxedGates())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ok {
		t.Fatal("expected delta to be accepted under relaxed gates")
	}

	applied := Apply(prev, env.Ops)
	if !jsonvalue.Equal(applied, curr) {
		t.Errorf("Apply(prev, Create(prev,curr).ops) != curr:\n got  = %#v\n want = %#v", applied, curr)
	}
}

func TestCreateDetectsDeletedKey(t *testing.T) {
	prev := map[string]any{"a": 1.0, "b": 2.0, "description": ballast}
	curr := map[string]any{"a": 1.0, "description": ballast}

	env, ok, err := Create(prev, curr, relaxedGates())
	if err != nil || !ok {
		t.Fatalf("Create failed: ok=%v err=%v", ok, err)
	}

	found := false
	for _, op := range env.Ops {
		if op.Op == "delete" && len(op.Path) == 1 && op.Path[0] == "b" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a delete op for key 'b', got %+v", env.Ops)
	}

	applied := Apply(prev, env.Ops)
	if !jsonvalue.Equal(applied, curr) {
		t.Errorf("Apply mismatch: %#v vs %#v", applied, curr)
	}
}

func TestCreateRejectsWhenPatchExceedsMaxBytes(t *testing.T) {
	prev := map[string]any{"a": 1.0}
	curr := map[string]any{"a": 2.0}
	gates := Gates{MaxPatchBytes: 1, MinSavingsRatio: -1, MaxPatchRatio: 1 << 20}

	_, ok, err := Create(prev, curr, gates)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok {
		t.Error("expected rejection when patch exceeds max_patch_bytes")
	}
}

func TestCreateRejectsBelowMinSavingsRatio(t *testing.T) {
	prev := map[string]any{"a": 1.0}
	curr := map[string]any{"a": 2.0}
	gates := Gates{MaxPatchBytes: 1 << 20, MinSavingsRatio: 2.0, MaxPatchRatio: 1 << 20}

	_, ok, err := Create(prev, curr, gates)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok {
		t.Error("expected rejection when savings ratio below minimum")
	}
}

func TestArrayLengthChangeProducesSingleSet(t *testing.T) {
	prev := map[string]any{"items": []any{1.0, 2.0}, "description": ballast}
	curr := map[string]any{"items": []any{1.0, 2.0, 3.0}, "description": ballast}

	env, ok, err := Create(prev, curr, relaxedGates())
	if err != nil || !ok {
		t.Fatalf("Create failed: ok=%v err=%v", ok, err)
	}
	if len(env.Ops) != 1 || env.Ops[0].Op != "set" {
		t.Fatalf("expected a single set op for array length change, got %+v", env.Ops)
	}

	applied := Apply(prev, env.Ops)
	if !jsonvalue.Equal(applied, curr) {
		t.Errorf("Apply mismatch: %#v vs %#v", applied, curr)
	}
}
