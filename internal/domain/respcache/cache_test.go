package respcache

import (
	"testing"
	"time"
)

func TestIsMutatingDefaultVerbs(t *testing.T) {
	v := DefaultVerbSet()
	tests := []struct {
		name string
		want bool
	}{
		{"create_issue", true},
		{"list_items", false},
		{"delete_branch", true},
		{"get_file", false},
		{"click_button", true},
	}
	for _, tt := range tests {
		if got := v.IsMutating(tt.name); got != tt.want {
			t.Errorf("IsMutating(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOverrideReplacesVerbSet(t *testing.T) {
	v := Override([]string{"frobnicate"})
	if v.IsMutating("create_issue") {
		t.Error("expected overridden verb set to ignore the default verbs")
	}
	if !v.IsMutating("frobnicate_widget") {
		t.Error("expected overridden verb to match")
	}
}

func TestEligible(t *testing.T) {
	verbs := DefaultVerbSet()

	if Eligible(true, true, false, verbs, "create_issue", false) {
		t.Error("mutating tool should not be eligible unless cacheMutatingTools is set")
	}
	if !Eligible(true, true, true, verbs, "create_issue", false) {
		t.Error("mutating tool should be eligible when cacheMutatingTools is set")
	}
	if !Eligible(true, true, false, verbs, "list_items", false) {
		t.Error("non-mutating tool should be eligible")
	}
	if Eligible(true, true, false, verbs, "list_items", true) {
		t.Error("error results must never be cached")
	}
	if Eligible(false, true, false, verbs, "list_items", false) {
		t.Error("globally disabled caching must not be eligible")
	}
}

func TestKeyIsArgumentOrderIndependent(t *testing.T) {
	k1, err := Key("sess1", "srv1", "list_items", map[string]any{"page": 1.0, "limit": 10.0})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key("sess1", "srv1", "list_items", map[string]any{"limit": 10.0, "page": 1.0})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("expected canonical key independent of arg order, got %s != %s", k1, k2)
	}
}

func TestAdaptiveTTLWidensWhenUnchanged(t *testing.T) {
	base := 10 * time.Second
	d := AdaptiveTTL(base, time.Second, time.Minute, map[string]any{"a": 1.0}, true, map[string]any{"a": 1.0})
	if !d.Widened {
		t.Error("expected widened when unchanged")
	}
	if d.TTL != 15*time.Second {
		t.Errorf("expected 1.5x base, got %v", d.TTL)
	}
}

func TestAdaptiveTTLNarrowsWhenChanged(t *testing.T) {
	base := 10 * time.Second
	d := AdaptiveTTL(base, time.Second, time.Minute, map[string]any{"a": 1.0}, true, map[string]any{"a": 2.0})
	if !d.Changed {
		t.Error("expected changed when values differ")
	}
	if d.TTL != 5*time.Second {
		t.Errorf("expected 0.5x base, got %v", d.TTL)
	}
}

func TestAdaptiveTTLClampsIntoRange(t *testing.T) {
	base := 100 * time.Second
	d := AdaptiveTTL(base, time.Second, 20*time.Second, nil, false, nil)
	if d.TTL != 20*time.Second {
		t.Errorf("expected clamp to ttlMax, got %v", d.TTL)
	}
}

func TestAdaptiveTTLUsesBaseWithoutPrevious(t *testing.T) {
	base := 10 * time.Second
	d := AdaptiveTTL(base, time.Second, time.Minute, nil, false, map[string]any{"a": 1.0})
	if d.TTL != base {
		t.Errorf("expected base TTL with no previous value, got %v", d.TTL)
	}
}
