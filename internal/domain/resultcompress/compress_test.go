package resultcompress

import (
	"testing"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

func sampleRepos() jsonvalue.Value {
	return map[string]any{
		"repositories": []any{
			map[string]any{"repository_name": "alpha", "repository_owner": "org", "repository_stars": 10.0},
			map[string]any{"repository_name": "beta", "repository_owner": "org", "repository_stars": 20.0},
			map[string]any{"repository_name": "gamma", "repository_owner": "org", "repository_stars": 30.0},
		},
	}
}

func TestCompressRoundTrip(t *testing.T) {
	opts := Options{
		Mode:                 Aggressive,
		MinPayloadBytes:      0,
		MinCompressibility:   0,
		ColumnarMinRows:      2,
		ColumnarMinFields:    2,
		MinTokenSavingsAbs:   1,
		MinTokenSavingsRatio: 0,
	}
	value := sampleRepos()
	envelope, ok := Compress(value, opts)
	if !ok {
		t.Fatal("expected compression to be accepted")
	}
	if !envelope.Compressed {
		t.Error("expected Compressed=true")
	}
	if len(envelope.Keys) == 0 {
		t.Error("expected non-empty key dictionary")
	}

	got := Decompress(envelope)
	if !jsonvalue.Equal(got, value) {
		t.Errorf("round trip mismatch:\n got  = %#v\n want = %#v", got, value)
	}
}

func TestCompressRejectsBelowMinPayload(t *testing.T) {
	opts := Options{Mode: Balanced, MinPayloadBytes: 1 << 20}
	_, ok := Compress(sampleRepos(), opts)
	if ok {
		t.Error("expected rejection below min payload size")
	}
}

func TestCompressRejectsWhenSavingsInsufficient(t *testing.T) {
	opts := Options{
		Mode:                 Balanced,
		MinPayloadBytes:      0,
		MinTokenSavingsAbs:   1 << 20,
		ColumnarMinRows:      2,
		ColumnarMinFields:    2,
	}
	_, ok := Compress(sampleRepos(), opts)
	if ok {
		t.Error("expected rejection when token savings below threshold")
	}
}

func TestCompressOffModeNeverApplies(t *testing.T) {
	_, ok := Compress(sampleRepos(), Options{Mode: Off})
	if ok {
		t.Error("expected mode=off to never compress")
	}
}

func TestBuildAliasTableBalancedRequiresTwoOccurrences(t *testing.T) {
	value := map[string]any{
		"only_once_key": 1.0,
		"repeated_key":  map[string]any{"repeated_key": 2.0},
	}
	aliases := BuildAliasTable(value, 2)
	if _, ok := aliases["only_once_key"]; ok {
		t.Error("expected a key occurring once to be excluded under balanced mode")
	}
	if _, ok := aliases["repeated_key"]; !ok {
		t.Error("expected a key occurring twice to be aliased under balanced mode")
	}
}

func TestColumnarPackingAndExpansion(t *testing.T) {
	arr := []any{
		map[string]any{"a": 1.0, "b": 2.0},
		map[string]any{"a": 3.0, "b": 4.0},
	}
	packed := columnarize(arr, 2, 2)
	m, ok := packed.(map[string]any)
	if !ok {
		t.Fatalf("expected packed result to be a map, got %T", packed)
	}
	if _, ok := m[columnarMarkerKey]; !ok {
		t.Fatal("expected ~t marker in packed output")
	}

	expanded := expandColumnar(packed)
	if !jsonvalue.Equal(expanded, arr) {
		t.Errorf("expected columnar round trip, got %#v", expanded)
	}
}

func TestKeyDigestStableUnderMapOrder(t *testing.T) {
	a := map[string]string{"repository_name": "k0", "repository_owner": "k1"}
	b := map[string]string{"repository_owner": "k1", "repository_name": "k0"}
	if KeyDigest(a) != KeyDigest(b) {
		t.Error("expected digest independent of map iteration order")
	}
}
