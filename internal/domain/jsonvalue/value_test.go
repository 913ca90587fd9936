package jsonvalue

import "testing"

func TestCanonicalJSONSortsKeys(t *testing.T) {
	v, err := Parse([]byte(`{"b":1,"a":2,"c":{"z":1,"y":2}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(got) != want {
		t.Errorf("CanonicalJSON = %s, want %s", got, want)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	raw := []byte(`{"tools":[{"name":"b"},{"name":"a"}],"meta":{"z":1,"a":2}}`)
	v1, _ := Parse(raw)
	v2, _ := Parse(raw)
	b1, err1 := CanonicalJSON(v1)
	b2, err2 := CanonicalJSON(v2)
	if err1 != nil || err2 != nil {
		t.Fatalf("CanonicalJSON errors: %v %v", err1, err2)
	}
	if string(b1) != string(b2) {
		t.Errorf("canonical form not deterministic: %s vs %s", b1, b2)
	}
	// Array order must be preserved, not sorted.
	want := `{"meta":{"a":2,"z":1},"tools":[{"name":"b"},{"name":"a"}]}`
	if string(b1) != want {
		t.Errorf("CanonicalJSON = %s, want %s", b1, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v, _ := Parse([]byte(`{"a":[1,2,3]}`))
	c := Clone(v)
	cm := c.(map[string]any)
	ca := cm["a"].([]any)
	ca[0] = 999.0

	om := v.(map[string]any)
	oa := om["a"].([]any)
	if oa[0] != 1.0 {
		t.Errorf("mutating clone affected original: %v", oa[0])
	}
}

func TestEqual(t *testing.T) {
	a, _ := Parse([]byte(`{"x":1,"y":2}`))
	b, _ := Parse([]byte(`{"y":2,"x":1}`))
	c, _ := Parse([]byte(`{"y":2,"x":3}`))

	if !Equal(a, b) {
		t.Error("expected key-order-independent values to be equal")
	}
	if Equal(a, c) {
		t.Error("expected differing values to not be equal")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"abcdefghijklmnop", 4},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.s); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}
