// Package jsonvalue provides a canonical, hashable representation of
// arbitrary JSON values decoded from MCP tool results and schemas.
package jsonvalue

import (
	"encoding/json"
	"sort"
)

// Value is any JSON value decoded via encoding/json: nil, bool, float64,
// string, []any, or map[string]any. It carries no methods of its own;
// the functions in this package operate on the bare `any` so callers can
// keep using stdlib decode/encode without a wrapper allocation.
type Value = any

// Parse decodes raw JSON bytes into a Value tree.
func Parse(raw []byte) (Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Clone produces a deep copy of v so that callers can mutate the copy
// without affecting cached or shared originals.
func Clone(v Value) Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		// bool, float64, string, nil are immutable/value types.
		return t
	}
}

// Canonicalize returns a deep copy of v. Go maps carry no key order, so
// the copy is not sorted in any way; CanonicalJSON is the serialization
// that sorts keys for hashing and diffing.
func Canonicalize(v Value) Value {
	return Clone(v)
}

// CanonicalJSON serializes v with object keys sorted lexicographically at
// every level, producing a byte-stable representation suitable for hashing
// (tools-hash sync, cache keys) and for diffing (delta engine). Arrays keep
// their original order — order is significant for arrays.
func CanonicalJSON(v Value) ([]byte, error) {
	var buf []byte
	var err error
	buf, err = appendCanonical(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendCanonical(buf []byte, v Value) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if t {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	case float64:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	case json.Number:
		return append(buf, t.String()...), nil
	case []any:
		buf = append(buf, '[')
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, t[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}

// Equal reports whether a and b serialize to the same canonical form.
func Equal(a, b Value) bool {
	ab, aerr := CanonicalJSON(a)
	bb, berr := CanonicalJSON(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(ab) == string(bb)
}

// EstimateTokens returns a rough token count for s using the ~4
// characters-per-token heuristic: any non-empty string counts as at least
// one token.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateValueTokens re-marshals v to compact JSON and applies
// EstimateTokens to the result. Used to estimate the token cost of a raw
// tool result for the runtime_metrics snapshot and the compression gates.
func EstimateValueTokens(v Value) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return EstimateTokens(string(b))
}
