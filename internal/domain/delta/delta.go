// Package delta implements the delta engine: a canonical parallel tree
// diff producing set/delete operations, gated by patch-size and savings
// thresholds, with periodic full snapshots. The tree walk follows the
// same recursive key-sort discipline as jsonvalue.CanonicalJSON.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

// Encoding is the envelope's discriminator value.
const Encoding = "lapc-delta-v1"

// Op is one tree-edit instruction. Path segments are object keys for map
// levels and decimal-string indices for array levels.
type Op struct {
	Path  []string `json:"path"`
	Op    string   `json:"op"` // "set" or "delete"
	Value any      `json:"value,omitempty"`
}

// Envelope is the wire shape of a "lapc-delta-v1" result.
type Envelope struct {
	Encoding    string `json:"encoding"`
	Unchanged   bool   `json:"unchanged,omitempty"`
	CurrentHash string `json:"currentHash,omitempty"`
	Ops         []Op   `json:"ops,omitempty"`
}

// Gates bounds how aggressively a delta is accepted over a full payload.
type Gates struct {
	MaxPatchBytes   int
	MinSavingsRatio float64
	MaxPatchRatio   float64
}

// CurrentHash returns a stable sha256-hex fingerprint of v's canonical
// form, used as the envelope's currentHash and as the unchanged-case
// marker.
func CurrentHash(v jsonvalue.Value) (string, error) {
	canon, err := jsonvalue.CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Create computes the delta between previous and current. If the two
// canonicalize identically, it returns {unchanged: true, currentHash}.
// Otherwise it walks both trees and returns the accumulated ops,
// rejecting (ok=false) when any of Gates is violated or the delta would
// not actually save tokens relative to the full payload.
func Create(previous, current jsonvalue.Value, gates Gates) (Envelope, bool, error) {
	hash, err := CurrentHash(current)
	if err != nil {
		return Envelope{}, false, err
	}

	if jsonvalue.Equal(previous, current) {
		return Envelope{Encoding: Encoding, Unchanged: true, CurrentHash: hash}, true, nil
	}

	var ops []Op
	walkDiff(nil, previous, current, &ops)

	patchBytes, err := json.Marshal(ops)
	if err != nil {
		return Envelope{}, false, err
	}
	fullBytes, err := json.Marshal(current)
	if err != nil {
		return Envelope{}, false, err
	}

	if gates.MaxPatchBytes > 0 && len(patchBytes) > gates.MaxPatchBytes {
		return Envelope{}, false, nil
	}

	fullLen := len(fullBytes)
	savingsRatio := 0.0
	if fullLen > 0 {
		savingsRatio = float64(fullLen-len(patchBytes)) / float64(fullLen)
	}
	if savingsRatio < gates.MinSavingsRatio {
		return Envelope{}, false, nil
	}

	patchRatio := 0.0
	if fullLen > 0 {
		patchRatio = float64(len(patchBytes)) / float64(fullLen)
	}
	if gates.MaxPatchRatio > 0 && patchRatio > gates.MaxPatchRatio {
		return Envelope{}, false, nil
	}

	deltaTokens := jsonvalue.EstimateTokens(string(patchBytes))
	fullTokens := jsonvalue.EstimateTokens(string(fullBytes))
	if deltaTokens >= fullTokens {
		return Envelope{}, false, nil
	}

	return Envelope{Encoding: Encoding, Ops: ops, CurrentHash: hash}, true, nil
}

// walkDiff performs the parallel tree walk:
//   - array of differing length -> single "set" at the array's own path
//   - object -> recurse per key in the sorted union; "delete" for keys
//     that vanished, "set" for keys that appeared
//   - scalar or type mismatch -> "set" at the current path
//
// Same-length arrays are treated like objects keyed by decimal index, so
// elementwise changes produce elementwise ops instead of replacing the
// whole array.
func walkDiff(path []string, prev, curr any, ops *[]Op) {
	prevArr, prevIsArr := prev.([]any)
	currArr, currIsArr := curr.([]any)
	if prevIsArr && currIsArr {
		if len(prevArr) != len(currArr) {
			*ops = append(*ops, Op{Path: clonePath(path), Op: "set", Value: curr})
			return
		}
		for i := range currArr {
			walkDiff(append(path, strconv.Itoa(i)), prevArr[i], currArr[i], ops)
		}
		return
	}

	prevObj, prevIsObj := prev.(map[string]any)
	currObj, currIsObj := curr.(map[string]any)
	if prevIsObj && currIsObj {
		keys := unionKeys(prevObj, currObj)
		for _, k := range keys {
			pv, pok := prevObj[k]
			cv, cok := currObj[k]
			switch {
			case pok && !cok:
				*ops = append(*ops, Op{Path: clonePath(append(path, k)), Op: "delete"})
			case !pok && cok:
				*ops = append(*ops, Op{Path: clonePath(append(path, k)), Op: "set", Value: cv})
			default:
				walkDiff(append(path, k), pv, cv, ops)
			}
		}
		return
	}

	// Scalar or type-mismatch: set if different.
	if !jsonvalue.Equal(prev, curr) {
		*ops = append(*ops, Op{Path: clonePath(path), Op: "set", Value: curr})
	}
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func unionKeys(a, b map[string]any) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply reconstructs the current value by replaying ops against a deep
// copy of previous.
func Apply(previous jsonvalue.Value, ops []Op) jsonvalue.Value {
	result := jsonvalue.Clone(previous)
	for _, op := range ops {
		switch op.Op {
		case "delete":
			result = deleteAt(result, op.Path)
		case "set":
			result = setAt(result, op.Path, op.Value)
		}
	}
	return result
}

func setAt(root any, path []string, value any) any {
	if len(path) == 0 {
		return jsonvalue.Clone(value)
	}
	return setRecursive(root, path, value)
}

func setRecursive(node any, path []string, value any) any {
	key := path[0]
	rest := path[1:]
	_, isObj := node.(map[string]any)

	if idx, err := strconv.Atoi(key); err == nil && !isObj {
		arr, ok := node.([]any)
		if !ok {
			arr = []any{}
		}
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		if len(rest) == 0 {
			arr[idx] = jsonvalue.Clone(value)
		} else {
			arr[idx] = setRecursive(arr[idx], rest, value)
		}
		return arr
	}

	obj, ok := node.(map[string]any)
	if !ok || obj == nil {
		obj = map[string]any{}
	}
	if len(rest) == 0 {
		obj[key] = jsonvalue.Clone(value)
	} else {
		obj[key] = setRecursive(obj[key], rest, value)
	}
	return obj
}

func deleteAt(root any, path []string) any {
	if len(path) == 0 {
		return root
	}
	return deleteRecursive(root, path)
}

func deleteRecursive(node any, path []string) any {
	key := path[0]
	rest := path[1:]
	_, isObj := node.(map[string]any)

	if idx, err := strconv.Atoi(key); err == nil && !isObj {
		arr, ok := node.([]any)
		if !ok || idx < 0 || idx >= len(arr) {
			return node
		}
		if len(rest) == 0 {
			return append(arr[:idx], arr[idx+1:]...)
		}
		arr[idx] = deleteRecursive(arr[idx], rest)
		return arr
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if len(rest) == 0 {
		delete(obj, key)
		return obj
	}
	if child, ok := obj[key]; ok {
		obj[key] = deleteRecursive(child, rest)
	}
	return obj
}
