// Package resultcompress implements result compression: the
// "lapc-json-v1" envelope combining key-aliasing with columnar
// row-packing, gated by a token-savings accept test. The token-estimate
// heuristic (~4 characters per token) follows the common
// characters-per-token rule of thumb used for rough token accounting.
package resultcompress

import (
	"encoding/json"
	"sort"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

// Encoding is the envelope's discriminator value.
const Encoding = "lapc-json-v1"

// Mode selects how aggressively keys are aliased.
type Mode string

const (
	Off        Mode = "off"
	Balanced   Mode = "balanced"
	Aggressive Mode = "aggressive"
)

// Options configures one compression attempt.
type Options struct {
	Mode                 Mode
	MinPayloadBytes      int
	MinCompressibility   float64
	ColumnarMinRows      int
	ColumnarMinFields    int
	MinTokenSavingsAbs   int
	MinTokenSavingsRatio float64
	StripEmpty           bool
}

// Envelope is the wire shape of a "lapc-json-v1" result.
type Envelope struct {
	Encoding        string            `json:"encoding"`
	Compressed      bool              `json:"compressed"`
	Mode            string            `json:"mode,omitempty"`
	OriginalBytes   int               `json:"originalBytes"`
	CompressedBytes int               `json:"compressedBytes"`
	SavedBytes      int               `json:"savedBytes"`
	SavedRatio      float64           `json:"savedRatio"`
	Data            jsonvalue.Value   `json:"data"`
	Keys            map[string]string `json:"keys,omitempty"`
	KeysRef         string            `json:"keysRef,omitempty"`
}

// PreGate reports whether value is even a candidate for compression: its
// JSON size must meet min_payload_bytes and its estimated compressibility
// must meet min_compressibility.
func PreGate(value jsonvalue.Value, opts Options) (bool, int) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, 0
	}
	size := len(raw)
	if size < opts.MinPayloadBytes {
		return false, size
	}
	if EstimateCompressibility(value) < opts.MinCompressibility {
		return false, size
	}
	return true, size
}

// EstimateCompressibility combines repeated-key ratio, repeated-scalar
// ratio, and homogeneous-array ratio into a single [0,1] heuristic score.
func EstimateCompressibility(value jsonvalue.Value) float64 {
	keyCounts := map[string]int{}
	scalarCounts := map[string]int{}
	homogeneousArrays, totalArrays := 0, 0
	walkForStats(value, keyCounts, scalarCounts, &homogeneousArrays, &totalArrays)

	keyOccurrences, uniqueKeys := 0, len(keyCounts)
	for _, c := range keyCounts {
		keyOccurrences += c
	}
	repeatedKeyRatio := ratio(keyOccurrences-uniqueKeys, keyOccurrences)

	scalarOccurrences, uniqueScalars := 0, len(scalarCounts)
	for _, c := range scalarCounts {
		scalarOccurrences += c
	}
	repeatedScalarRatio := ratio(scalarOccurrences-uniqueScalars, scalarOccurrences)

	homogeneousRatio := ratio(homogeneousArrays, totalArrays)

	return (repeatedKeyRatio + repeatedScalarRatio + homogeneousRatio) / 3
}

func ratio(num, denom int) float64 {
	if denom <= 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

func walkForStats(v jsonvalue.Value, keyCounts, scalarCounts map[string]int, homogeneousArrays, totalArrays *int) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			keyCounts[k]++
			walkForStats(val, keyCounts, scalarCounts, homogeneousArrays, totalArrays)
		}
	case []any:
		*totalArrays++
		if isHomogeneousObjectArray(t) {
			*homogeneousArrays++
		}
		for _, item := range t {
			walkForStats(item, keyCounts, scalarCounts, homogeneousArrays, totalArrays)
		}
	case string:
		scalarCounts["s:"+t]++
	case float64:
		scalarCounts["n:"+formatFloat(t)]++
	case bool:
		scalarCounts["b"]++
	}
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func isHomogeneousObjectArray(arr []any) bool {
	if len(arr) < 2 {
		return false
	}
	var keySet []string
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return false
		}
		keys := sortedKeys(m)
		if i == 0 {
			keySet = keys
			continue
		}
		if !equalStrings(keySet, keys) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildAliasTable counts every key occurrence in value and assigns
// aliases k0, k1, ... to keys appearing at least minOccurrence times and
// longer than 2 characters, sorted by (frequency desc, length desc).
// Only aliases strictly shorter than the original key are kept.
func BuildAliasTable(value jsonvalue.Value, minOccurrence int) map[string]string {
	keyCounts := map[string]int{}
	countKeysOnly(value, keyCounts)

	type candidate struct {
		key   string
		count int
	}
	candidates := make([]candidate, 0, len(keyCounts))
	for k, c := range keyCounts {
		if c >= minOccurrence && len(k) > 2 {
			candidates = append(candidates, candidate{k, c})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		if len(candidates[i].key) != len(candidates[j].key) {
			return len(candidates[i].key) > len(candidates[j].key)
		}
		return candidates[i].key < candidates[j].key
	})

	aliases := make(map[string]string, len(candidates))
	next := 0
	for _, c := range candidates {
		alias := aliasName(next)
		// An alias colliding with a real key in the tree would be
		// un-renamed into that key on decompress; skip it.
		for keyCounts[alias] > 0 {
			next++
			alias = aliasName(next)
		}
		if len(alias) < len(c.key) {
			aliases[c.key] = alias
			next++
		}
	}
	return aliases
}

func aliasName(i int) string {
	return "k" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func countKeysOnly(v jsonvalue.Value, keyCounts map[string]int) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			keyCounts[k]++
			countKeysOnly(val, keyCounts)
		}
	case []any:
		for _, item := range t {
			countKeysOnly(item, keyCounts)
		}
	}
}

// renameKeys returns a new tree with every object key rewritten via
// aliases (original -> alias), recursively.
func renameKeys(v jsonvalue.Value, aliases map[string]string) jsonvalue.Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			newKey := k
			if a, ok := aliases[k]; ok {
				newKey = a
			}
			out[newKey] = renameKeys(val, aliases)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = renameKeys(item, aliases)
		}
		return out
	default:
		return t
	}
}

// unaliasKeys is the inverse of renameKeys: aliasToOriginal maps
// alias -> original.
func unaliasKeys(v jsonvalue.Value, aliasToOriginal map[string]string) jsonvalue.Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			origKey := k
			if o, ok := aliasToOriginal[k]; ok {
				origKey = o
			}
			out[origKey] = unaliasKeys(val, aliasToOriginal)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = unaliasKeys(item, aliasToOriginal)
		}
		return out
	default:
		return t
	}
}

// stripNulls removes null-valued object entries recursively. Lossy by
// nature — Decompress cannot restore stripped entries — so it only runs
// when the caller opted in via Options.StripEmpty.
func stripNulls(v jsonvalue.Value) jsonvalue.Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = stripNulls(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = stripNulls(item)
		}
		return out
	default:
		return t
	}
}

// columnarMarkerKey is the sentinel object key identifying a packed
// homogeneous-array table on the wire.
const columnarMarkerKey = "~t"

// columnarize walks v (already key-renamed) and rewrites any homogeneous
// array of objects meeting the row/field thresholds into the
// {"~t": {"c": [...], "r": [[...]]}} columnar form.
func columnarize(v jsonvalue.Value, minRows, minFields int) jsonvalue.Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = columnarize(val, minRows, minFields)
		}
		return out
	case []any:
		if packed, ok := tryPack(t, minRows, minFields); ok {
			return packed
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = columnarize(item, minRows, minFields)
		}
		return out
	default:
		return t
	}
}

func tryPack(arr []any, minRows, minFields int) (any, bool) {
	if len(arr) < minRows || !isHomogeneousObjectArray(arr) {
		return nil, false
	}
	cols := sortedKeys(arr[0].(map[string]any))
	if len(cols) < minFields {
		return nil, false
	}
	rows := make([]any, len(arr))
	for i, item := range arr {
		m := item.(map[string]any)
		row := make([]any, len(cols))
		for ci, c := range cols {
			row[ci] = m[c]
		}
		rows[i] = row
	}
	colsAny := make([]any, len(cols))
	for i, c := range cols {
		colsAny[i] = c
	}
	return map[string]any{
		columnarMarkerKey: map[string]any{"c": colsAny, "r": rows},
	}, true
}

// expandColumnar is the inverse of columnarize: it walks the tree and
// expands every packed table back into an array of objects.
func expandColumnar(v jsonvalue.Value) jsonvalue.Value {
	switch t := v.(type) {
	case map[string]any:
		if table, ok := t[columnarMarkerKey]; ok && len(t) == 1 {
			if unpacked, ok := unpackTable(table); ok {
				return unpacked
			}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = expandColumnar(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = expandColumnar(item)
		}
		return out
	default:
		return t
	}
}

func unpackTable(table any) ([]any, bool) {
	m, ok := table.(map[string]any)
	if !ok {
		return nil, false
	}
	colsAny, ok := m["c"].([]any)
	if !ok {
		return nil, false
	}
	rowsAny, ok := m["r"].([]any)
	if !ok {
		return nil, false
	}
	cols := make([]string, len(colsAny))
	for i, c := range colsAny {
		cols[i], _ = c.(string)
	}
	out := make([]any, len(rowsAny))
	for ri, rowAny := range rowsAny {
		row, ok := rowAny.([]any)
		if !ok {
			return nil, false
		}
		obj := make(map[string]any, len(cols))
		for ci, c := range cols {
			if ci < len(row) {
				obj[c] = expandColumnar(row[ci])
			}
		}
		out[ri] = obj
	}
	return out, true
}

// Compress attempts lapc-json-v1 compression of value under opts. A value
// whose JSON is shorter than opts.MinPayloadBytes is rejected up front. It
// returns the envelope and true if the accept-gate passed; otherwise it
// returns a zero Envelope and false, meaning the caller should forward
// value unmodified.
func Compress(value jsonvalue.Value, opts Options) (Envelope, bool) {
	if opts.Mode == Off || opts.Mode == "" {
		return Envelope{}, false
	}

	minOccurrence := 2
	if opts.Mode == Aggressive {
		minOccurrence = 1
	}

	originalBytes, err := json.Marshal(value)
	if err != nil {
		return Envelope{}, false
	}
	if len(originalBytes) < opts.MinPayloadBytes {
		return Envelope{}, false
	}

	aliases := BuildAliasTable(value, minOccurrence)
	renamed := renameKeys(value, aliases)
	if opts.StripEmpty {
		renamed = stripNulls(renamed)
	}

	columnarMinRows := opts.ColumnarMinRows
	if columnarMinRows <= 0 {
		columnarMinRows = 2
	}
	columnarMinFields := opts.ColumnarMinFields
	if columnarMinFields <= 0 {
		columnarMinFields = 2
	}
	packed := columnarize(renamed, columnarMinRows, columnarMinFields)

	compressedBytes, err := json.Marshal(packed)
	if err != nil {
		return Envelope{}, false
	}

	originalTokens := jsonvalue.EstimateTokens(string(originalBytes))
	compressedTokens := jsonvalue.EstimateTokens(string(compressedBytes))
	savedTokens := originalTokens - compressedTokens

	threshold := opts.MinTokenSavingsAbs
	ratioThreshold := int(float64(originalTokens) * opts.MinTokenSavingsRatio)
	if ratioThreshold > threshold {
		threshold = ratioThreshold
	}
	if savedTokens < threshold {
		return Envelope{}, false
	}

	aliasToOriginal := make(map[string]string, len(aliases))
	for orig, alias := range aliases {
		aliasToOriginal[alias] = orig
	}

	savedBytes := len(originalBytes) - len(compressedBytes)
	var savedRatio float64
	if len(originalBytes) > 0 {
		savedRatio = float64(savedBytes) / float64(len(originalBytes))
	}

	return Envelope{
		Encoding:        Encoding,
		Compressed:      true,
		Mode:            string(opts.Mode),
		OriginalBytes:   len(originalBytes),
		CompressedBytes: len(compressedBytes),
		SavedBytes:      savedBytes,
		SavedRatio:      savedRatio,
		Data:            packed,
		Keys:            aliasToOriginal,
	}, true
}

// Decompress inverts Compress: expand columnar tables, then rename
// aliased keys back to their originals using keys (alias -> original).
func Decompress(envelope Envelope) jsonvalue.Value {
	expanded := expandColumnar(envelope.Data)
	return unaliasKeys(expanded, envelope.Keys)
}

// KeyDigest computes a stable fingerprint for an alias table, used as
// the shared key dictionary's keysRef. xxhash rather than sha256, since
// this digest is purely an internal bookkeeping handle.
func KeyDigest(aliasToOriginal map[string]string) string {
	keys := make([]string, 0, len(aliasToOriginal))
	for k := range aliasToOriginal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, aliasToOriginal[k]...)
		buf = append(buf, ';')
	}
	return xxhashHex(buf)
}
