// Package respcache implements the response cache: keying, mutating-tool
// eligibility, adaptive TTL widening/narrowing on observed stability, and
// mutation invalidation. It sits on top of the mutex+map+eviction store
// in internal/domain/store.Store.
package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
)

// defaultMutatingVerbs is the built-in heuristic verb set, matched as
// substrings of the lowercased tool name.
var defaultMutatingVerbs = []string{
	"create", "update", "delete", "remove", "set", "write", "insert",
	"patch", "post", "put", "merge", "upload", "commit", "navigate",
	"open", "close", "click", "type", "press", "select", "hover",
	"drag", "drop", "scroll", "evaluate", "execute", "goto", "reload",
	"back", "forward",
}

// VerbSet is an overridable mutating-verb list: a per-tool config
// override may replace or extend the default set.
type VerbSet struct {
	verbs []string
}

// DefaultVerbSet returns the built-in default mutating-verb set.
func DefaultVerbSet() VerbSet {
	return VerbSet{verbs: defaultMutatingVerbs}
}

// WithExtra returns a VerbSet that additionally matches extra verbs,
// supporting a per-tool "extra_mutating_verbs" override.
func (v VerbSet) WithExtra(extra []string) VerbSet {
	out := make([]string, 0, len(v.verbs)+len(extra))
	out = append(out, v.verbs...)
	out = append(out, extra...)
	return VerbSet{verbs: out}
}

// Override returns a VerbSet using only the given verbs, supporting a
// per-tool "mutating_verbs" full override.
func Override(verbs []string) VerbSet {
	return VerbSet{verbs: verbs}
}

// IsMutating reports whether toolName contains any verb in the set as a
// lowercase substring.
func (v VerbSet) IsMutating(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, verb := range v.verbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// Eligible reports whether a tool-call result is eligible for caching:
// caching enabled globally and for the tool, and either
// cacheMutatingTools is set or the tool is not mutating.
func Eligible(cachingEnabledGlobal, cachingEnabledForTool, cacheMutatingTools bool, verbs VerbSet, toolName string, isError bool) bool {
	if isError {
		return false
	}
	if !cachingEnabledGlobal || !cachingEnabledForTool {
		return false
	}
	if cacheMutatingTools {
		return true
	}
	return !verbs.IsMutating(toolName)
}

// Key builds the "{session}:{server}:{tool}:{sha256(canonical(args))}"
// cache key.
func Key(session, server, tool string, args jsonvalue.Value) (string, error) {
	canon, err := jsonvalue.CanonicalJSON(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return session + ":" + server + ":" + tool + ":" + hex.EncodeToString(sum[:]), nil
}

// ScopePrefix builds the "{session}:{server}:" prefix used for mutation
// invalidation.
func ScopePrefix(session, server string) string {
	return session + ":" + server + ":"
}

// TTLDecision is the outcome of the adaptive-TTL computation.
type TTLDecision struct {
	TTL     time.Duration
	Widened bool
	Changed bool
}

// AdaptiveTTL implements the widen/narrow rule: unchanged from the
// previous raw result widens toward ttlMax, changed narrows toward
// ttlMin, and a first-ever write uses base unmodified. The result is
// always clamped into [ttlMin, ttlMax].
func AdaptiveTTL(baseTTL, ttlMin, ttlMax time.Duration, previous jsonvalue.Value, hasPrevious bool, current jsonvalue.Value) TTLDecision {
	if !hasPrevious {
		return TTLDecision{TTL: clamp(baseTTL, ttlMin, ttlMax)}
	}

	unchanged := jsonvalue.Equal(previous, current)
	var ttl time.Duration
	if unchanged {
		ttl = time.Duration(math.Floor(float64(baseTTL) * 1.5))
	} else {
		ttl = time.Duration(math.Floor(float64(baseTTL) * 0.5))
	}
	return TTLDecision{TTL: clamp(ttl, ttlMin, ttlMax), Widened: unchanged, Changed: !unchanged}
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
