// Package hashsync implements tools-hash synchronization: a
// canonical-JSON sha256 hash over the visible tool list, with
// conditional not-modified short-circuiting and periodic forced refresh.
package hashsync

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

// Prefix is the required algorithm prefix for a well-formed if_none_match
// literal: "sha256:" followed by 64 lowercase hex characters.
const Prefix = "sha256:"

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseIfNoneMatch validates raw against the sha256:<64 hex> literal
// format. An invalid or absent value (wrong prefix, non-hex body, wrong
// length) is treated as if it were absent: fail open to a full refresh
// rather than reject the request.
func ParseIfNoneMatch(raw string) (hash string, ok bool) {
	if !strings.HasPrefix(raw, Prefix) {
		return "", false
	}
	body := raw[len(Prefix):]
	if !hexPattern.MatchString(body) {
		return "", false
	}
	return raw, true
}

// Hash computes sha256 over the canonical-JSON form of tools. When
// serverFingerprint is non-empty, the preimage is
// {"server_fingerprint": fp, "tools": tools} instead of just tools, so
// the hash can optionally be bound to the session/command that produced
// the tool list rather than the tool list alone.
func Hash(tools []store.Tool, serverFingerprint string) (string, error) {
	asValue := toolsToValue(tools)

	var preimage jsonvalue.Value
	if serverFingerprint != "" {
		preimage = map[string]any{
			"tools":              asValue,
			"server_fingerprint": serverFingerprint,
		}
	} else {
		preimage = asValue
	}

	canon, err := jsonvalue.CanonicalJSON(preimage)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

func toolsToValue(tools []store.Tool) []any {
	out := make([]any, len(tools))
	for i, t := range tools {
		m := map[string]any{"name": t.Name}
		if t.Description != "" {
			m["description"] = t.Description
		}
		if t.InputSchema != nil {
			m["inputSchema"] = t.InputSchema
		}
		out[i] = m
	}
	return out
}

// ServerFingerprint hashes session+command into a short binding token,
// used as the optional server_fingerprint preimage component.
func ServerFingerprint(session, command string) string {
	sum := sha256.Sum256([]byte(session + "\x00" + command))
	return hex.EncodeToString(sum[:])[:16]
}

// ScopeKey builds the "{session}:{server}:{profileFingerprint}" key used
// to index ToolsHashScope, so distinct tool-visibility profiles for the
// same session/server pair get independent hash bookkeeping.
func ScopeKey(session, server, profileFingerprint string) string {
	return session + ":" + server + ":" + profileFingerprint
}

// Decision is the outcome of evaluating a tools/list request's
// if_none_match against the scope's last-known hash.
type Decision struct {
	ShortCircuit bool
	Hash         string
}

// Evaluate decides whether the conditional request should short-circuit.
// refreshInterval is the Nth matching conditional request that bypasses
// the short-circuit to recover from drift (default 50, 0 disables the
// bypass). conditionalHits is the count *before* this request (the
// caller increments it only when the short-circuit actually fires).
func Evaluate(ifNoneMatch string, scope store.HashScope, refreshInterval int) Decision {
	hash, ok := ParseIfNoneMatch(ifNoneMatch)
	if !ok || scope.LastHash == "" || hash != scope.LastHash {
		return Decision{ShortCircuit: false}
	}
	if refreshInterval > 0 && (scope.ConditionalHits+1)%refreshInterval == 0 {
		return Decision{ShortCircuit: false}
	}
	return Decision{ShortCircuit: true, Hash: hash}
}
