package proxy

import (
	"crypto/sha256"
	"encoding/hex"
)

// Session carries the small amount of per-connection state that
// outlives any single request: whether the client negotiated the
// tools-hash-sync extension, and the identity used to key cache,
// history, and tools-hash scopes.
type Session struct {
	ID              string
	ServerName      string
	UpstreamCommand string

	HashSyncNegotiated bool
}

// ScopeKey returns the "{session}:{server}" prefix used to key cache and
// history entries, and invalidate them on mutation.
func (s *Session) ScopeKey() string {
	return s.ID + ":" + s.ServerName
}

// ProfileFingerprint returns a short, stable identifier for the active
// server profile, used as the third segment of the tools-hash scope key:
// "session:server:profileFingerprint".
func ProfileFingerprint(serverName, matchedProfile string) string {
	sum := sha256.Sum256([]byte(serverName + "|" + matchedProfile))
	return hex.EncodeToString(sum[:])[:16]
}
