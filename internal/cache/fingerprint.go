package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Keyer derives cache keys from prompt text.
//
// By default the key covers the prompt only, so the same prompt hits the same
// entry regardless of which provider answered it. Scoping the key by provider
// (ScopeProvider) avoids serving stale cross-provider answers after a
// credential change, at the cost of a cold cache per provider.
type Keyer struct {
	// ScopeProvider includes the provider tag in the derived key.
	ScopeProvider bool
}

// Fingerprint returns the deterministic cache key for prompt. The prompt is
// trimmed before hashing so incidental whitespace does not defeat the cache.
// provider is ignored unless ScopeProvider is set.
func (k Keyer) Fingerprint(provider, prompt string) string {
	h := sha256.New()
	if k.ScopeProvider {
		h.Write([]byte(provider))
		h.Write([]byte{0})
	}
	h.Write([]byte(strings.TrimSpace(prompt)))
	return "ai:" + hex.EncodeToString(h.Sum(nil))
}
