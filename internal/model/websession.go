package model

import "time"

// TokenTTL is how long a harvested CSRF token is assumed valid. The
// provider invalidates around 30 minutes; this guards 5 minutes under that
// to avoid racing an in-flight request against expiry.
const TokenTTL = 25 * time.Minute

// TokenCacheEntry is a cached CSRF-style token harvested from the
// provider's root page.
type TokenCacheEntry struct {
	Token       string
	ExtractedAt time.Time
}

// Valid reports whether the entry is still within TokenTTL of now.
func (e TokenCacheEntry) Valid(now time.Time) bool {
	return !e.ExtractedAt.IsZero() && now.Sub(e.ExtractedAt) < TokenTTL
}

// Cookies are the session cookies a web-session client needs. Presence of
// both fields indicates the host runtime's cookie store considers the user
// authenticated against the provider's domain.
type Cookies struct {
	PSID    string
	PSIDTS  string
}

// Authenticated reports whether both required cookies are present.
func (c Cookies) Authenticated() bool {
	return c.PSID != "" && c.PSIDTS != ""
}
