package cache

import (
	"sync"
	"time"
)

// cachedIdentity represents one resolved account reference
type cachedIdentity struct {
	UserID    string
	Timestamp time.Time
}

// Identities caches email-to-account resolutions so repeat turns on a
// connection do not hit the users table every time. Entries expire after the
// configured TTL; a negative resolution (no such account) is cached too.
type Identities struct {
	entries sync.Map
	ttl     time.Duration
}

// NewIdentities creates an identity cache with the given TTL.
func NewIdentities(ttl time.Duration) *Identities {
	return &Identities{ttl: ttl}
}

// Get returns the cached user ID for an email. The second result is false on
// a miss or an expired entry.
func (c *Identities) Get(email string) (string, bool) {
	val, ok := c.entries.Load(email)
	if !ok {
		return "", false
	}
	cached := val.(cachedIdentity)
	if time.Since(cached.Timestamp) > c.ttl {
		c.entries.Delete(email)
		return "", false
	}
	return cached.UserID, true
}

// Put stores a resolution. userID may be empty for an unresolved email.
func (c *Identities) Put(email, userID string) {
	c.entries.Store(email, cachedIdentity{
		UserID:    userID,
		Timestamp: time.Now(),
	})
}
