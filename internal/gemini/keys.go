package gemini

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// keyPin records which API key a session is using and since when
type keyPin struct {
	key      string
	pinnedAt time.Time
}

// KeyPool assigns API keys to sessions round-robin. A session keeps its key
// until an auth error forces reassignment or the pin outlives the TTL. With
// a single configured key the pool degenerates to always returning it.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	next   int
	pinTTL time.Duration

	pins      map[string]keyPin
	errCounts map[string]int
}

// NewKeyPool creates a pool over the configured keys
func NewKeyPool(keys []string, pinTTL time.Duration) *KeyPool {
	return &KeyPool{
		keys:      keys,
		pinTTL:    pinTTL,
		pins:      make(map[string]keyPin),
		errCounts: make(map[string]int),
	}
}

// KeyFor returns the API key pinned to the session, assigning one round-robin
// on first use or after pin expiry
func (p *KeyPool) KeyFor(sessionKey string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pin, ok := p.pins[sessionKey]; ok && time.Since(pin.pinnedAt) <= p.pinTTL {
		return pin.key
	}
	return p.assignLocked(sessionKey)
}

// Rotate reassigns the session to the next key after an auth error and bumps
// the failed key's error counter. Returns the new key.
func (p *KeyPool) Rotate(sessionKey string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pin, ok := p.pins[sessionKey]; ok {
		p.errCounts[pin.key]++
		log.Warnf("API key rotation for session %s (key error count: %d)", sessionKey, p.errCounts[pin.key])
	}
	return p.assignLocked(sessionKey)
}

// ErrorCount returns the accumulated auth-error count for a key
func (p *KeyPool) ErrorCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errCounts[key]
}

// Sweep drops expired session pins
func (p *KeyPool) Sweep(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sessionKey, pin := range p.pins {
		if now.Sub(pin.pinnedAt) > p.pinTTL {
			delete(p.pins, sessionKey)
		}
	}
}

// assignLocked pins the next key round-robin. Caller must hold the lock.
func (p *KeyPool) assignLocked(sessionKey string) string {
	key := p.keys[p.next%len(p.keys)]
	p.next++
	p.pins[sessionKey] = keyPin{key: key, pinnedAt: time.Now()}
	return key
}
