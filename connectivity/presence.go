package connectivity

import (
	"sync"
	"time"
)

// Presence remembers which users made an authenticated request recently.
// It answers the "is anybody still signed in" question for deferred retries.
type Presence struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewPresence(ttl time.Duration) *Presence {
	return &Presence{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

// Touch marks userID as active and reports whether this starts a new
// sign-in (the user was absent or expired).
func (p *Presence) Touch(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	last, ok := p.seen[userID]
	p.seen[userID] = now
	return !ok || now.Sub(last) > p.ttl
}

func (p *Presence) Forget(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, userID)
}

// SignedIn reports whether any user is active. Expired entries are pruned.
func (p *Presence) SignedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	active := false
	for id, last := range p.seen {
		if now.Sub(last) > p.ttl {
			delete(p.seen, id)
			continue
		}
		active = true
	}
	return active
}
