package relay

import (
	"sync"
	"time"
)

// seenSet remembers message ids for a fixed window so redelivered callbacks
// are answered once. A zero ttl disables it.
type seenSet struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
}

func newSeenSet(ttl time.Duration) *seenSet {
	return &seenSet{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// firstSeen records id and reports whether it was not already recorded
// within the window.
func (s *seenSet) firstSeen(id string) bool {
	if s == nil || s.ttl <= 0 || id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if expires, ok := s.seen[id]; ok && now.Before(expires) {
		return false
	}
	s.seen[id] = now.Add(s.ttl)
	return true
}

// sweep drops expired ids at most once per window. Callers hold mu.
func (s *seenSet) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	for id, expires := range s.seen {
		if !now.Before(expires) {
			delete(s.seen, id)
		}
	}
	s.lastSweep = now
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
