package usecase

import (
	"sync"
	"time"
)

const (
	// DedupTTL is how long an event id is remembered
	DedupTTL = 5 * time.Minute

	defaultDedupSoftCap = 10000
)

// DedupLedger remembers recently seen event ids so that redeliveries from
// either transport are processed once.
type DedupLedger struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	softCap int
	now     func() time.Time
}

// NewDedupLedger creates a ledger with the default TTL and soft cap
func NewDedupLedger() *DedupLedger {
	return &DedupLedger{
		seen:    make(map[string]time.Time),
		ttl:     DedupTTL,
		softCap: defaultDedupSoftCap,
		now:     time.Now,
	}
}

// IsDuplicate reports whether eventID was already seen within the TTL and
// records it otherwise. An empty id is never a duplicate.
func (l *DedupLedger) IsDuplicate(eventID string) bool {
	if eventID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if seenAt, ok := l.seen[eventID]; ok && now.Sub(seenAt) < l.ttl {
		return true
	}

	l.seen[eventID] = now
	if len(l.seen) > l.softCap {
		l.pruneLocked(now)
	}
	return false
}

// Sweep drops every expired entry and returns how many were removed
func (l *DedupLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now())
}

// Len returns the number of remembered ids
func (l *DedupLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func (l *DedupLedger) pruneLocked(now time.Time) int {
	removed := 0
	for id, seenAt := range l.seen {
		if now.Sub(seenAt) >= l.ttl {
			delete(l.seen, id)
			removed++
		}
	}
	return removed
}
