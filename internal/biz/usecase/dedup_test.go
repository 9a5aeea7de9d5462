package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestDedupLedger_SeenTwiceWithinTTL(t *testing.T) {
	clock := newFakeClock()
	l := NewDedupLedger()
	l.now = clock.Now

	assert.False(t, l.IsDuplicate("om_1"))
	assert.True(t, l.IsDuplicate("om_1"))

	clock.Advance(DedupTTL + time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.IsDuplicate("om_1"))
}

func TestDedupLedger_EmptyIDPassesThrough(t *testing.T) {
	l := NewDedupLedger()

	assert.False(t, l.IsDuplicate(""))
	assert.False(t, l.IsDuplicate(""))
	assert.Equal(t, 0, l.Len())
}

func TestDedupLedger_ExpiredEntryIsRefreshed(t *testing.T) {
	clock := newFakeClock()
	l := NewDedupLedger()
	l.now = clock.Now

	l.IsDuplicate("om_1")
	clock.Advance(DedupTTL)
	assert.False(t, l.IsDuplicate("om_1"), "entry at exactly TTL counts as expired")
	assert.True(t, l.IsDuplicate("om_1"))
}

func TestDedupLedger_SoftCapPrunesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	l := NewDedupLedger()
	l.now = clock.Now
	l.softCap = 3

	l.IsDuplicate("old_1")
	l.IsDuplicate("old_2")
	clock.Advance(DedupTTL + time.Minute)
	l.IsDuplicate("new_1")
	l.IsDuplicate("new_2")

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.IsDuplicate("new_1"))
	assert.False(t, l.IsDuplicate("old_1"))
}

func TestDedupLedger_SoftCapKeepsFreshEntries(t *testing.T) {
	l := NewDedupLedger()
	l.softCap = 2

	for i := 0; i < 5; i++ {
		l.IsDuplicate(fmt.Sprintf("om_%d", i))
	}

	assert.Equal(t, 5, l.Len())
	for i := 0; i < 5; i++ {
		assert.True(t, l.IsDuplicate(fmt.Sprintf("om_%d", i)))
	}
}
