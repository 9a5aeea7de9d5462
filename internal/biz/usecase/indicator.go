package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

const (
	// IndicatorExpiry is the hard lifetime of a typing indicator
	IndicatorExpiry = 120 * time.Second

	// DefaultIndicatorEmoji is the reaction shown while the agent works
	DefaultIndicatorEmoji = "Typing"

	indicatorRetryDelay    = time.Second
	indicatorDeferredDelay = 10 * time.Second
	indicatorCallTimeout   = 10 * time.Second
)

type typingState struct {
	messageID string
	handle    string
	startedAt time.Time
	expiry    *time.Timer
}

// EngagementIndicator shows a reaction on a message while the agent is
// composing a reply. Per message it moves none → active → removed.
// Removal failures are tolerated: an orphaned reaction is acceptable.
type EngagementIndicator struct {
	mu     sync.Mutex
	states map[string]*typingState

	reactions     repo.ReactionRepo
	emoji         string
	expiry        time.Duration
	retryDelay    time.Duration
	deferredDelay time.Duration
	now           func() time.Time
	logger        *slog.Logger

	// wg counts scheduled retries. Add happens under mu while !closed.
	wg     sync.WaitGroup
	closed bool
}

// NewEngagementIndicator creates an indicator using the given reaction emoji
func NewEngagementIndicator(reactions repo.ReactionRepo, emoji string, logger *slog.Logger) *EngagementIndicator {
	if emoji == "" {
		emoji = DefaultIndicatorEmoji
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EngagementIndicator{
		states:        make(map[string]*typingState),
		reactions:     reactions,
		emoji:         emoji,
		expiry:        IndicatorExpiry,
		retryDelay:    indicatorRetryDelay,
		deferredDelay: indicatorDeferredDelay,
		now:           time.Now,
		logger:        logger.With("component", "indicator"),
	}
}

// Start attaches the indicator to messageID. Failure leaves no state behind.
func (ind *EngagementIndicator) Start(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}

	ind.mu.Lock()
	_, active := ind.states[messageID]
	closed := ind.closed
	ind.mu.Unlock()
	if closed {
		return false
	}
	if active {
		return true
	}

	handle, err := ind.reactions.AddReaction(ctx, messageID, ind.emoji)
	if err != nil {
		ind.logger.Warn("indicator not shown", "message_id", messageID, "error", err)
		return false
	}

	st := &typingState{messageID: messageID, handle: handle, startedAt: ind.now()}
	ind.mu.Lock()
	if _, raced := ind.states[messageID]; raced || ind.closed {
		ind.mu.Unlock()
		// another Start won, or Shutdown ran meanwhile; drop our reaction
		ind.removeWithRetry(messageID, handle)
		return raced
	}
	st.expiry = time.AfterFunc(ind.expiry, func() {
		ind.logger.Debug("indicator expired", "message_id", messageID)
		ind.Complete(context.Background(), messageID)
	})
	ind.states[messageID] = st
	ind.mu.Unlock()
	return true
}

// Complete removes the indicator for messageID. Calling it for a message
// without an active indicator, or a second time, does nothing.
func (ind *EngagementIndicator) Complete(ctx context.Context, messageID string) {
	st := ind.take(messageID)
	if st == nil {
		return
	}
	ind.removeWithRetry(st.messageID, st.handle)
}

func (ind *EngagementIndicator) take(messageID string) *typingState {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	st, ok := ind.states[messageID]
	if !ok {
		return nil
	}
	delete(ind.states, messageID)
	if st.expiry != nil {
		st.expiry.Stop()
	}
	return st
}

// removeWithRetry tries once on the caller's goroutine. Failures are retried
// in the background after a short delay, then once more after the deferred
// delay. The handle is forgotten whatever the outcome.
func (ind *EngagementIndicator) removeWithRetry(messageID, handle string) {
	if ind.remove(messageID, handle) {
		return
	}
	ind.schedule(ind.retryDelay, func() {
		if ind.remove(messageID, handle) {
			return
		}
		ind.schedule(ind.deferredDelay, func() {
			if !ind.remove(messageID, handle) {
				ind.logger.Warn("indicator left behind", "message_id", messageID)
			}
		})
	})
}

// schedule runs fn after delay unless Shutdown has finished draining
func (ind *EngagementIndicator) schedule(delay time.Duration, fn func()) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.closed {
		return
	}
	ind.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer ind.wg.Done()
		fn()
	})
}

func (ind *EngagementIndicator) remove(messageID, handle string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), indicatorCallTimeout)
	defer cancel()
	if err := ind.reactions.RemoveReaction(ctx, messageID, handle); err != nil {
		ind.logger.Debug("indicator removal failed", "message_id", messageID, "error", err)
		return false
	}
	return true
}

// SweepStale completes indicators older than the expiry whose timer did not fire
func (ind *EngagementIndicator) SweepStale(ctx context.Context) int {
	cutoff := ind.now().Add(-ind.expiry)
	ind.mu.Lock()
	var stale []string
	for id, st := range ind.states {
		if st.startedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	ind.mu.Unlock()

	for _, id := range stale {
		ind.Complete(ctx, id)
	}
	return len(stale)
}

// Active returns the number of indicators currently shown
func (ind *EngagementIndicator) Active() int {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return len(ind.states)
}

// Shutdown stops every expiry timer and removes all active indicators.
// It waits for pending retries. Start fails afterwards.
func (ind *EngagementIndicator) Shutdown(ctx context.Context) {
	ind.mu.Lock()
	ids := make([]string, 0, len(ind.states))
	for id := range ind.states {
		ids = append(ids, id)
	}
	ind.mu.Unlock()

	for _, id := range ids {
		ind.Complete(ctx, id)
	}

	// Retries already scheduled still run; nothing new is scheduled after this
	ind.mu.Lock()
	ind.closed = true
	ind.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ind.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
