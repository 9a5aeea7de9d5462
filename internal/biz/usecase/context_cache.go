package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

// NameResolver maps sender ids to display names
type NameResolver interface {
	Resolve(ctx context.Context, id string) string
}

// ContextCache keeps a bounded history buffer per conversation or thread.
// After a restart each key is seeded at most once from the remote history API.
type ContextCache struct {
	mu         sync.Mutex
	buffers    map[string][]domain.HistoryEntry
	backfilled map[string]struct{}

	history      repo.HistoryRepo
	names        NameResolver
	defaultLimit int
	logger       *slog.Logger
}

// NewContextCache creates a context cache
func NewContextCache(history repo.HistoryRepo, names NameResolver, defaultLimit int, logger *slog.Logger) *ContextCache {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextCache{
		buffers:      make(map[string][]domain.HistoryEntry),
		backfilled:   make(map[string]struct{}),
		history:      history,
		names:        names,
		defaultLimit: defaultLimit,
		logger:       logger.With("component", "context"),
	}
}

func (c *ContextCache) effectiveLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	return c.defaultLimit
}

// Record appends entry to the buffer for key unless its message id is
// already present. The buffer is compacted to limit once it exceeds 2×limit.
func (c *ContextCache) Record(key string, entry domain.HistoryEntry, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(key, entry, c.effectiveLimit(limit))
}

func (c *ContextCache) recordLocked(key string, entry domain.HistoryEntry, limit int) {
	buf := c.buffers[key]
	if entry.MessageID != "" {
		for _, existing := range buf {
			if existing.MessageID == entry.MessageID {
				return
			}
		}
	}
	buf = append(buf, entry)
	c.buffers[key] = compact(buf, limit)
}

func compact(buf []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if len(buf) <= 2*limit {
		return buf
	}
	out := make([]domain.HistoryEntry, limit)
	copy(out, buf[len(buf)-limit:])
	return out
}

// Read returns a copy of the most recent entries for key, without excludeMessageID
func (c *ContextCache) Read(key, excludeMessageID string, limit int) []domain.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(key, excludeMessageID, c.effectiveLimit(limit))
}

func (c *ContextCache) readLocked(key, excludeMessageID string, limit int) []domain.HistoryEntry {
	buf := c.buffers[key]
	out := make([]domain.HistoryEntry, 0, limit)
	for i := len(buf) - 1; i >= 0 && len(out) < limit; i-- {
		if excludeMessageID != "" && buf[i].MessageID == excludeMessageID {
			continue
		}
		out = append(out, buf[i])
	}
	// collected newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ReadWithFallback reads key, seeding it from the remote history API the
// first time it is touched in this process. The key is marked before the
// fetch, so concurrent callers and failed fetches never cause a second one.
func (c *ContextCache) ReadWithFallback(ctx context.Context, containerID, excludeMessageID, containerKind, key string, limit int) []domain.HistoryEntry {
	limit = c.effectiveLimit(limit)

	c.mu.Lock()
	_, done := c.backfilled[key]
	if !done {
		c.backfilled[key] = struct{}{}
	}
	c.mu.Unlock()

	if !done && c.history != nil {
		c.backfill(ctx, containerID, excludeMessageID, containerKind, key, limit)
	}
	return c.Read(key, excludeMessageID, limit)
}

func (c *ContextCache) backfill(ctx context.Context, containerID, excludeMessageID, containerKind, key string, limit int) {
	remote, err := c.history.FetchRecent(ctx, containerID, containerKind, limit+1)
	if err != nil {
		c.logger.Warn("history backfill failed", "key", key, "container", containerID, "error", err)
		return
	}

	entries := make([]domain.HistoryEntry, 0, len(remote))
	for _, msg := range remote {
		if msg.MessageID == "" || msg.MessageID == excludeMessageID {
			continue
		}
		content := domain.ExtractContent(msg.ContentKind, msg.RawContent, msg.Mentions)
		name := msg.SenderID
		if c.names != nil && msg.SenderID != "" {
			name = c.names.Resolve(ctx, msg.SenderID)
		}
		entries = append(entries, domain.HistoryEntry{
			MessageID:  msg.MessageID,
			SenderID:   msg.SenderID,
			SenderName: name,
			Text:       content.Text,
			Timestamp:  msg.CreateTime,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.buffers[key]
	present := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		present[e.MessageID] = struct{}{}
	}
	merged := make([]domain.HistoryEntry, 0, len(entries)+len(existing))
	for _, e := range entries {
		if _, ok := present[e.MessageID]; ok {
			continue
		}
		present[e.MessageID] = struct{}{}
		merged = append(merged, e)
	}
	merged = append(merged, existing...)
	c.buffers[key] = compact(merged, limit)

	c.logger.Debug("history backfilled", "key", key, "fetched", len(remote), "kept", len(merged))
}

// PinRoot moves the root message to the front of entries. When the root
// has aged out of the window it is taken from the full buffer for key.
// If it is nowhere to be found entries are returned unchanged.
func (c *ContextCache) PinRoot(entries []domain.HistoryEntry, rootID, key string) []domain.HistoryEntry {
	if rootID == "" {
		return entries
	}

	for i, e := range entries {
		if e.MessageID != rootID {
			continue
		}
		if i == 0 {
			return entries
		}
		out := make([]domain.HistoryEntry, 0, len(entries))
		out = append(out, e)
		out = append(out, entries[:i]...)
		out = append(out, entries[i+1:]...)
		return out
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.buffers[key] {
		if e.MessageID == rootID {
			out := make([]domain.HistoryEntry, 0, len(entries)+1)
			out = append(out, e)
			return append(out, entries...)
		}
	}
	return entries
}

// Len returns how many keys hold a buffer
func (c *ContextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}
