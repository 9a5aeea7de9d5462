package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

const (
	// IdentityTTL is how long a resolved name is trusted
	IdentityTTL = 10 * time.Minute

	// PermissionNoticeCooldown limits operator notifications about missing scopes
	PermissionNoticeCooldown = 5 * time.Minute
)

// OperatorNotifier delivers a short notice to whoever operates the bot
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, text string) error
}

// IdentityResolver maps sender ids to display names through a TTL cache
// that survives restarts via a snapshot file.
type IdentityResolver struct {
	mu      sync.Mutex
	entries map[string]domain.IdentityEntry
	dirty   bool

	directory repo.DirectoryRepo
	snapshot  repo.IdentitySnapshotStore
	notifier  OperatorNotifier
	limiter   *rate.Limiter

	selfIDs  map[string]struct{}
	selfName string
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewIdentityResolver creates a resolver. selfIDs are the bot's own
// identifiers and resolve to selfName without a remote call.
func NewIdentityResolver(directory repo.DirectoryRepo, snapshot repo.IdentitySnapshotStore, selfName string, selfIDs []string, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	ids := make(map[string]struct{}, len(selfIDs))
	for _, id := range selfIDs {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &IdentityResolver{
		entries:   make(map[string]domain.IdentityEntry),
		directory: directory,
		snapshot:  snapshot,
		limiter:   rate.NewLimiter(rate.Every(PermissionNoticeCooldown), 1),
		selfIDs:   ids,
		selfName:  selfName,
		ttl:       IdentityTTL,
		now:       time.Now,
		logger:    logger.With("component", "identity"),
	}
}

// SetNotifier wires the operator notification path
func (r *IdentityResolver) SetNotifier(n OperatorNotifier) {
	r.notifier = n
}

// AddSelfID registers another identifier of the bot itself
func (r *IdentityResolver) AddSelfID(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.selfIDs[id] = struct{}{}
	r.mu.Unlock()
}

// Resolve returns a display name for id. It never fails: on lookup errors
// it falls back to an expired cached name, then to the raw id.
func (r *IdentityResolver) Resolve(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}

	r.mu.Lock()
	if _, ok := r.selfIDs[id]; ok && r.selfName != "" {
		r.mu.Unlock()
		return r.selfName
	}
	cached, hit := r.entries[id]
	if hit && !cached.Expired(r.now()) {
		r.mu.Unlock()
		return cached.DisplayName
	}
	r.mu.Unlock()

	if r.directory == nil {
		return fallbackName(cached, hit, id)
	}

	name, err := r.directory.LookupName(ctx, id)
	if err == nil && name != "" {
		r.mu.Lock()
		r.entries[id] = domain.IdentityEntry{ID: id, DisplayName: name, ExpiresAt: r.now().Add(r.ttl)}
		r.dirty = true
		r.mu.Unlock()
		return name
	}

	var permErr *domain.PermissionError
	if errors.As(err, &permErr) {
		r.logger.Warn("identity lookup lacks permission", "id", id, "code", permErr.Code)
		r.notifyPermission(ctx, permErr)
	} else if err != nil {
		r.logger.Warn("identity lookup failed", "id", id, "error", err)
	}
	return fallbackName(cached, hit, id)
}

func fallbackName(cached domain.IdentityEntry, hit bool, id string) string {
	if hit && cached.DisplayName != "" {
		return cached.DisplayName
	}
	return id
}

func (r *IdentityResolver) notifyPermission(ctx context.Context, permErr *domain.PermissionError) {
	if r.notifier == nil || !r.limiter.AllowN(r.now(), 1) {
		return
	}
	text := "The bot is missing a permission needed to look up user names."
	if permErr.URL != "" {
		text += " Grant it here: " + permErr.URL
	}
	if err := r.notifier.NotifyOperator(ctx, text); err != nil {
		r.logger.Warn("permission notice not delivered", "error", err)
	}
}

// Load seeds the cache from the snapshot. Every entry gets a fresh TTL.
func (r *IdentityResolver) Load(ctx context.Context) error {
	if r.snapshot == nil {
		return nil
	}
	entries, err := r.snapshot.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identity snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expires := r.now().Add(r.ttl)
	for _, e := range entries {
		if e.ID == "" || e.DisplayName == "" {
			continue
		}
		e.ExpiresAt = expires
		r.entries[e.ID] = e
	}
	r.logger.Info("identity snapshot loaded", "entries", len(entries))
	return nil
}

// Flush writes the cache to the snapshot when it changed since the last flush
func (r *IdentityResolver) Flush(ctx context.Context) error {
	if r.snapshot == nil {
		return nil
	}

	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	entries := make([]domain.IdentityEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.dirty = false
	r.mu.Unlock()

	if err := r.snapshot.SaveIdentities(ctx, entries); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return fmt.Errorf("save identity snapshot: %w", err)
	}
	return nil
}

// Len returns the number of cached identities
func (r *IdentityResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
