package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

// OwnerRegistry holds the deployment owner. Binding happens once, on the
// first accepted direct message, and is persisted before it is trusted.
type OwnerRegistry struct {
	mu     sync.Mutex
	owner  domain.OwnerBinding
	store  repo.OwnerStore
	logger *slog.Logger
	now    func() time.Time
}

// NewOwnerRegistry creates a registry backed by store
func NewOwnerRegistry(store repo.OwnerStore, logger *slog.Logger) *OwnerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnerRegistry{
		store:  store,
		logger: logger.With("component", "owner"),
		now:    time.Now,
	}
}

// Load reads the persisted binding
func (r *OwnerRegistry) Load(ctx context.Context) error {
	owner, err := r.store.LoadOwner(ctx)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	r.mu.Lock()
	r.owner = owner
	r.mu.Unlock()
	if owner.Bound {
		r.logger.Info("owner loaded", "owner_id", owner.PrimaryID)
	}
	return nil
}

// Current returns a copy of the binding
func (r *OwnerRegistry) Current() domain.OwnerBinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// BindIfUnbound binds the sender as owner when nobody is bound yet.
// It returns the binding in effect afterwards and whether this call created it.
// On persistence failure the in-memory assignment is rolled back.
func (r *OwnerRegistry) BindIfUnbound(ctx context.Context, id, altID, displayName string) (domain.OwnerBinding, bool, error) {
	if id == "" && altID == "" {
		return r.Current(), false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner.Bound {
		return r.owner, false, nil
	}

	previous := r.owner
	primary := id
	if primary == "" {
		primary = altID
		altID = ""
	}
	r.owner = domain.OwnerBinding{
		Bound:       true,
		PrimaryID:   primary,
		AltID:       altID,
		DisplayName: displayName,
		BoundAt:     r.now(),
	}

	if err := r.store.SaveOwner(ctx, r.owner); err != nil {
		r.owner = previous
		r.logger.Error("owner binding rolled back", "owner_id", primary, "error", err)
		return previous, false, fmt.Errorf("persist owner: %w", err)
	}

	r.logger.Info("owner bound", "owner_id", primary, "name", displayName)
	return r.owner, true, nil
}
