package repo

import (
	"context"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// OwnerStore persists the owner binding
type OwnerStore interface {
	LoadOwner(ctx context.Context) (domain.OwnerBinding, error)
	SaveOwner(ctx context.Context, owner domain.OwnerBinding) error
}

// IdentitySnapshotStore persists resolved display names between restarts
type IdentitySnapshotStore interface {
	LoadIdentities(ctx context.Context) ([]domain.IdentityEntry, error)
	SaveIdentities(ctx context.Context, entries []domain.IdentityEntry) error
}
