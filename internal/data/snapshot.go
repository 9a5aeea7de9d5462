package data

import (
	"context"
	"path/filepath"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/fsstore"
)

const snapshotVersion = 1

// SnapshotStore keeps the owner binding and the identity cache as JSON files
type SnapshotStore struct {
	ownerPath      string
	identitiesPath string
}

var (
	_ repo.OwnerStore            = (*SnapshotStore)(nil)
	_ repo.IdentitySnapshotStore = (*SnapshotStore)(nil)
)

type identitySnapshot struct {
	Version int                    `json:"version"`
	SavedAt time.Time              `json:"saved_at"`
	Entries []domain.IdentityEntry `json:"entries"`
}

// NewSnapshotStore creates a store rooted at stateDir
func NewSnapshotStore(stateDir string) *SnapshotStore {
	return &SnapshotStore{
		ownerPath:      filepath.Join(stateDir, "owner.json"),
		identitiesPath: filepath.Join(stateDir, "identities.json"),
	}
}

// LoadOwner reads the owner binding; a missing file means unbound
func (s *SnapshotStore) LoadOwner(ctx context.Context) (domain.OwnerBinding, error) {
	var owner domain.OwnerBinding
	ok, err := fsstore.ReadJSON(s.ownerPath, &owner)
	if err != nil || !ok {
		return domain.OwnerBinding{}, err
	}
	owner.Bound = owner.PrimaryID != ""
	return owner, nil
}

// SaveOwner replaces the owner file atomically
func (s *SnapshotStore) SaveOwner(ctx context.Context, owner domain.OwnerBinding) error {
	return fsstore.WriteJSONAtomic(s.ownerPath, owner, fsstore.FileOptions{})
}

// LoadIdentities reads the identity snapshot; a missing file yields nothing
func (s *SnapshotStore) LoadIdentities(ctx context.Context) ([]domain.IdentityEntry, error) {
	var snap identitySnapshot
	ok, err := fsstore.ReadJSON(s.identitiesPath, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return snap.Entries, nil
}

// SaveIdentities replaces the identity snapshot atomically
func (s *SnapshotStore) SaveIdentities(ctx context.Context, entries []domain.IdentityEntry) error {
	return fsstore.WriteJSONAtomic(s.identitiesPath, identitySnapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Entries: entries,
	}, fsstore.FileOptions{})
}
