package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

type fakeOwnerStore struct {
	saved   []domain.OwnerBinding
	loaded  domain.OwnerBinding
	saveErr error
}

func (s *fakeOwnerStore) LoadOwner(ctx context.Context) (domain.OwnerBinding, error) {
	return s.loaded, nil
}

func (s *fakeOwnerStore) SaveOwner(ctx context.Context, owner domain.OwnerBinding) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, owner)
	return nil
}

func TestOwnerRegistry_BindsFirstSenderOnce(t *testing.T) {
	store := &fakeOwnerStore{}
	r := NewOwnerRegistry(store, nil)

	owner, created, err := r.BindIfUnbound(context.Background(), "ou_first", "u_first", "First")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ou_first", owner.PrimaryID)

	owner, created, err = r.BindIfUnbound(context.Background(), "ou_second", "", "Second")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ou_first", owner.PrimaryID)
	assert.Len(t, store.saved, 1)
}

func TestOwnerRegistry_RollsBackOnPersistFailure(t *testing.T) {
	store := &fakeOwnerStore{saveErr: errors.New("disk full")}
	r := NewOwnerRegistry(store, nil)

	owner, created, err := r.BindIfUnbound(context.Background(), "ou_first", "", "First")
	require.Error(t, err)
	assert.False(t, created)
	assert.False(t, owner.Bound)
	assert.False(t, r.Current().Bound)

	store.saveErr = nil
	owner, created, err = r.BindIfUnbound(context.Background(), "ou_retry", "", "Retry")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ou_retry", owner.PrimaryID)
}

func TestOwnerRegistry_Load(t *testing.T) {
	store := &fakeOwnerStore{loaded: domain.OwnerBinding{Bound: true, PrimaryID: "ou_saved"}}
	r := NewOwnerRegistry(store, nil)

	require.NoError(t, r.Load(context.Background()))
	assert.True(t, r.Current().Matches("ou_saved", ""))

	_, created, err := r.BindIfUnbound(context.Background(), "ou_new", "", "")
	require.NoError(t, err)
	assert.False(t, created)
}
