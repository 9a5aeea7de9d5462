package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

func TestAuditRepo_AppendAndStream(t *testing.T) {
	r, err := NewAuditRepo(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Append(ctx, repo.AuditRecord{Stream: "oc_a", Direction: repo.AuditInbound, MessageID: "m1", Text: "hi", Decision: "allow", CreatedAt: base}))
	require.NoError(t, r.Append(ctx, repo.AuditRecord{Stream: "oc_a:t1", Direction: repo.AuditInbound, MessageID: "m2", Text: "thread", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, r.Append(ctx, repo.AuditRecord{Stream: "oc_a", Direction: repo.AuditOutbound, Text: "hello", CreatedAt: base.Add(2 * time.Second)}))

	recs, err := r.Stream(ctx, "oc_a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "m1", recs[0].MessageID)
	assert.Equal(t, "allow", recs[0].Decision)
	assert.Equal(t, repo.AuditOutbound, recs[1].Direction)
	assert.True(t, recs[0].CreatedAt.Equal(base))

	thread, err := r.Stream(ctx, "oc_a:t1", 10)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestAuditRepo_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	r, err := NewAuditRepo(path)
	require.NoError(t, err)
	require.NoError(t, r.Append(context.Background(), repo.AuditRecord{Stream: "oc_a", Direction: repo.AuditInbound}))
	require.NoError(t, r.Close())

	r, err = NewAuditRepo(path)
	require.NoError(t, err)
	defer r.Close()
	recs, err := r.Stream(context.Background(), "oc_a", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.False(t, recs[0].CreatedAt.IsZero())
}
