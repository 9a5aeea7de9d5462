package repo

import (
	"context"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// Container kinds accepted by the remote history API
const (
	ContainerChat   = "chat"
	ContainerThread = "thread"
)

// HistoryRepo fetches recent messages from the chat platform
type HistoryRepo interface {
	// FetchRecent returns up to limit recent messages, newest first
	FetchRecent(ctx context.Context, containerID, containerKind string, limit int) ([]domain.RemoteMessage, error)
}
