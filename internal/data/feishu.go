package data

import (
	"context"
	"strings"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

// FeishuAPI is the subset of the Feishu client the repositories use
type FeishuAPI interface {
	ListRecent(ctx context.Context, containerID, containerKind string, limit int) ([]domain.RemoteMessage, error)
	GetUserName(ctx context.Context, openID string) (string, error)
	AddReaction(ctx context.Context, messageID, emojiType string) (string, error)
	RemoveReaction(ctx context.Context, messageID, reactionID string) error
	SendText(ctx context.Context, receiveID, text string) error
	ReplyText(ctx context.Context, messageID, text string, inThread bool) error
	DownloadResource(ctx context.Context, messageID, key, resourceType string) (string, error)
}

// FeishuRepo implements the message, reaction, media, history and directory repositories
type FeishuRepo struct {
	client FeishuAPI
}

var (
	_ repo.MessageRepo   = (*FeishuRepo)(nil)
	_ repo.ReactionRepo  = (*FeishuRepo)(nil)
	_ repo.MediaRepo     = (*FeishuRepo)(nil)
	_ repo.HistoryRepo   = (*FeishuRepo)(nil)
	_ repo.DirectoryRepo = (*FeishuRepo)(nil)
)

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client FeishuAPI) *FeishuRepo {
	return &FeishuRepo{client: client}
}

// SendText sends a text message to a chat or user
func (r *FeishuRepo) SendText(ctx context.Context, receiveID, text string) error {
	return r.client.SendText(ctx, receiveID, text)
}

// ReplyText replies to a message
func (r *FeishuRepo) ReplyText(ctx context.Context, messageID, text string, opts repo.ReplyOptions) error {
	return r.client.ReplyText(ctx, messageID, text, opts.InThread)
}

// AddReaction adds a reaction and returns its id
func (r *FeishuRepo) AddReaction(ctx context.Context, messageID, emojiType string) (string, error) {
	return r.client.AddReaction(ctx, messageID, emojiType)
}

// RemoveReaction removes a reaction
func (r *FeishuRepo) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	return r.client.RemoveReaction(ctx, messageID, reactionID)
}

// Download stores an attachment locally
func (r *FeishuRepo) Download(ctx context.Context, messageID, key, resourceType string) (string, error) {
	return r.client.DownloadResource(ctx, messageID, key, resourceType)
}

// FetchRecent returns recent messages, newest first
func (r *FeishuRepo) FetchRecent(ctx context.Context, containerID, containerKind string, limit int) ([]domain.RemoteMessage, error) {
	return r.client.ListRecent(ctx, containerID, containerKind, limit)
}

// LookupName resolves a user's display name
func (r *FeishuRepo) LookupName(ctx context.Context, id string) (string, error) {
	return r.client.GetUserName(ctx, strings.TrimSpace(id))
}
