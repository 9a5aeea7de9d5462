package repo

import (
	"context"
)

// ReplyOptions addresses a reply to an existing message
type ReplyOptions struct {
	InThread bool
}

// MessageRepo is the message repository interface
// Responsible for sending messages back to Feishu
type MessageRepo interface {
	// SendText sends a text message to a chat (oc_) or a user (ou_/on_)
	SendText(ctx context.Context, receiveID, text string) error

	// ReplyText replies to a message, optionally inside its thread
	ReplyText(ctx context.Context, messageID, text string, opts ReplyOptions) error
}

// ReactionRepo attaches and removes emoji reactions
type ReactionRepo interface {
	// AddReaction returns the reaction id needed to remove it later
	AddReaction(ctx context.Context, messageID, emojiType string) (string, error)

	RemoveReaction(ctx context.Context, messageID, reactionID string) error
}

// MediaRepo downloads message attachments
type MediaRepo interface {
	// Download stores the resource locally and returns its path.
	// resourceType is "image" or "file".
	Download(ctx context.Context, messageID, key, resourceType string) (string, error)
}
