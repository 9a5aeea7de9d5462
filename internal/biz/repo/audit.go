package repo

import (
	"context"
	"time"
)

// Audit directions
const (
	AuditInbound  = "in"
	AuditOutbound = "out"
)

// AuditRecord is one line of a conversation audit stream
type AuditRecord struct {
	Stream     string // conversation id, or conversation:thread
	Direction  string
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	Decision   string
	CreatedAt  time.Time
}

// AuditRepo is an append-only sink
type AuditRepo interface {
	Append(ctx context.Context, rec AuditRecord) error
}
