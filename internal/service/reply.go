package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

var (
	// ErrEmptyReply is returned for blank reply text
	ErrEmptyReply = errors.New("reply: empty text")

	// ErrNoMessage is returned when completing an endpoint without a message id
	ErrNoMessage = errors.New("reply: endpoint carries no message id")
)

// PolicySource yields the policy snapshot used for one operation
type PolicySource interface {
	Snapshot() *domain.PolicyConfig
}

// ReplyService posts agent answers back to the conversation an endpoint names
type ReplyService struct {
	messages  repo.MessageRepo
	cache     *usecase.ContextCache
	indicator *usecase.EngagementIndicator
	audit     repo.AuditRepo
	policies  PolicySource
	bot       *BotIdentity
	now       func() time.Time
	logger    *slog.Logger
}

var _ repo.ReplySink = (*ReplyService)(nil)

// NewReplyService creates a reply service. audit may be nil.
func NewReplyService(
	messages repo.MessageRepo,
	cache *usecase.ContextCache,
	indicator *usecase.EngagementIndicator,
	audit repo.AuditRepo,
	policies PolicySource,
	bot *BotIdentity,
	logger *slog.Logger,
) *ReplyService {
	if logger == nil {
		logger = slog.Default()
	}
	if bot == nil {
		bot = &BotIdentity{}
	}
	return &ReplyService{
		messages:  messages,
		cache:     cache,
		indicator: indicator,
		audit:     audit,
		policies:  policies,
		bot:       bot,
		now:       time.Now,
		logger:    logger.With("component", "reply"),
	}
}

// Reply posts text to the conversation named by endpoint. When the endpoint
// carries a message id the text is a reply to it, inside its thread if it
// has one. NO_REPLY is swallowed. The indicator on the triggering message
// is completed either way.
func (s *ReplyService) Reply(ctx context.Context, endpoint, text string) error {
	ep, err := usecase.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyReply
	}
	log := s.logger.With("conversation_id", ep.ConversationID, "message_id", ep.Message)

	if usecase.IsNoReply(text) {
		log.Debug("agent stayed silent")
		s.complete(ctx, ep.Message)
		return nil
	}

	if ep.Message != "" {
		err = s.messages.ReplyText(ctx, ep.Message, text, repo.ReplyOptions{InThread: ep.Thread != ""})
	} else {
		err = s.messages.SendText(ctx, ep.ConversationID, text)
	}
	if err != nil {
		log.Warn("reply not sent", "error", err)
		return fmt.Errorf("send reply: %w", err)
	}

	key := domain.HistoryKey(ep.ConversationID, ep.Thread)
	entry := domain.HistoryEntry{
		SenderID:   s.bot.ID(),
		SenderName: s.bot.Name(),
		Text:       text,
		Timestamp:  s.now(),
	}
	limit := 0
	if s.policies != nil {
		limit = s.policies.Snapshot().HistoryLimitFor(ep.ConversationID)
	}
	s.cache.Record(key, entry, limit)
	s.appendAudit(ctx, repo.AuditRecord{
		Stream:     key,
		Direction:  repo.AuditOutbound,
		SenderID:   entry.SenderID,
		SenderName: entry.SenderName,
		Text:       text,
		CreatedAt:  entry.Timestamp,
	})

	s.complete(ctx, ep.Message)
	log.Info("reply sent", "chars", len([]rune(text)))
	return nil
}

// Complete clears the engagement indicator for the message an endpoint names
func (s *ReplyService) Complete(ctx context.Context, endpoint string) error {
	ep, err := usecase.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if ep.Message == "" {
		return ErrNoMessage
	}
	s.complete(ctx, ep.Message)
	return nil
}

func (s *ReplyService) complete(ctx context.Context, messageID string) {
	if messageID == "" || s.indicator == nil {
		return
	}
	s.indicator.Complete(ctx, messageID)
}

func (s *ReplyService) appendAudit(ctx context.Context, rec repo.AuditRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.Warn("audit append failed", "stream", rec.Stream, "error", err)
	}
}
