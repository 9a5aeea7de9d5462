package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// senderTypeApp marks messages sent by bots, including this one
const senderTypeApp = "app"

// PipelineDeps groups what the pipeline talks to
type PipelineDeps struct {
	Usecases *biz.Usecases
	Policies PolicySource
	Messages repo.MessageRepo
	Media    repo.MediaRepo
	Audit    repo.AuditRepo // optional
	Replies  *ReplyService
	Bot      *BotIdentity
	Channel  string
	Logger   *slog.Logger
}

// Pipeline turns one inbound event into a drop, a log-only record or a
// forward to the agent
type Pipeline struct {
	uc       *biz.Usecases
	policies PolicySource
	messages repo.MessageRepo
	media    repo.MediaRepo
	audit    repo.AuditRepo
	replies  *ReplyService
	bot      *BotIdentity
	channel  string
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewPipeline creates a pipeline
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bot := deps.Bot
	if bot == nil {
		bot = &BotIdentity{}
	}
	return &Pipeline{
		uc:       deps.Usecases,
		policies: deps.Policies,
		messages: deps.Messages,
		media:    deps.Media,
		audit:    deps.Audit,
		replies:  deps.Replies,
		bot:      bot,
		channel:  deps.Channel,
		logger:   logger.With("component", "pipeline"),
	}
}

// Submit processes ev on its own goroutine so the transport can ACK at once.
// The caller's cancellation does not abort processing.
func (p *Pipeline) Submit(ctx context.Context, ev domain.InboundEvent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Handle(context.WithoutCancel(ctx), ev)
	}()
}

// Wait blocks until every submitted event has been processed or ctx ends
func (p *Pipeline) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// inbound is the per-event working state
type inbound struct {
	ev       domain.InboundEvent
	policy   *domain.PolicyConfig
	content  domain.ExtractedContent
	key      string
	limit    int
	name     string
	decision domain.Decision
	log      *slog.Logger
}

// Handle runs the full pipeline for one event
func (p *Pipeline) Handle(ctx context.Context, ev domain.InboundEvent) {
	log := p.logger.With("message_id", ev.MessageID, "conversation_id", ev.ConversationID)

	if p.uc.Dedup.IsDuplicate(ev.EventID) {
		log.Debug("duplicate event dropped")
		return
	}
	if ev.SenderType == senderTypeApp {
		log.Debug("app message dropped")
		return
	}

	botID := p.bot.ID()
	policy := p.policies.Snapshot()
	in := &inbound{
		ev:      ev,
		policy:  policy,
		content: extractForwardContent(ev, botID),
		key:     ev.HistoryKey(),
		limit:   policy.HistoryLimitFor(ev.ConversationID),
		log:     log,
	}

	if ev.IsDirect() {
		in.decision = p.evaluateDirect(ctx, in)
	} else {
		mentioned := ev.MentionsID(botID)
		owner := p.uc.Owner.Current()
		in.decision = usecase.NewPolicyEvaluator(policy, owner).EvaluateGroup(ev.ConversationID, ev.SenderID, ev.SenderAltID, mentioned)
	}
	log.Debug("policy evaluated", "action", in.decision.Action, "reason", in.decision.Reason)

	switch in.decision.Action {
	case domain.ActionDeny:
		p.appendAudit(ctx, in)
		p.deny(ctx, in)
	case domain.ActionLogOnly:
		if in.decision.RecordHistory {
			in.name = p.uc.Identity.Resolve(ctx, ev.SenderID)
			p.uc.Context.Record(in.key, p.currentEntry(in), in.limit)
		}
		p.appendAudit(ctx, in)
	case domain.ActionAllow:
		in.name = p.uc.Identity.Resolve(ctx, ev.SenderID)
		p.appendAudit(ctx, in)
		p.forward(ctx, in)
	}
}

// evaluateDirect binds the owner on the first accepted direct message, then
// evaluates against the binding in effect afterwards
func (p *Pipeline) evaluateDirect(ctx context.Context, in *inbound) domain.Decision {
	ev := in.ev
	owner := p.uc.Owner.Current()
	if usecase.NewPolicyEvaluator(in.policy, owner).CanBindOwner(ev.SenderID, ev.SenderAltID) {
		name := p.uc.Identity.Resolve(ctx, ev.SenderID)
		bound, created, err := p.uc.Owner.BindIfUnbound(ctx, ev.SenderID, ev.SenderAltID, name)
		if err != nil {
			in.log.Error("owner binding failed", "error", err)
		} else {
			owner = bound
			if created {
				in.log.Info("sender bound as owner", "sender_id", ev.SenderID)
			}
		}
	}
	return usecase.NewPolicyEvaluator(in.policy, owner).EvaluateDM(ev.SenderID, ev.SenderAltID)
}

func (p *Pipeline) deny(ctx context.Context, in *inbound) {
	if !in.decision.Reply {
		return
	}
	text := in.policy.Messages.GroupRejected
	if in.ev.IsDirect() {
		text = in.policy.Messages.DMRejected
	}
	p.replyDirect(ctx, in, text)
}

func (p *Pipeline) forward(ctx context.Context, in *inbound) {
	ev := in.ev

	container, kind := ev.ConversationID, repo.ContainerChat
	if ev.ThreadID != "" {
		container, kind = ev.ThreadID, repo.ContainerThread
	}
	history := p.uc.Context.ReadWithFallback(ctx, container, ev.MessageID, kind, in.key, in.limit)
	history = p.uc.Context.PinRoot(history, ev.RootID, in.key)
	p.uc.Context.Record(in.key, p.currentEntry(in), in.limit)

	mediaPaths, mediaFailed := p.downloadMedia(ctx, in)
	if mediaFailed {
		p.replyDirect(ctx, in, in.policy.Messages.MediaFailed)
		if !hasText(ev, in.content) {
			in.log.Info("nothing left to forward after media failure")
			return
		}
	}

	if !in.decision.Smart {
		p.uc.Indicator.Start(ctx, ev.MessageID)
	}

	payload := p.uc.Payload.Build(usecase.PayloadInput{
		History:    history,
		SenderID:   ev.SenderID,
		SenderName: in.name,
		Text:       in.content.Text,
		MediaPaths: mediaPaths,
		Smart:      in.decision.Smart,
	})
	endpoint := usecase.BuildEndpoint(ev.ConversationID, usecase.RoutingMetadata{
		Kind:    string(ev.Kind),
		Root:    ev.RootID,
		Parent:  ev.ParentID,
		Message: ev.MessageID,
		Thread:  ev.ThreadID,
	})

	err := p.uc.Dispatcher.Dispatch(ctx, p.channel, endpoint, payload, func(rej *domain.RejectionError) {
		text := rej.Message
		if text == "" {
			text = rej.Code
		}
		if p.replies != nil {
			if err := p.replies.Reply(ctx, endpoint, text); err != nil {
				in.log.Warn("rejection not relayed", "error", err)
			}
		}
		p.uc.Indicator.Complete(ctx, ev.MessageID)
	})
	if err != nil {
		p.uc.Indicator.Complete(ctx, ev.MessageID)
		if !errors.Is(err, usecase.ErrEmptyContent) {
			p.replyDirect(ctx, in, in.policy.Messages.DispatchFailed)
		}
		return
	}
	in.log.Info("event forwarded", "smart", in.decision.Smart, "history", len(history), "media", len(mediaPaths))
}

// downloadMedia fetches every attachment. failed is true when at least one
// could not be stored.
func (p *Pipeline) downloadMedia(ctx context.Context, in *inbound) (paths []string, failed bool) {
	if !in.content.HasMedia() || p.media == nil {
		return nil, false
	}
	for _, key := range in.content.ImageKeys {
		path, err := p.media.Download(ctx, in.ev.MessageID, key, "image")
		if err != nil {
			in.log.Warn("image download failed", "image_key", key, "error", err)
			failed = true
			continue
		}
		paths = append(paths, path)
	}
	if in.content.FileKey != "" {
		path, err := p.media.Download(ctx, in.ev.MessageID, in.content.FileKey, "file")
		if err != nil {
			in.log.Warn("file download failed", "file_key", in.content.FileKey, "error", err)
			failed = true
		} else {
			paths = append(paths, path)
		}
	}
	return paths, failed
}

// replyDirect sends a short bridge-authored message in answer to the event.
// Empty text means the message is disabled.
func (p *Pipeline) replyDirect(ctx context.Context, in *inbound, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	opts := repo.ReplyOptions{InThread: in.ev.ThreadID != ""}
	if err := p.messages.ReplyText(ctx, in.ev.MessageID, text, opts); err != nil {
		in.log.Warn("bridge reply not sent", "error", err)
	}
}

func (p *Pipeline) currentEntry(in *inbound) domain.HistoryEntry {
	ts := in.ev.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return domain.HistoryEntry{
		MessageID:  in.ev.MessageID,
		SenderID:   in.ev.SenderID,
		SenderName: in.name,
		Text:       in.content.Text,
		Timestamp:  ts,
	}
}

func (p *Pipeline) appendAudit(ctx context.Context, in *inbound) {
	if p.audit == nil {
		return
	}
	rec := repo.AuditRecord{
		Stream:     in.key,
		Direction:  repo.AuditInbound,
		MessageID:  in.ev.MessageID,
		SenderID:   in.ev.SenderID,
		SenderName: in.name,
		Text:       in.content.Text,
		Decision:   string(in.decision.Action),
		CreatedAt:  in.ev.ReceivedAt,
	}
	if err := p.audit.Append(ctx, rec); err != nil {
		in.log.Warn("audit append failed", "error", err)
	}
}

// extractForwardContent flattens the event text with the bot's own mention removed
func extractForwardContent(ev domain.InboundEvent, botID string) domain.ExtractedContent {
	content := domain.ExtractContent(ev.ContentKind, ev.RawContent, ev.MentionsExcluding(botID))
	if botID == "" {
		return content
	}
	for _, m := range ev.Mentions {
		if m.Key != "" && (m.ID == botID || m.AltID == botID) {
			content.Text = strings.ReplaceAll(content.Text, m.Key+" ", "")
			content.Text = strings.ReplaceAll(content.Text, m.Key, "")
		}
	}
	content.Text = strings.TrimSpace(content.Text)
	return content
}

// hasText reports whether the event carries user text beyond media placeholders
func hasText(ev domain.InboundEvent, content domain.ExtractedContent) bool {
	switch ev.ContentKind {
	case domain.ContentText, domain.ContentPost:
		return strings.TrimSpace(content.Text) != ""
	default:
		return false
	}
}
