package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// Mock implementations

type sentReply struct {
	MessageID string
	Text      string
	InThread  bool
}

type sentText struct {
	ReceiveID string
	Text      string
}

type fakeMessages struct {
	mu      sync.Mutex
	replies []sentReply
	sends   []sentText
	err     error
}

func (m *fakeMessages) SendText(ctx context.Context, receiveID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sentText{receiveID, text})
	return nil
}

func (m *fakeMessages) ReplyText(ctx context.Context, messageID, text string, opts repo.ReplyOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.replies = append(m.replies, sentReply{messageID, text, opts.InThread})
	return nil
}

func (m *fakeMessages) Replies() []sentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReply(nil), m.replies...)
}

func (m *fakeMessages) Sends() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.sends...)
}

type fakeReactions struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (r *fakeReactions) AddReaction(ctx context.Context, messageID, emojiType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, messageID)
	return "r_" + messageID, nil
}

func (r *fakeReactions) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, messageID)
	return nil
}

func (r *fakeReactions) Added() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.added...)
}

func (r *fakeReactions) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

type fakeMedia struct {
	mu   sync.Mutex
	fail bool
	keys []string
}

func (m *fakeMedia) Download(ctx context.Context, messageID, key, resourceType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, resourceType+":"+key)
	if m.fail {
		return "", errors.New("resource expired")
	}
	return "/tmp/media/" + key, nil
}

func (m *fakeMedia) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

type historyCall struct {
	Container string
	Kind      string
}

type fakeHistory struct {
	mu    sync.Mutex
	msgs  []domain.RemoteMessage
	calls []historyCall
}

func (h *fakeHistory) FetchRecent(ctx context.Context, containerID, containerKind string, limit int) ([]domain.RemoteMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, historyCall{containerID, containerKind})
	return h.msgs, nil
}

type fakeDirectory struct {
	names map[string]string
}

func (d *fakeDirectory) LookupName(ctx context.Context, id string) (string, error) {
	if name, ok := d.names[id]; ok {
		return name, nil
	}
	return "", errors.New("user not found")
}

type fakeOwnerStore struct {
	mu    sync.Mutex
	owner domain.OwnerBinding
	err   error
	saves int
}

func (s *fakeOwnerStore) LoadOwner(ctx context.Context) (domain.OwnerBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, nil
}

func (s *fakeOwnerStore) SaveOwner(ctx context.Context, owner domain.OwnerBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.owner = owner
	s.saves++
	return nil
}

type fakeDelivery struct {
	mu   sync.Mutex
	reqs []repo.DeliveryRequest
	errs []error // returned in order, then nil
}

func (d *fakeDelivery) Deliver(ctx context.Context, req repo.DeliveryRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return err
	}
	return nil
}

func (d *fakeDelivery) Requests() []repo.DeliveryRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]repo.DeliveryRequest(nil), d.reqs...)
}

type fakeAudit struct {
	mu   sync.Mutex
	recs []repo.AuditRecord
}

func (a *fakeAudit) Append(ctx context.Context, rec repo.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func (a *fakeAudit) Records() []repo.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]repo.AuditRecord(nil), a.recs...)
}

type staticPolicy struct {
	cfg *domain.PolicyConfig
}

func (p staticPolicy) Snapshot() *domain.PolicyConfig { return p.cfg }

// Harness

const testBotID = "ou_bot"

type harness struct {
	uc         *biz.Usecases
	pipeline   *Pipeline
	replies    *ReplyService
	messages   *fakeMessages
	reactions  *fakeReactions
	media      *fakeMedia
	history    *fakeHistory
	delivery   *fakeDelivery
	audit      *fakeAudit
	ownerStore *fakeOwnerStore
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, policy *domain.PolicyConfig) *harness {
	t.Helper()
	logger := discardLogger()
	h := &harness{
		messages:   &fakeMessages{},
		reactions:  &fakeReactions{},
		media:      &fakeMedia{},
		history:    &fakeHistory{},
		delivery:   &fakeDelivery{},
		audit:      &fakeAudit{},
		ownerStore: &fakeOwnerStore{},
	}
	if policy.Messages == (domain.Messages{}) {
		policy.Messages = domain.DefaultMessages
	}
	directory := &fakeDirectory{names: map[string]string{
		"ou_alice": "Alice",
		"ou_bob":   "Bob",
		"ou_carol": "Carol",
	}}

	identity := usecase.NewIdentityResolver(directory, nil, "Assistant", []string{testBotID}, logger)
	h.uc = &biz.Usecases{
		Dedup:      usecase.NewDedupLedger(),
		Owner:      usecase.NewOwnerRegistry(h.ownerStore, logger),
		Context:    usecase.NewContextCache(h.history, identity, 0, logger),
		Identity:   identity,
		Indicator:  usecase.NewEngagementIndicator(h.reactions, "", logger),
		Dispatcher: usecase.NewDispatcher(h.delivery, logger),
		Payload:    usecase.NewContextBuilderUsecase(usecase.DefaultPromptConfig),
	}
	policies := staticPolicy{cfg: policy}
	bot := NewBotIdentity(testBotID, "Assistant")
	h.replies = NewReplyService(h.messages, h.uc.Context, h.uc.Indicator, h.audit, policies, bot, logger)
	h.pipeline = NewPipeline(PipelineDeps{
		Usecases: h.uc,
		Policies: policies,
		Messages: h.messages,
		Media:    h.media,
		Audit:    h.audit,
		Replies:  h.replies,
		Bot:      bot,
		Channel:  "feishu",
		Logger:   logger,
	})
	return h
}

func textRaw(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

var eventClock = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func groupEvent(id, conv, sender, text string, mentionBot bool) domain.InboundEvent {
	eventClock = eventClock.Add(time.Second)
	ev := domain.InboundEvent{
		EventID:        id,
		MessageID:      id,
		ConversationID: conv,
		Kind:           domain.ConversationGroup,
		SenderID:       sender,
		SenderType:     "user",
		ContentKind:    domain.ContentText,
		RawContent:     textRaw(text),
		ReceivedAt:     eventClock,
	}
	if mentionBot {
		ev.RawContent = textRaw("@_user_1 " + text)
		ev.Mentions = []domain.Mention{{Key: "@_user_1", ID: testBotID, Name: "Assistant"}}
	}
	return ev
}

func directEvent(id, sender, text string) domain.InboundEvent {
	ev := groupEvent(id, "oc_dm_"+sender, sender, text, false)
	ev.Kind = domain.ConversationDirect
	return ev
}
