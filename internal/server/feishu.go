package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/feishu"
)

// EventSink accepts normalized inbound events
type EventSink interface {
	Submit(ctx context.Context, ev domain.InboundEvent)
}

// NewEventDispatcher builds the SDK dispatcher shared by both transports.
// Message events are normalized and handed to sink without waiting for
// processing, so the platform gets its ACK at once.
func NewEventDispatcher(sink EventSink, verificationToken, encryptKey string, logger *slog.Logger) *dispatcher.EventDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport")

	d := dispatcher.NewEventDispatcher(verificationToken, encryptKey)
	d.OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
		ev, err := feishu.NormalizeEvent(event, time.Now())
		if err != nil {
			logger.Warn("malformed event rejected", "error", err)
			return nil
		}
		if feishu.IsFromApp(ev) {
			logger.Debug("app message ignored", "message_id", ev.MessageID)
			return nil
		}
		logger.Debug("event received", "message_id", ev.MessageID, "conversation_id", ev.ConversationID, "kind", ev.Kind)
		sink.Submit(ctx, ev)
		return nil
	})
	// Read receipts and reaction lifecycle events are expected because the
	// bridge uses reactions as its typing indicator; ignore them quietly.
	d.OnP2MessageReadV1(func(context.Context, *larkim.P2MessageReadV1) error { return nil })
	d.OnP2MessageReactionCreatedV1(func(context.Context, *larkim.P2MessageReactionCreatedV1) error { return nil })
	d.OnP2MessageReactionDeletedV1(func(context.Context, *larkim.P2MessageReactionDeletedV1) error { return nil })
	return d
}

// WSOptions configures the long-connection transport
type WSOptions struct {
	AppID     string
	AppSecret string
	BaseURL   string
	LogLevel  slog.Level
	Logger    *slog.Logger
}

// WSServer keeps a long connection open, reconnecting when it drops
type WSServer struct {
	opts           WSOptions
	dispatcher     *dispatcher.EventDispatcher
	reconnectDelay time.Duration
	logger         *slog.Logger
}

// NewWSServer creates the long-connection transport
func NewWSServer(opts WSOptions, d *dispatcher.EventDispatcher) *WSServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WSServer{
		opts:           opts,
		dispatcher:     d,
		reconnectDelay: 3 * time.Second,
		logger:         logger.With("component", "ws"),
	}
}

// Run blocks until ctx is done. The SDK client's Start never returns once
// connected and ignores ctx, so it runs detached and is abandoned on cancel.
func (s *WSServer) Run(ctx context.Context) error {
	for {
		client := larkws.NewClient(
			s.opts.AppID,
			s.opts.AppSecret,
			larkws.WithEventHandler(s.dispatcher),
			larkws.WithDomain(s.opts.BaseURL),
			larkws.WithLogger(feishu.NewSDKLogger(s.logger)),
			larkws.WithLogLevel(feishu.SDKLogLevel(s.opts.LogLevel)),
		)
		s.logger.Info("connecting", "domain", s.opts.BaseURL)
		started := make(chan error, 1)
		go func() { started <- client.Start(ctx) }()

		var err error
		select {
		case <-ctx.Done():
			s.logger.Info("connection abandoned on shutdown")
			return nil
		case err = <-started:
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Error("connection failed", "error", err)
		} else {
			s.logger.Warn("connection closed, reconnecting")
		}

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

var (
	errWebhookToken   = errors.New("invalid verification token")
	errWebhookPayload = errors.New("invalid webhook payload")
)

// WebhookHandler receives event-subscription callbacks over HTTP
type WebhookHandler struct {
	dispatcher        *dispatcher.EventDispatcher
	verificationToken string
	encryptKey        string
	logger            *slog.Logger
}

// NewWebhookHandler creates the HTTP callback transport
func NewWebhookHandler(d *dispatcher.EventDispatcher, verificationToken, encryptKey string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		dispatcher:        d,
		verificationToken: strings.TrimSpace(verificationToken),
		encryptKey:        strings.TrimSpace(encryptKey),
		logger:            logger.With("component", "webhook"),
	}
}

// Handle is the gin handler for callback POSTs
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookMaxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	if err := h.validate(payload); err != nil {
		h.logger.Warn("callback rejected", "error", err, "remote", c.ClientIP())
		status := http.StatusUnauthorized
		if errors.Is(err, errWebhookPayload) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := h.dispatcher.Handle(context.WithoutCancel(c.Request.Context()), &larkevent.EventReq{
		Header:     c.Request.Header,
		Body:       payload,
		RequestURI: c.Request.RequestURI,
	})
	if resp == nil {
		c.Status(http.StatusOK)
		return
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Status(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}

// validate checks the verification token when no encrypt key is set.
// With an encrypt key the SDK verifies the signature itself.
func (h *WebhookHandler) validate(payload []byte) error {
	if h.encryptKey != "" {
		return nil
	}
	var fuzzy larkevent.EventFuzzy
	if err := json.Unmarshal(payload, &fuzzy); err != nil {
		return errWebhookPayload
	}
	token := strings.TrimSpace(fuzzy.Token)
	if fuzzy.Header != nil && strings.TrimSpace(fuzzy.Header.Token) != "" {
		token = strings.TrimSpace(fuzzy.Header.Token)
	}
	if h.verificationToken == "" || token != h.verificationToken {
		return errWebhookToken
	}
	return nil
}
