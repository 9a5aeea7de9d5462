package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

const defaultSystemPrompt = `You are an assistant replying inside a Feishu chat. ` +
	`Answer the current message using the chat context when it helps. Keep replies short and plain text. ` +
	`If the payload asks you to decide whether to respond and no response is needed, answer exactly NO_REPLY.`

// OpenAIOptions configures the OpenAI-compatible delivery
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Logger       *slog.Logger
}

// openaiDelivery answers with a chat completion and posts the answer back
type openaiDelivery struct {
	client       *openai.Client
	model        string
	systemPrompt string
	sink         repo.ReplySink
	logger       *slog.Logger
}

// NewOpenAIDelivery creates a delivery backed by an OpenAI-compatible API
func NewOpenAIDelivery(opts OpenAIOptions, sink repo.ReplySink) repo.DeliveryRepo {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &openaiDelivery{
		client:       openai.NewClientWithConfig(config),
		model:        opts.Model,
		systemPrompt: prompt,
		sink:         sink,
		logger:       logger.With("component", "openai_delivery"),
	}
}

// Deliver requests a completion. Only content-level client errors are rejections.
func (d *openaiDelivery) Deliver(ctx context.Context, req repo.DeliveryRequest) error {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: d.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Content},
		},
	})
	if err != nil {
		return classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("completion returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	d.logger.Debug("completion received", "delivery_id", req.DeliveryID, "chars", len(answer))
	if answer == "" {
		// A blank answer still has to release the indicator
		answer = usecase.NoReply
	}
	if d.sink == nil {
		return nil
	}
	if err := d.sink.Reply(ctx, req.Endpoint, answer); err != nil {
		d.logger.Warn("posting completion failed", "delivery_id", req.DeliveryID, "error", err)
	}
	return nil
}

// contentRejectionStatus lists statuses where the provider declined the
// content itself. Auth, model and quota faults are operator problems and
// must not reach the chat.
var contentRejectionStatus = map[int]bool{
	http.StatusBadRequest:            true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusUnprocessableEntity:   true,
}

func classifyOpenAIError(err error) error {
	status := 0
	code := ""
	msg := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		msg = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if contentRejectionStatus[status] {
		if code == "" {
			code = fmt.Sprintf("http_%d", status)
		}
		return &domain.RejectionError{Code: code, Message: msg}
	}
	if status >= 400 && status < 500 {
		return fmt.Errorf("completion request failed with status %d: %w", status, err)
	}
	return fmt.Errorf("completion request: %w", err)
}
