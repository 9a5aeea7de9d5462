package usecase

import (
	"fmt"
	"strings"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// PromptConfig contains the markers used to lay out a forwarded payload
type PromptConfig struct {
	Preamble      string // Optional text placed before everything else
	HistoryMarker string // Heads the context section
	CurrentMarker string // Heads the message to respond to
	SmartHint     string // Appended for unmentioned smart-group messages
	MediaFormat   string // fmt pattern for one downloaded media path
	MaxTextRunes  int    // History lines longer than this are cut, 0 keeps everything
}

// NoReply is the answer an agent gives to stay silent in a smart group
const NoReply = "NO_REPLY"

// DefaultPromptConfig is the default payload layout
var DefaultPromptConfig = PromptConfig{
	HistoryMarker: "[Chat messages since your last reply - for context]",
	CurrentMarker: "[Current message - respond to this]",
	SmartHint:     "[Smart group: decide whether this message needs a response; reply " + NoReply + " to stay silent]",
	MediaFormat:   "[media: %s]",
	MaxTextRunes:  500,
}

// PayloadInput is everything the builder needs for one forwarded message
type PayloadInput struct {
	History    []domain.HistoryEntry
	SenderID   string
	SenderName string
	Text       string
	MediaPaths []string
	Smart      bool
}

// ContextBuilderUsecase turns a context window and the current message into agent payload text
type ContextBuilderUsecase struct {
	cfg PromptConfig
}

// NewContextBuilderUsecase creates a new context builder usecase
func NewContextBuilderUsecase(cfg PromptConfig) *ContextBuilderUsecase {
	if cfg.HistoryMarker == "" {
		cfg.HistoryMarker = DefaultPromptConfig.HistoryMarker
	}
	if cfg.CurrentMarker == "" {
		cfg.CurrentMarker = DefaultPromptConfig.CurrentMarker
	}
	if cfg.SmartHint == "" {
		cfg.SmartHint = DefaultPromptConfig.SmartHint
	}
	if cfg.MediaFormat == "" || !strings.Contains(cfg.MediaFormat, "%s") {
		cfg.MediaFormat = DefaultPromptConfig.MediaFormat
	}
	return &ContextBuilderUsecase{cfg: cfg}
}

// Build formats the payload. The result is never empty when the input has text or media.
func (uc *ContextBuilderUsecase) Build(in PayloadInput) string {
	var sb strings.Builder

	if uc.cfg.Preamble != "" {
		sb.WriteString(strings.TrimSpace(uc.cfg.Preamble))
		sb.WriteString("\n\n")
	}

	if len(in.History) > 0 {
		sb.WriteString(uc.cfg.HistoryMarker)
		sb.WriteString("\n")
		for _, e := range in.History {
			sb.WriteString(fmt.Sprintf("%s: %s\n", displayName(e.SenderName, e.SenderID), uc.clip(e.Text)))
		}
	}

	sb.WriteString(uc.cfg.CurrentMarker)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s: %s\n", displayName(in.SenderName, in.SenderID), in.Text))
	for _, p := range in.MediaPaths {
		sb.WriteString(fmt.Sprintf(uc.cfg.MediaFormat, p))
		sb.WriteString("\n")
	}

	if in.Smart {
		sb.WriteString(uc.cfg.SmartHint)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (uc *ContextBuilderUsecase) clip(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if uc.cfg.MaxTextRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= uc.cfg.MaxTextRunes {
		return text
	}
	return string(runes[:uc.cfg.MaxTextRunes]) + "..."
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "unknown"
}

// IsNoReply reports whether an agent answer means "stay silent"
func IsNoReply(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), NoReply)
}
