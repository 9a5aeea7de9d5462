package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

func TestBuildPayloadWithHistory(t *testing.T) {
	uc := NewContextBuilderUsecase(DefaultPromptConfig)
	now := time.Now()

	out := uc.Build(PayloadInput{
		History: []domain.HistoryEntry{
			{MessageID: "m1", SenderName: "Alice", Text: "lunch?", Timestamp: now.Add(-2 * time.Minute)},
			{MessageID: "m2", SenderID: "ou_carol", Text: "sure", Timestamp: now.Add(-time.Minute)},
		},
		SenderName: "Bob",
		Text:       "where",
	})

	want := strings.Join([]string{
		"[Chat messages since your last reply - for context]",
		"Alice: lunch?",
		"ou_carol: sure",
		"[Current message - respond to this]",
		"Bob: where",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestBuildPayloadWithoutHistory(t *testing.T) {
	uc := NewContextBuilderUsecase(PromptConfig{})

	out := uc.Build(PayloadInput{SenderName: "Bob", Text: "hi"})

	assert.NotContains(t, out, DefaultPromptConfig.HistoryMarker)
	assert.True(t, strings.HasPrefix(out, DefaultPromptConfig.CurrentMarker))
}

func TestBuildPayloadMediaAndSmartHint(t *testing.T) {
	uc := NewContextBuilderUsecase(DefaultPromptConfig)

	out := uc.Build(PayloadInput{
		SenderName: "Owner",
		Text:       "[image]",
		MediaPaths: []string{"/state/media/a.png", "/state/media/b.png"},
		Smart:      true,
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{
		"[Current message - respond to this]",
		"Owner: [image]",
		"[media: /state/media/a.png]",
		"[media: /state/media/b.png]",
		DefaultPromptConfig.SmartHint,
	}, lines)
}

func TestBuildPayloadClipsLongHistory(t *testing.T) {
	cfg := DefaultPromptConfig
	cfg.MaxTextRunes = 5
	uc := NewContextBuilderUsecase(cfg)

	out := uc.Build(PayloadInput{
		History: []domain.HistoryEntry{{MessageID: "m1", SenderName: "A", Text: "line one\nline two"}},
		Text:    "now",
	})

	assert.Contains(t, out, "A: line ...")
	assert.Contains(t, out, "unknown: now")
}

func TestIsNoReply(t *testing.T) {
	assert.True(t, IsNoReply(" NO_REPLY \n"))
	assert.True(t, IsNoReply("no_reply"))
	assert.False(t, IsNoReply("NO_REPLY because"))
}
