package feishu

import (
	"errors"
	"fmt"
	"strings"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// ErrMalformedEvent marks an event that cannot enter the pipeline
var ErrMalformedEvent = errors.New("malformed message event")

// SenderTypeApp is the sender_type of messages posted by bots, including ourselves
const SenderTypeApp = "app"

// NormalizeEvent converts an SDK message event into the transport-agnostic shape.
// The message id doubles as the event id: webhook retries and the socket carry
// different header ids for the same message.
func NormalizeEvent(event *larkim.P2MessageReceiveV1, receivedAt time.Time) (domain.InboundEvent, error) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: missing message", ErrMalformedEvent)
	}
	raw := event.Event.Message

	messageID := strings.TrimSpace(str(raw.MessageId))
	chatID := strings.TrimSpace(str(raw.ChatId))
	if messageID == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: missing message_id", ErrMalformedEvent)
	}
	if chatID == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: missing chat_id", ErrMalformedEvent)
	}

	ev := domain.InboundEvent{
		EventID:        messageID,
		MessageID:      messageID,
		ConversationID: chatID,
		Kind:           domain.ConversationKindFromChatType(str(raw.ChatType)),
		ContentKind:    domain.ContentKind(str(raw.MessageType)),
		RawContent:     str(raw.Content),
		ThreadID:       str(raw.ThreadId),
		RootID:         str(raw.RootId),
		ParentID:       str(raw.ParentId),
		ReceivedAt:     receivedAt,
	}

	if sender := event.Event.Sender; sender != nil {
		ev.SenderType = str(sender.SenderType)
		if sender.SenderId != nil {
			ev.SenderID = str(sender.SenderId.OpenId)
			ev.SenderAltID = str(sender.SenderId.UserId)
			if ev.SenderAltID == "" {
				ev.SenderAltID = str(sender.SenderId.UnionId)
			}
		}
	}

	for _, m := range raw.Mentions {
		if m == nil {
			continue
		}
		mention := domain.Mention{Key: str(m.Key), Name: str(m.Name)}
		if m.Id != nil {
			mention.ID = str(m.Id.OpenId)
			mention.AltID = str(m.Id.UserId)
		}
		ev.Mentions = append(ev.Mentions, mention)
	}

	return ev, nil
}

// IsFromApp reports whether the event was posted by a bot
func IsFromApp(ev domain.InboundEvent) bool {
	return ev.SenderType == SenderTypeApp
}
