package domain

import "time"

// ConversationKind distinguishes direct chats from group chats
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// ConversationKindFromChatType maps the Feishu chat_type field ("p2p", "group", "topic_group")
func ConversationKindFromChatType(chatType string) ConversationKind {
	if chatType == "p2p" {
		return ConversationDirect
	}
	return ConversationGroup
}

// ContentKind is the Feishu message type of an inbound event
type ContentKind string

const (
	ContentText        ContentKind = "text"
	ContentPost        ContentKind = "post"
	ContentImage       ContentKind = "image"
	ContentFile        ContentKind = "file"
	ContentAudio       ContentKind = "audio"
	ContentMedia       ContentKind = "media"
	ContentSticker     ContentKind = "sticker"
	ContentInteractive ContentKind = "interactive"
)

// Mention is one @mention carried by an inbound message
type Mention struct {
	Key   string // placeholder in the text, e.g. @_user_1
	ID    string // open_id
	AltID string // user_id
	Name  string
}

// InboundEvent is the transport-agnostic shape of a received message.
// It is built once by a transport adapter and never mutated afterwards.
type InboundEvent struct {
	EventID        string
	MessageID      string
	ConversationID string
	Kind           ConversationKind
	SenderID       string
	SenderAltID    string
	SenderType     string
	ContentKind    ContentKind
	RawContent     string
	Mentions       []Mention
	ThreadID       string
	RootID         string
	ParentID       string
	ReceivedAt     time.Time
}

// IsDirect reports whether the event came from a direct chat
func (e *InboundEvent) IsDirect() bool {
	return e.Kind == ConversationDirect
}

// MentionsID reports whether any mention targets the given stable identifier.
// Display names are never compared.
func (e *InboundEvent) MentionsID(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range e.Mentions {
		if m.ID == id || m.AltID == id {
			return true
		}
	}
	return false
}

// MentionsExcluding returns the mentions that do not target the given identifier
func (e *InboundEvent) MentionsExcluding(id string) []Mention {
	out := make([]Mention, 0, len(e.Mentions))
	for _, m := range e.Mentions {
		if id != "" && (m.ID == id || m.AltID == id) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HistoryKey returns the context-buffer key for the event.
// Thread messages get their own key so thread history never mixes with the parent chat.
func (e *InboundEvent) HistoryKey() string {
	return HistoryKey(e.ConversationID, e.ThreadID)
}

// HistoryKey builds a context-buffer key from a conversation and an optional thread
func HistoryKey(conversationID, threadID string) string {
	if threadID == "" {
		return conversationID
	}
	return conversationID + ":" + threadID
}
