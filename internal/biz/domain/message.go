package domain

import "time"

// HistoryEntry is one message kept in a conversation context buffer
type HistoryEntry struct {
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	Timestamp  time.Time
}

// RemoteMessage is a raw message returned by the remote history API
type RemoteMessage struct {
	MessageID   string
	SenderID    string
	SenderType  string // user, app
	ContentKind ContentKind
	RawContent  string
	Mentions    []Mention
	CreateTime  time.Time
}

// IsFromApp reports whether the message was sent by a bot
func (m *RemoteMessage) IsFromApp() bool {
	return m.SenderType == "app"
}
