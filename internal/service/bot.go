package service

import "sync"

// BotIdentity is the bridge's own identity on the chat platform.
// It is discovered after startup, so readers must tolerate empty values.
type BotIdentity struct {
	mu   sync.RWMutex
	id   string
	name string
}

// NewBotIdentity creates an identity with a configured display name
func NewBotIdentity(id, name string) *BotIdentity {
	return &BotIdentity{id: id, name: name}
}

// Set replaces the identity; empty values keep the previous ones
func (b *BotIdentity) Set(id, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id != "" {
		b.id = id
	}
	if name != "" {
		b.name = name
	}
}

// ID returns the bot's open_id
func (b *BotIdentity) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Name returns the bot's display name
func (b *BotIdentity) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}
