package domain

import "time"

// IdentityEntry caches the display name of a sender
type IdentityEntry struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"-"`
}

// Expired reports whether the entry is past its TTL at the given time
func (e IdentityEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
