package domain

import "time"

// OwnerBinding records the single privileged identity of a deployment
type OwnerBinding struct {
	Bound       bool      `json:"bound"`
	PrimaryID   string    `json:"primary_id"`
	AltID       string    `json:"alt_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	BoundAt     time.Time `json:"bound_at,omitempty"`
}

// Matches reports whether either identifier belongs to the owner
func (o OwnerBinding) Matches(id, altID string) bool {
	if !o.Bound {
		return false
	}
	if id != "" && (id == o.PrimaryID || id == o.AltID) {
		return true
	}
	return altID != "" && (altID == o.PrimaryID || altID == o.AltID)
}
