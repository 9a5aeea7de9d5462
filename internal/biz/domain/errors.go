package domain

import "fmt"

// PermissionError is returned by remote lookups when the app lacks a scope.
// URL, when present, points the operator at the page that grants it.
type PermissionError struct {
	Code    int
	Message string
	URL     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied (code %d): %s", e.Code, e.Message)
}

// RejectionError is an explicit application-level decline from the agent.
// Retrying cannot change the outcome.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Code == "" {
		return "rejected: " + e.Message
	}
	return fmt.Sprintf("rejected (%s): %s", e.Code, e.Message)
}
