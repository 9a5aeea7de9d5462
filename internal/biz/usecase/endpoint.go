package usecase

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidEndpoint is returned when an endpoint string cannot be parsed
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// RoutingMetadata is the optional routing detail carried in an endpoint
type RoutingMetadata struct {
	Kind    string // direct or group
	Root    string
	Parent  string
	Message string
	Thread  string
}

// Endpoint is a decoded endpoint string
type Endpoint struct {
	ConversationID string
	RoutingMetadata
}

// BuildEndpoint encodes a conversation id and routing metadata into one
// opaque string the agent hands back unchanged when it replies.
func BuildEndpoint(conversationID string, meta RoutingMetadata) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("kind", meta.Kind)
	set("root", meta.Root)
	set("parent", meta.Parent)
	set("msg", meta.Message)
	set("thread", meta.Thread)

	if len(q) == 0 {
		return conversationID
	}
	// Encode sorts keys, so equal metadata always yields equal strings
	return conversationID + "?" + q.Encode()
}

// ParseEndpoint decodes a string produced by BuildEndpoint
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	id, rawQuery, _ := strings.Cut(s, "?")
	if id == "" {
		return Endpoint{}, ErrInvalidEndpoint
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Endpoint{}, errors.Join(ErrInvalidEndpoint, err)
	}
	return Endpoint{
		ConversationID: id,
		RoutingMetadata: RoutingMetadata{
			Kind:    q.Get("kind"),
			Root:    q.Get("root"),
			Parent:  q.Get("parent"),
			Message: q.Get("msg"),
			Thread:  q.Get("thread"),
		},
	}, nil
}
