package repo

import "context"

// DeliveryRequest is one hand-off to the external agent
type DeliveryRequest struct {
	DeliveryID string `json:"delivery_id"`
	Channel    string `json:"channel"`
	Endpoint   string `json:"endpoint"`
	Content    string `json:"content"`
}

// DeliveryRepo hands content to the agent.
// An explicit decline is returned as *domain.RejectionError; any other error is a transport failure.
type DeliveryRepo interface {
	Deliver(ctx context.Context, req DeliveryRequest) error
}

// ReplySink receives answers a delivery produced synchronously
type ReplySink interface {
	Reply(ctx context.Context, endpoint, text string) error
}
