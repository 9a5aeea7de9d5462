package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

// DispatchBackoff is the wait before the single retry of a transport failure
const DispatchBackoff = 2 * time.Second

var (
	// ErrEmptyContent is returned before any delivery attempt for blank content
	ErrEmptyContent = errors.New("dispatch: empty content")

	// ErrDispatchFailed wraps the final transport error after the retry
	ErrDispatchFailed = errors.New("dispatch: delivery failed")
)

// RejectHandler receives an explicit decline from the agent
type RejectHandler func(rej *domain.RejectionError)

// Dispatcher delivers payloads to the external agent with one bounded retry
type Dispatcher struct {
	delivery repo.DeliveryRepo
	backoff  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over a delivery mechanism
func NewDispatcher(delivery repo.DeliveryRepo, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		delivery: delivery,
		backoff:  DispatchBackoff,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch delivers content once. A rejection goes to onReject and is not
// retried. A transport failure is retried once after the backoff; if that
// fails too the error is returned wrapped in ErrDispatchFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, channel, endpoint, content string, onReject RejectHandler) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	req := repo.DeliveryRequest{
		DeliveryID: uuid.NewString(),
		Channel:    channel,
		Endpoint:   endpoint,
		Content:    content,
	}
	log := d.logger.With("delivery_id", req.DeliveryID, "endpoint", endpoint)

	err := d.delivery.Deliver(ctx, req)
	if err == nil {
		log.Debug("delivered")
		return nil
	}
	if d.handleRejection(log, err, onReject) {
		return nil
	}

	log.Warn("delivery failed, retrying", "error", err, "backoff", d.backoff)
	timer := time.NewTimer(d.backoff)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return fmt.Errorf("%w: %v", ErrDispatchFailed, ctx.Err())
	}

	err = d.delivery.Deliver(ctx, req)
	if err == nil {
		log.Info("delivered on retry")
		return nil
	}
	if d.handleRejection(log, err, onReject) {
		return nil
	}

	log.Error("delivery failed after retry", "error", err)
	return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
}

func (d *Dispatcher) handleRejection(log *slog.Logger, err error, onReject RejectHandler) bool {
	var rej *domain.RejectionError
	if !errors.As(err, &rej) {
		return false
	}
	log.Info("delivery rejected", "code", rej.Code, "reason", rej.Message)
	if onReject != nil {
		onReject(rej)
	}
	return true
}
