package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/agent"
)

// AgentRunner runs one agent invocation
type AgentRunner interface {
	Run(ctx context.Context, input []byte) (agent.Response, error)
}

// execDelivery hands each request to a fresh agent process
type execDelivery struct {
	runner AgentRunner
	sink   repo.ReplySink
	logger *slog.Logger
}

// NewExecDelivery creates a delivery backed by the agent command
func NewExecDelivery(runner AgentRunner, sink repo.ReplySink, logger *slog.Logger) repo.DeliveryRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &execDelivery{runner: runner, sink: sink, logger: logger.With("component", "exec_delivery")}
}

// Deliver runs the agent. ok:false becomes a rejection; anything else that fails is transport.
func (d *execDelivery) Deliver(ctx context.Context, req repo.DeliveryRequest) error {
	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	resp, err := d.runner.Run(ctx, input)
	if err != nil {
		return err
	}
	if !resp.OK {
		rej := &domain.RejectionError{Code: "rejected", Message: "declined"}
		if resp.Error != nil {
			if resp.Error.Code != "" {
				rej.Code = resp.Error.Code
			}
			if resp.Error.Message != "" {
				rej.Message = resp.Error.Message
			}
		}
		return rej
	}

	if resp.Reply != "" && d.sink != nil {
		if err := d.sink.Reply(ctx, req.Endpoint, resp.Reply); err != nil {
			d.logger.Warn("posting synchronous reply failed", "delivery_id", req.DeliveryID, "error", err)
		}
	}
	return nil
}

// SinkProxy lets deliveries be built before the reply service exists
type SinkProxy struct {
	mu     sync.RWMutex
	target repo.ReplySink
}

// Set installs the real sink
func (p *SinkProxy) Set(target repo.ReplySink) {
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

// Reply forwards to the installed sink
func (p *SinkProxy) Reply(ctx context.Context, endpoint, text string) error {
	p.mu.RLock()
	target := p.target
	p.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("reply sink not configured")
	}
	return target.Reply(ctx, endpoint, text)
}
