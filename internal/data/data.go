package data

import (
	"fmt"
	"log/slog"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/conf"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/agent"
)

// Repositories contains all repositories
type Repositories struct {
	Feishu    *FeishuRepo
	Audit     *AuditRepo
	Snapshots *SnapshotStore
	Delivery  repo.DeliveryRepo
	// ReplySink must be pointed at the reply service once it exists
	ReplySink *SinkProxy
}

// NewRepositories creates all repositories
func NewRepositories(cfg *conf.Config, feishuClient FeishuAPI, logger *slog.Logger) (*Repositories, error) {
	auditRepo, err := NewAuditRepo(cfg.AuditDBPath())
	if err != nil {
		return nil, err
	}

	sink := &SinkProxy{}

	var delivery repo.DeliveryRepo
	switch cfg.Agent.Mode {
	case conf.AgentModeOpenAI:
		delivery = NewOpenAIDelivery(OpenAIOptions{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Logger:  logger,
		}, sink)
	case conf.AgentModeExec:
		runner := agent.NewRunner(agent.RunnerOptions{
			Command: cfg.Agent.Command,
			Args:    cfg.Agent.Args,
			Env: map[string]string{
				"BRIDGE_HTTP_ADDR": cfg.HTTP.Addr,
				"BRIDGE_CHANNEL":   cfg.Agent.Channel,
			},
			Timeout: cfg.Agent.Timeout,
			Logger:  logger,
		})
		delivery = NewExecDelivery(runner, sink, logger)
	default:
		auditRepo.Close()
		return nil, fmt.Errorf("unknown agent mode %q", cfg.Agent.Mode)
	}

	return &Repositories{
		Feishu:    NewFeishuRepo(feishuClient),
		Audit:     auditRepo,
		Snapshots: NewSnapshotStore(cfg.Storage.StateDir),
		Delivery:  delivery,
		ReplySink: sink,
	}, nil
}

// Close releases held resources
func (r *Repositories) Close() error {
	return r.Audit.Close()
}
