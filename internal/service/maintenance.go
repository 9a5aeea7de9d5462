package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/devricklin/feishu-agent-bridge/internal/biz"
)

// Maintenance schedules
const (
	dedupSweepSpec     = "@every 1m"
	identityFlushSpec  = "@every 60s"
	indicatorSweepSpec = "@every 30s"
)

// Maintenance runs the periodic housekeeping jobs independent of traffic
type Maintenance struct {
	cron   *cron.Cron
	uc     *biz.Usecases
	logger *slog.Logger
}

// NewMaintenance creates the scheduler; jobs are registered by Start
func NewMaintenance(uc *biz.Usecases, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "maintenance")
	return &Maintenance{
		// a slow flush must not overlap the next one
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		uc:     uc,
		logger: logger,
	}
}

// Run schedules the jobs and blocks until ctx is done, then waits for
// running jobs to finish
func (m *Maintenance) Run(ctx context.Context) error {
	jobs := []struct {
		spec string
		fn   func()
	}{
		{dedupSweepSpec, m.sweepDedup},
		{identityFlushSpec, func() { m.flushIdentities(context.Background()) }},
		{indicatorSweepSpec, func() { m.sweepIndicators(context.Background()) }},
	}
	for _, j := range jobs {
		if _, err := m.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("schedule %q: %w", j.spec, err)
		}
	}

	m.cron.Start()
	m.logger.Info("maintenance started")

	<-ctx.Done()
	<-m.cron.Stop().Done()
	m.logger.Info("maintenance stopped")
	return nil
}

// RunOnce runs every job immediately, in order
func (m *Maintenance) RunOnce(ctx context.Context) {
	m.sweepDedup()
	m.flushIdentities(ctx)
	m.sweepIndicators(ctx)
}

func (m *Maintenance) sweepDedup() {
	if n := m.uc.Dedup.Sweep(); n > 0 {
		m.logger.Debug("dedup ledger swept", "evicted", n, "remaining", m.uc.Dedup.Len())
	}
}

func (m *Maintenance) flushIdentities(ctx context.Context) {
	if err := m.uc.Identity.Flush(ctx); err != nil {
		m.logger.Warn("identity snapshot not written", "error", err)
	}
}

func (m *Maintenance) sweepIndicators(ctx context.Context) {
	if n := m.uc.Indicator.SweepStale(ctx); n > 0 {
		m.logger.Info("stale indicators cleared", "count", n)
	}
}
