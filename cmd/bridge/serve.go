package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/devricklin/feishu-agent-bridge/internal/api"
	"github.com/devricklin/feishu-agent-bridge/internal/biz"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
	"github.com/devricklin/feishu-agent-bridge/internal/conf"
	"github.com/devricklin/feishu-agent-bridge/internal/data"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/feishu"
	"github.com/devricklin/feishu-agent-bridge/internal/infra/logutil"
	"github.com/devricklin/feishu-agent-bridge/internal/mcp"
	"github.com/devricklin/feishu-agent-bridge/internal/server"
	"github.com/devricklin/feishu-agent-bridge/internal/service"
)

const shutdownGrace = 10 * time.Second

func runBridge(ctx context.Context) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logutil.New(logutil.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	level, _ := logutil.ParseLevel(cfg.Log.Level)

	feishuClient := feishu.NewClient(feishu.Options{
		AppID:       cfg.Feishu.AppID,
		AppSecret:   cfg.Feishu.AppSecret,
		Domain:      cfg.Feishu.Domain,
		DownloadDir: cfg.MediaDir(),
		Logger:      logger,
	})

	bot := service.NewBotIdentity("", cfg.Bot.DisplayName)
	if info, err := feishuClient.FetchBotInfo(ctx); err != nil {
		// Without the bot id, mention gating cannot recognize the bot
		logger.Warn("fetch bot info failed", "error", err)
	} else {
		bot.Set(info.OpenID, "")
		logger.Info("bot identity", "open_id", info.OpenID, "app_name", info.AppName)
	}

	repos, err := data.NewRepositories(cfg, feishuClient, logger)
	if err != nil {
		return fmt.Errorf("create repositories: %w", err)
	}
	defer repos.Close()

	policy, err := conf.LoadPolicy(cfg.Storage.PolicyPath)
	if err != nil {
		return err
	}
	policies := conf.NewPolicyStore(cfg.Storage.PolicyPath, policy)

	identity := usecase.NewIdentityResolver(repos.Feishu, repos.Snapshots, cfg.Bot.DisplayName, nil, logger)
	if id := bot.ID(); id != "" {
		identity.AddSelfID(id)
	}
	uc := &biz.Usecases{
		Dedup:      usecase.NewDedupLedger(),
		Owner:      usecase.NewOwnerRegistry(repos.Snapshots, logger),
		Context:    usecase.NewContextCache(repos.Feishu, identity, policy.HistoryLimitFor(""), logger),
		Identity:   identity,
		Indicator:  usecase.NewEngagementIndicator(repos.Feishu, cfg.Bot.IndicatorEmoji, logger),
		Dispatcher: usecase.NewDispatcher(repos.Delivery, logger),
		Payload:    usecase.NewContextBuilderUsecase(cfg.ToPromptConfig()),
	}
	if err := uc.Owner.Load(ctx); err != nil {
		logger.Warn("load owner binding failed", "error", err)
	}
	if err := uc.Identity.Load(ctx); err != nil {
		logger.Warn("load identity snapshot failed", "error", err)
	}
	uc.Identity.SetNotifier(service.NewOwnerNotifier(uc.Owner, repos.Feishu))

	replies := service.NewReplyService(repos.Feishu, uc.Context, uc.Indicator, repos.Audit, policies, bot, logger)
	repos.ReplySink.Set(replies)

	pipeline := service.NewPipeline(service.PipelineDeps{
		Usecases: uc,
		Policies: policies,
		Messages: repos.Feishu,
		Media:    repos.Feishu,
		Audit:    repos.Audit,
		Replies:  replies,
		Bot:      bot,
		Channel:  cfg.Agent.Channel,
		Logger:   logger,
	})
	events := server.NewEventDispatcher(pipeline, cfg.Feishu.VerificationToken, cfg.Feishu.EncryptKey, logger)

	routes := []server.Route{
		api.NewHandler(replies, uc, bot).Register,
		server.MountRoute("/mcp", mcp.NewHTTPHandler(mcp.NewServer(replies, Version, logger))),
	}
	if cfg.Feishu.Transport == conf.TransportWebhook {
		webhook := server.NewWebhookHandler(events, cfg.Feishu.VerificationToken, cfg.Feishu.EncryptKey, logger)
		routes = append(routes, server.WebhookRoute(cfg.HTTP.WebhookPath, webhook))
	}
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, logger, routes...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(gctx) })
	g.Go(func() error { return conf.NewWatcher(policies, logger).Run(gctx) })
	g.Go(func() error { return service.NewMaintenance(uc, logger).Run(gctx) })
	if cfg.Feishu.Transport == conf.TransportWebSocket {
		ws := server.NewWSServer(server.WSOptions{
			AppID:     cfg.Feishu.AppID,
			AppSecret: cfg.Feishu.AppSecret,
			BaseURL:   feishu.BaseURL(cfg.Feishu.Domain),
			LogLevel:  level,
			Logger:    logger,
		}, events)
		g.Go(func() error { return ws.Run(gctx) })
	}

	logger.Info("bridge started",
		"version", Version,
		"transport", cfg.Feishu.Transport,
		"agent_mode", cfg.Agent.Mode,
		"http_addr", cfg.HTTP.Addr,
	)
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	pipeline.Wait(shutdownCtx)
	uc.Indicator.Shutdown(shutdownCtx)
	if err := uc.Identity.Flush(shutdownCtx); err != nil {
		logger.Warn("flush identity snapshot failed", "error", err)
	}
	logger.Info("bridge stopped")
	return runErr
}
