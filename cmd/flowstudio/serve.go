package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jxucoder/flowstudio/internal/config"
	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/github"
	"github.com/jxucoder/flowstudio/internal/llm"
	"github.com/jxucoder/flowstudio/internal/logging"
	"github.com/jxucoder/flowstudio/internal/server"
	fsslack "github.com/jxucoder/flowstudio/internal/slack"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
	fstelegram "github.com/jxucoder/flowstudio/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FlowStudio server",
	Long:  "Start the FlowStudio API server and any configured chat channels.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	provider, apiKey := cfg.LLMProvider()
	client, err := llm.New(llm.Options{Provider: provider, APIKey: apiKey, BaseURL: cfg.LLM.BaseURL})
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}
	settings := cfg.CopilotSettings()
	logger.Info("copilot configured",
		zap.String("provider", provider),
		zap.String("model", settings.Model),
		zap.Int("context_window", settings.ContextWindow))

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer st.Close()

	var issues studio.IssueTracker
	if cfg.GitHubEnabled() {
		issues = github.NewClient(cfg.GitHubToken)
		logger.Info("build handoff enabled (GitHub issues)")
	}

	cp := copilot.New(client, nil, settings, logger.Named("copilot"))
	svc := studio.New(st, store.NewEventBus(), cp, issues, logger.Named("studio"))
	var opts []server.Option
	if cfg.GitHubWebhookEnabled() {
		opts = append(opts, server.WithWebhookSecret(cfg.GitHubWebhookSecret))
		logger.Info("GitHub issue comment webhook enabled", zap.String("path", "/api/webhooks/github"))
	}
	srv := server.New(cfg.ServerAddr, svc, logger.Named("http"), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })

	if cfg.SlackEnabled() {
		bot := fsslack.NewBot(cfg.SlackBotToken, cfg.SlackAppToken, svc, logger.Named("slack"))
		logger.Info("Slack bot enabled (Socket Mode)")
		g.Go(func() error {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Slack bot stopped", zap.Error(err))
			}
			return nil
		})
	}

	if cfg.TelegramEnabled() {
		bot, err := fstelegram.NewBot(cfg.TelegramBotToken, svc, logger.Named("telegram"))
		if err != nil {
			logger.Warn("failed to initialize Telegram bot", zap.Error(err))
		} else {
			logger.Info("Telegram bot enabled (long polling)")
			g.Go(func() error { return bot.Run(ctx) })
		}
	}

	return g.Wait()
}
