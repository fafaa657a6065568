// Command connector bridges a DingTalk bot to an LLM completion backend,
// streaming replies into AI cards. The inbound transport (DingTalk's managed
// persistent-connection client) is attached at startup through the
// bridge.Listener contract.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhuxian89/dingtalk-moltbot-connector/bridge"
	"github.com/zhuxian89/dingtalk-moltbot-connector/card"
	"github.com/zhuxian89/dingtalk-moltbot-connector/completion"
	"github.com/zhuxian89/dingtalk-moltbot-connector/config"
	"github.com/zhuxian89/dingtalk-moltbot-connector/credentials"
	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
	"github.com/zhuxian89/dingtalk-moltbot-connector/media"
	metrics "github.com/zhuxian89/dingtalk-moltbot-connector/metrics/prometheus"
	"github.com/zhuxian89/dingtalk-moltbot-connector/session"
	"github.com/zhuxian89/dingtalk-moltbot-connector/telemetry"
	"github.com/zhuxian89/dingtalk-moltbot-connector/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		logger.Error("connector exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "dingtalk-moltbot-connector")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		telemetry.SetupPropagation()
	}

	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter(cfg.Metrics.Addr)
		go func() {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics exporter failed", "error", err)
			}
		}()
		defer func() { _ = exporter.Shutdown(context.Background()) }()
	}

	tokenSource := credentials.NewDingTalkTokenSource(cfg.DingTalk.AppKey, cfg.DingTalk.AppSecret)
	tokenCache := credentials.NewCache(tokenSource.Fetch)

	cardClient := card.NewClient(tokenCache)
	cardController := card.NewController(cardClient, cfg.DingTalk.CardTemplateID)

	completionClient := completion.NewClient(
		cfg.Completion.BaseURL,
		cfg.Completion.Model,
		completion.WithCredential(credentials.NewStaticCredential(cfg.Completion.APIKey)),
	)

	resolver := media.NewResolver(media.NewHTTPUploader())

	orchestrator := bridge.NewOrchestrator(
		session.NewRegistry(),
		cardController,
		completionClient,
		resolver,
		tokenCache,
		bridge.NewWebhookReplier(),
		bridge.Options{
			SessionTimeout:     cfg.Session.Timeout(),
			CustomPrompt:       cfg.Prompt.Custom,
			MediaUploadEnabled: cfg.Media.UploadEnabled,
			RobotCode:          cfg.DingTalk.RobotCode,
			GroupDisabled:      !cfg.Policy.GroupAllowed(),
			DirectDisabled:     !cfg.Policy.DirectAllowed(),
		},
	)

	listener, err := newTransportListener(cfg)
	if err != nil {
		return err
	}

	attrs := append(version.LogAttrs(),
		"model", cfg.Completion.Model,
		"endpoint", cfg.Completion.BaseURL,
		"media_upload", cfg.Media.UploadEnabled,
	)
	logger.Info("connector started", attrs...)

	if err := listener.Listen(ctx, orchestrator); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("transport listener failed: %w", err)
	}
	return nil
}
