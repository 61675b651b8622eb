package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/probecall/probecall/pkg/bridge"
	"github.com/probecall/probecall/pkg/calls"
	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/metrics"
	"github.com/probecall/probecall/pkg/probecall"
	"github.com/probecall/probecall/pkg/realtime"
	"github.com/probecall/probecall/pkg/redact"
	"github.com/probecall/probecall/pkg/runner"
	"github.com/probecall/probecall/pkg/scenario"
	"github.com/probecall/probecall/pkg/transcripts"
	"github.com/probecall/probecall/pkg/transports/telnyx"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := probecall.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	obs, flushMetrics := buildObserver(cfg.Observability.ArtifactsDir)
	defer flushMetrics()

	telnyxSettings, err := cfg.TelnyxSettings()
	if err != nil {
		panic(err)
	}
	realtimeCfg, err := cfg.RealtimeConfig()
	if err != nil {
		panic(err)
	}

	store, err := transcripts.NewFileStore(cfg.Call.TranscriptsDir)
	if err != nil {
		panic(err)
	}

	client := telnyx.NewClient(telnyx.ClientConfig{
		APIKey:  telnyxSettings.APIKey,
		BaseURL: telnyxSettings.BaseURL,
	}, nil)
	registry := calls.NewRegistry()
	controller := calls.NewController(calls.ControllerConfig{
		StreamURL:       cfg.StreamURL(),
		MaxCallDuration: cfg.MaxCallDuration(),
	}, registry, client, store, obs)

	dialSpeech := func(ctx context.Context, instructions string) (bridge.SpeechSession, error) {
		c := realtime.NewClient(realtimeCfg)
		if err := c.Connect(ctx, instructions); err != nil {
			return nil, err
		}
		return c, nil
	}

	transport := telnyx.New(telnyx.Config{
		ServerAddr:   cfg.Server.Addr,
		WebhookPath:  cfg.Server.WebhookPath,
		StreamPath:   cfg.Server.StreamPath,
		WebhookURL:   cfg.WebhookURL(),
		TargetNumber: cfg.Call.TargetNumber,
		FromNumber:   telnyxSettings.FromNumber,
		ConnectionID: telnyxSettings.ConnectionID,
	}, telnyx.Deps{
		Client:     client,
		Registry:   registry,
		Controller: controller,
		Catalog:    scenario.DefaultCatalog(),
		DialSpeech: dialSpeech,
		Observer:   obs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	life := runner.NewLifecycleRunner(drainFunc(transport.Stop), runner.Hooks{
		OnStart: func() {
			if err := transport.Start(ctx); err != nil {
				slog.Error("transport start failed", slog.String("error", err.Error()))
				cancel()
				return
			}
			slog.Info("probe ready",
				slog.String("addr", cfg.Server.Addr),
				slog.String("webhook_url", cfg.WebhookURL()),
				slog.String("stream_url", cfg.StreamURL()),
				slog.String("target", cfg.Call.TargetNumber))
		},
		OnStop: func() {
			slog.Info("probe stopped")
		},
	}, cfg.MaxCallDuration())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := life.Run(ctx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
	}
}

// buildObserver wires JSONL metrics behind an async fan-out when an
// artifacts directory is configured.
func buildObserver(artifactsDir string) (metrics.Observer, func()) {
	if artifactsDir == "" {
		return metrics.NoopObserver{}, func() {}
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		slog.Warn("artifacts dir unavailable, metrics disabled", slog.String("error", err.Error()))
		return metrics.NoopObserver{}, func() {}
	}
	f, err := os.OpenFile(filepath.Join(artifactsDir, "events.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("metrics file unavailable, metrics disabled", slog.String("error", err.Error()))
		return metrics.NoopObserver{}, func() {}
	}
	async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 256)
	return async, func() {
		async.Close()
		_ = f.Close()
	}
}

type drainFunc func() error

func (f drainFunc) Drain() error { return f() }
