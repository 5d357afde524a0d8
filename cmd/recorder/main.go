package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/do/v2"

	annotatorimpl "github.com/kotonoha-lab/kikitori/external/annotator"
	audioimpl "github.com/kotonoha-lab/kikitori/external/audio"
	configloader "github.com/kotonoha-lab/kikitori/external/config"
	transcriberimpl "github.com/kotonoha-lab/kikitori/external/transcriber"
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/kotonoha-lab/kikitori/internal/session"
)

const statusInterval = 2 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	runRecorder(injector)
}

func mustLoadConfig() *config.Config {
	_ = godotenv.Load()

	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	annotatorimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func runRecorder(injector do.Injector) {
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}

	if err := manager.Start(); err != nil {
		slog.Error("recording start failed", "error", err)
		os.Exit(1)
	}
	slog.Info("recording started, press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	var lastRendered string
	for {
		select {
		case <-ticker.C:
			if rendered := renderOverlay(manager); rendered != lastRendered && rendered != "" {
				fmt.Println(rendered)
				lastRendered = rendered
			}
			status := manager.Status()
			if status.State == session.StateRateLimited {
				slog.Warn("transcription rate limited", "retry_in_seconds", status.RetryInSeconds)
			}
			if status.AnnotationState == session.AnnotationRateLimited {
				slog.Warn("annotation rate limited", "retry_in_seconds", status.AnnotationRetryIn)
			}
		case <-sigCh:
			slog.Info("stopping recording")
			manager.Stop()
			if rendered := renderOverlay(manager); rendered != "" {
				fmt.Println(rendered)
			}
			status := manager.Status()
			slog.Info("session finished",
				"session_id", status.SessionID,
				"elapsed_seconds", status.ElapsedSeconds,
				"annotations", status.AnnotationCount)
			return
		}
	}
}

// renderOverlay flattens the annotated transcript into a single line,
// marking glossed words inline as word(reading: gloss).
func renderOverlay(manager *session.Manager) string {
	var b strings.Builder
	for _, token := range manager.Overlay() {
		if !token.Annotated {
			b.WriteString(token.Text)
			continue
		}
		fmt.Fprintf(&b, "%s(%s: %s)", token.Text, token.Reading, token.Gloss)
	}
	return b.String()
}
