// OASIS orchestration server — drives multi-agent discussions over HTTP,
// persisting topics and streaming progress to clients.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/oasis/pkg/api"
	"github.com/codeready-toolchain/oasis/pkg/bot"
	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/experts"
	"github.com/codeready-toolchain/oasis/pkg/llm"
	"github.com/codeready-toolchain/oasis/pkg/registry"
	"github.com/codeready-toolchain/oasis/pkg/storage"
	"github.com/codeready-toolchain/oasis/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting OASIS",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Topic snapshot and workflow stores
	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "topics"))
	if err != nil {
		slog.Error("Failed to initialize topic store", "error", err)
		os.Exit(1)
	}
	workflows, err := storage.NewWorkflowStore(filepath.Join(cfg.DataDir, "workflows"))
	if err != nil {
		slog.Error("Failed to initialize workflow store", "error", err)
		os.Exit(1)
	}

	// 3. Collaborator clients
	llmClient := llm.NewHTTPClient(cfg.LLMProvider)
	internalToken := os.Getenv(cfg.Bot.TokenEnv)
	var sessionClient experts.SessionClient
	if cfg.Bot.BaseURL != "" {
		sessionClient = bot.NewClient(cfg.Bot.BaseURL, internalToken, cfg.Timeouts.Session)
		slog.Info("Bot session client initialized", "base_url", cfg.Bot.BaseURL)
	} else {
		slog.Warn("No bot runtime configured, session experts will fail")
	}
	callback := registry.NewCallbackClient(internalToken, cfg.Timeouts.Callback)

	// 4. Topic registry, restoring persisted topics
	reg := registry.New(registry.Options{
		Config:   cfg,
		Store:    store,
		LLM:      llmClient,
		Bot:      sessionClient,
		Callback: callback,
	})
	if err := reg.LoadAll(); err != nil {
		slog.Error("Failed to restore persisted topics", "error", err)
		os.Exit(1)
	}

	// 5. Start HTTP server (non-blocking)
	server := api.NewServer(":"+httpPort, reg, cfg.Presets, workflows)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	slog.Info("OASIS started successfully")

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
	}

	// 7. Graceful shutdown: stop accepting requests, then stop topic drivers
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}
	reg.Shutdown(shutdownCtx)
	slog.Info("OASIS stopped")
}
