package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/voicebridge/internal/app"
	"github.com/sebas/voicebridge/internal/banner"
	"github.com/sebas/voicebridge/internal/config"
	"github.com/sebas/voicebridge/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	printBanner(cfg)

	// Create server
	server, err := app.NewServer(cfg)
	if err != nil {
		slog.Error("Failed to create voicebridge server", "error", err)
		os.Exit(1)
	}

	run(server, cfg)
}

func run(server *app.VoiceBridge, cfg *config.Config) {
	slog.Info("Starting VoiceBridge Server",
		"port", cfg.Port,
		"domain", cfg.PublicDomain,
		"model", cfg.RealtimeModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
		cancel()
		if err := <-errCh; err != nil {
			slog.Error("Shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}
}

func printBanner(cfg *config.Config) {
	catalogLabel := cfg.CatalogPath
	if catalogLabel == "" {
		catalogLabel = "(none, transfers disabled)"
	}

	banner.Print("VoiceBridge Media Server", []banner.ConfigLine{
		{Label: "HTTP", Value: fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)},
		{Label: "Stream URL", Value: cfg.StreamURL()},
		{Label: "Realtime Model", Value: cfg.RealtimeModel},
		{Label: "Voice", Value: cfg.AgentVoice},
		{Label: "Departments", Value: catalogLabel},
		{Label: "Log Level", Value: cfg.LogLevel},
	})
}
