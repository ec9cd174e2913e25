package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/app"
	"github.com/alnlabs/gmstation/internal/config"
	"github.com/alnlabs/gmstation/internal/logger"
)

func main() {
	// Optional .env for local development; the environment wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	addr := flag.String("addr", cfg.ListenAddr, "Status server listen address")
	dbPath := flag.String("db", cfg.DBPath, "Path to station database")
	orchestrator := flag.String("orchestrator", cfg.OrchestratorURL, "Orchestrator websocket URL")
	gameMode := flag.String("game-mode", cfg.GameMode, "Game mode override (blackmarket or black-market)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.ListenAddr = *addr
	cfg.DBPath = *dbPath
	cfg.OrchestratorURL = *orchestrator
	cfg.GameMode = *gameMode
	cfg.LogLevel = *logLevel

	logg := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	ctx := context.Background()
	station, err := app.New(ctx, logg, cfg, clockwork.NewRealClock())
	if err != nil {
		logg.Error("Failed to initialize station", "error", err)
		os.Exit(1)
	}
	defer station.Close()

	decision, err := station.Startup(ctx)
	if err != nil {
		logg.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	logg.Info("Station ready", "screen", decision.Screen)

	// Force teardown of the channel on shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logg.Info("Shutting down")
		station.Close()
		os.Exit(0)
	}()

	if err := station.Run(cfg.ListenAddr); err != nil {
		logg.Error("Status server failed", "error", err)
		os.Exit(1)
	}
}
