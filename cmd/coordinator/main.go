// Package main provides the session coordinator binary that serves the
// WebSocket endpoint for room-based game and chat sessions.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/parlor/internal/auth"
	"github.com/cory-johannsen/parlor/internal/config"
	"github.com/cory-johannsen/parlor/internal/coordinator"
	"github.com/cory-johannsen/parlor/internal/observability"
	"github.com/cory-johannsen/parlor/internal/server"
	"github.com/cory-johannsen/parlor/internal/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	authenticator := auth.NewAuthenticator(cfg.Auth)
	dispatcher := coordinator.NewDispatcher(logger)
	registry := coordinator.NewRegistry()
	coord := coordinator.NewCoordinator(cfg.Rooms, registry, dispatcher, logger)
	handler := ws.NewHandler(cfg.Server, cfg.Rooms, authenticator, coord, dispatcher, logger)
	acceptor := ws.NewAcceptor(cfg.Server, handler, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("websocket", acceptor.ListenAndServe, acceptor.Stop)

	logger.Info("coordinator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
