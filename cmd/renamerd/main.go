package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renameflux/renameflux/internal/completion"
	"github.com/renameflux/renameflux/internal/config"
	"github.com/renameflux/renameflux/internal/engine"
	"github.com/renameflux/renameflux/internal/events"
	"github.com/renameflux/renameflux/internal/logging"
	"github.com/renameflux/renameflux/internal/server"
	"github.com/renameflux/renameflux/internal/telegramapi"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New("renamerd", cfg.Log.Level)

	newClient, ok := telegramapi.RegisteredFactory()
	if !ok {
		logger.Error("no protocol client registered; link a telegramapi implementation")
		os.Exit(1)
	}

	hub := events.NewHub()
	tracker := completion.NewTracker()
	sup := engine.NewSupervisor(logger, hub, tracker, newClient, engine.Options{
		ChunkSize:       cfg.Engine.ChunkSize,
		MemoryThreshold: cfg.Engine.MemoryThreshold,
		SpoolDir:        cfg.Engine.SpoolDir,
		MinDelay:        cfg.Engine.MinDelay,
		OTPTimeout:      cfg.Engine.OTPTimeout,
		OTPRetries:      cfg.Engine.OTPRetries,
		ScanPageSize:    cfg.Engine.ScanPageSize,
		ScanRetries:     cfg.Engine.ScanRetries,
	})

	router := server.NewRouter(sup, logger, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}
