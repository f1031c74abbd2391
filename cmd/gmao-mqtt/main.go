package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/config"
	"github.com/noeljp/GMAO-sub000/internal/service"
	"github.com/noeljp/GMAO-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, "gmao-mqtt")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting gmao-mqtt service",
		zap.String("db_host", cfg.Database.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	ingestService, err := service.NewIngestService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create ingestion service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ingestService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start ingestion service", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := ingestService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
