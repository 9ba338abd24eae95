package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thereayou/esim-portal/cmd/server"
	"github.com/thereayou/esim-portal/internal/config"
	"github.com/thereayou/esim-portal/pkg/logger"
)

func main() {
	bootLogger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	config.LoadEnv(bootLogger)

	cfg := config.Load()

	zapLogger, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Config loaded",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.Bool("redis_relay", cfg.RedisRelay),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to bootstrap server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		zapLogger.Fatal("Server stopped with error", zap.Error(err))
	}
}
