// Command token-cleanup deletes expired and revoked refresh tokens from the
// ledger once and exits. Run it from cron or a scheduled job.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/database"
	"github.com/iliyamo/task-manager/internal/logger"
	"github.com/iliyamo/task-manager/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New("token-cleanup", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := database.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close(context.Background())

	issuer := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshSecret: cfg.JWTRefreshSecret,
		RefreshTTL:    cfg.RefreshTTL,
	}, store.Tokens)
	sessions := service.NewSessionService(store.Users, store.Tokens, issuer, cfg.BcryptCost, nil, log)

	n, err := sessions.CleanupExpired(ctx)
	if err != nil {
		log.Error("cleanup failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("refresh tokens cleaned", slog.Int64("deleted", n))
}
