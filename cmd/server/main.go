package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/arena"
	"github.com/krio-rogue/fotm-server/internal/config"
	"github.com/krio-rogue/fotm-server/internal/httpapi"
	"github.com/krio-rogue/fotm-server/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	ctx := context.Background()
	a := arena.New(ctx, logger, st, nil)

	handler := httpapi.SetupRoutes(a, st, logger)

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
