package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sciventures/bitmarket-gateway/internal/bitmarket"
	"github.com/sciventures/bitmarket-gateway/internal/cache"
	"github.com/sciventures/bitmarket-gateway/internal/config"
	"github.com/sciventures/bitmarket-gateway/internal/database"
	"github.com/sciventures/bitmarket-gateway/internal/repo"
	"github.com/sciventures/bitmarket-gateway/internal/server"
	"github.com/sciventures/bitmarket-gateway/internal/service"
	"github.com/sciventures/bitmarket-gateway/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db := database.NewPostgres()
	defer db.Close()

	if err := database.Bootstrap(ctx, db); err != nil {
		log.Fatalf("database: %v", err)
	}

	orderRepo := repo.NewOrderRepo(db)
	settingsRepo := repo.NewSettingsRepo(db)
	gateway := bitmarket.NewClient(cfg.APIBaseURL)

	var completed cache.CompletionCache
	if cfg.RedisAddr != "" {
		store := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer store.Close()
		completed = store
	}

	checkoutService := service.NewCheckoutService(db, orderRepo, settingsRepo, gateway, cfg)
	callbackService := service.NewCallbackService(db, orderRepo, settingsRepo, completed)

	if cfg.ReconcileInterval > 0 {
		sweeper := worker.NewReconciliationWorker(db, orderRepo, cfg.ReconcileInterval, cfg.PendingTTL)
		go sweeper.Run(ctx)
	}

	srv := server.New(cfg, checkoutService, callbackService, database.New(db))

	go func() {
		log.Printf("Bitmarket gateway listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
