package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/seralis/hermes/internal/admin"
	"github.com/seralis/hermes/internal/config"
	"github.com/seralis/hermes/internal/logger"
	"github.com/seralis/hermes/internal/order"
	"github.com/seralis/hermes/internal/provider"
	redisPkg "github.com/seralis/hermes/internal/redis"
	"github.com/seralis/hermes/internal/router"
	"github.com/seralis/hermes/internal/server"
	"github.com/seralis/hermes/internal/store"
	"github.com/seralis/hermes/internal/wallet"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	st, err := store.Open(&cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	var rdb *redisPkg.Client
	if cfg.Redis.Address != "" {
		rdb, err = redisPkg.New(&log, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis client")
		}
		defer rdb.Close()
	} else {
		log.Info().Msg("redis not configured, idempotency and rate limiting disabled")
	}

	var client provider.Client
	if cfg.Provider.APIKey != "" {
		client = provider.NewHTTPClient(&cfg.Provider, &log)
	} else {
		log.Warn().Msg("no provider API key configured, running with inert provider")
		client = provider.NewNopClient()
	}

	srv := server.NewServer(cfg, &log, loggerService, st)

	walletService := wallet.NewWalletService(st)
	engine := order.NewEngine(st, walletService, client, &cfg.Engine, log)
	orderService := order.NewOrderService(st, walletService, client, engine, int64(cfg.Provider.MarkupPct))

	walletHandler := wallet.NewWalletHandler(walletService)
	orderHandler := order.NewOrderHandler(orderService, rdb)
	adminHandler := admin.NewAdminHandler(walletService, st, client)

	handlers := &router.Handlers{
		Wallet: walletHandler,
		Order:  orderHandler,
		Admin:  adminHandler,
	}

	r := router.NewRouter(srv, rdb, handlers)

	srv.SetupHTTPServer(r)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Periodic store backups
	scheduler := store.NewScheduler(st, cfg.Store.BackupInterval, &log)
	go scheduler.Run(rootCtx)

	// Restore watches for orders that were in flight when we last stopped
	if err := orderService.ResumeWatches(rootCtx); err != nil {
		log.Error().Err(err).Msg("order recovery failed")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGracePeriod)
	defer cancel()

	if err := engine.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("engine shutdown incomplete")
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
