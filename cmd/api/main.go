package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gu-corp/nft-cart-backend/api/routes"
	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
	"github.com/gu-corp/nft-cart-backend/internal/exchange"
	"github.com/gu-corp/nft-cart-backend/internal/session"
	"github.com/gu-corp/nft-cart-backend/internal/tokens"
	"github.com/gu-corp/nft-cart-backend/pkg/config"
	"github.com/gu-corp/nft-cart-backend/pkg/db"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/metrics"
	"github.com/gu-corp/nft-cart-backend/pkg/migrate"
	"github.com/gu-corp/nft-cart-backend/pkg/outbox"
	"github.com/gu-corp/nft-cart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cart-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cart-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(registry)

	sessions, err := session.NewService(cfg.JWT, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	tokenService, err := tokens.NewService(tokens.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create token service", err)
		os.Exit(1)
	}

	var events cartsvc.Events = cartsvc.NoopEvents{}
	if cfg.FeatureFlags.EventsEnabled {
		events = cartsvc.NewOutboxEvents(dbClient, outbox.NewService(outbox.NewRepository(dbClient.DB()), logg), logg)
	}

	exchangeClient := exchange.NewDevClient()
	if cfg.Exchange.Endpoint != "" {
		exchangeClient, err = exchange.NewHTTPClient(cfg.Exchange, cfg.App.ChainID)
		if err != nil {
			logg.Error(context.Background(), "failed to create exchange client", err)
			os.Exit(1)
		}
	}

	cartManager, err := cartsvc.NewManager(cartsvc.ManagerDeps{
		Redis:    redisClient,
		Lookup:   tokenService,
		Exchange: exchangeClient,
		Events:   events,
		Metrics:  cartMetrics,
		Logger:   logg,
		Cfg:      cfg.Cart,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart manager", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting cart api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Cfg:         cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Sessions:    sessions,
			CartManager: cartManager,
			Tokens:      tokenService,
			Registry:    registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "cart api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
