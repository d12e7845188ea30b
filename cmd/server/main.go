package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/avdonin/marketplace/internal/cache"
	"github.com/avdonin/marketplace/internal/config"
	"github.com/avdonin/marketplace/internal/es"
	"github.com/avdonin/marketplace/internal/handlers"
	carthdl "github.com/avdonin/marketplace/internal/handlers/cart"
	"github.com/avdonin/marketplace/internal/logging"
	authmw "github.com/avdonin/marketplace/internal/middleware/auth"
	"github.com/avdonin/marketplace/internal/mykafka"
	cartsvc "github.com/avdonin/marketplace/internal/service/cart"
	"github.com/avdonin/marketplace/internal/service/catalog"
	"github.com/avdonin/marketplace/internal/service/search"
	"github.com/avdonin/marketplace/internal/service/token"
	httpserver "github.com/avdonin/marketplace/internal/transport/http"
	"github.com/avdonin/marketplace/internal/validate"
	"github.com/avdonin/marketplace/pkg/db"
	loggingmw "github.com/avdonin/marketplace/pkg/middleware/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.RefreshSecret, "REFRESH_SECRET")

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(database); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		if err := mykafka.EnsureTopics(cfg.KafkaBrokers[0],
			mykafka.TopicUserEvents, mykafka.TopicProductEvents, mykafka.TopicCartEvents); err != nil {
			logger.Warn("kafka topic setup failed", "error", err)
		}
		producer = mykafka.NewProducer(cfg.KafkaBrokers)
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events disabled")
	}

	catalogSvc := catalog.NewService(database)

	var searchHandler *handlers.SearchHandler
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(cfg, logger)
		if err != nil {
			logger.Error("elasticsearch init failed", "error", err)
			os.Exit(1)
		}
		catalogSvc.Indexer = &search.ProductIndexer{ES: esClient, Index: cfg.ESIndex}
		searchHandler = &handlers.SearchHandler{ES: esClient, Index: cfg.ESIndex}
	} else {
		logger.Warn("ES_URL not set, search disabled")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, product cache disabled", "error", err)
		} else {
			catalogSvc.Cache = cache.NewProductCache(rdb)
		}
	}

	tokens := &token.Service{
		DB:            database,
		JWTSecret:     []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	var publisher mykafka.Publisher
	if producer != nil {
		publisher = producer
	}

	deps := httpserver.Deps{
		Auth:           &authmw.Middleware{Tokens: tokens},
		AuthHandler:    &handlers.AuthHandler{DB: database, Tokens: tokens, Producer: publisher},
		ProductHandler: &handlers.ProductHandler{Catalog: catalogSvc, Producer: publisher},
		CartHandler:    &carthdl.CartHandler{Cart: cartsvc.NewService(database), Producer: publisher},
		SearchHandler:  searchHandler,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("server started", "port", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := database.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
