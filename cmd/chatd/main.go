package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gatherly/chatkit/config"
	"github.com/gatherly/chatkit/internal/api"
	"github.com/gatherly/chatkit/internal/auth"
	"github.com/gatherly/chatkit/internal/cache"
	"github.com/gatherly/chatkit/internal/crypto"
	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/kafka"
	"github.com/gatherly/chatkit/internal/media"
	"github.com/gatherly/chatkit/internal/metrics"
	"github.com/gatherly/chatkit/internal/repository"
	"github.com/gatherly/chatkit/internal/service"
	"github.com/gatherly/chatkit/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.AppEnv == "development"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	// store
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		zl.Fatalw("mongo connect", "error", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	store := repository.NewMongoStore(mc.Database(cfg.MongoDB))
	if err := store.EnsureIndexes(ctx); err != nil {
		zl.Fatalw("mongo indexes", "error", err)
	}

	// live feed: NATS when configured, in-process bus otherwise
	var feed events.Feed
	if cfg.NatsURL != "" {
		nf, err := events.NewNatsFeed(cfg.NatsURL, zl)
		if err != nil {
			zl.Fatalw("nats connect", "error", err)
		}
		feed = nf
	} else {
		zl.Warn("nats_url not set, falling back to in-process event bus")
		feed = events.NewBus()
	}
	defer feed.Close()

	svc := service.NewChatService(store, feed, crypto.NewCodec(zl), zl)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatalw("redis ping", "error", err)
		}
		c := cache.New(rdb)
		defer c.Close()
		svc.WithCache(c)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		svc.WithExporter(producer)
	}

	var uploader *media.Uploader
	if cfg.S3Bucket != "" {
		uploader, err = media.NewUploader(ctx, cfg.S3Region, cfg.S3Bucket)
		if err != nil {
			zl.Fatalw("s3 init", "error", err)
		}
	}

	verifier, err := auth.NewVerifier(cfg.JWTAlg, cfg.JWTSecret, cfg.JWTPublicKeyPath)
	if err != nil {
		zl.Fatalw("jwt verifier", "error", err)
	}

	app := api.NewServer(svc, feed, uploader, verifier, zl)

	go func() {
		zl.Infow("metrics listening", "port", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, metrics.Handler()); err != nil {
			zl.Errorw("metrics server", "error", err)
		}
	}()

	go func() {
		zl.Infow("chatd listening", "port", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			zl.Fatalw("server listen", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Errorw("shutdown", "error", err)
	}
}
