package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/linguaverse/messaging-service/internal/api"
	"github.com/linguaverse/messaging-service/internal/config"
	"github.com/linguaverse/messaging-service/internal/events"
	"github.com/linguaverse/messaging-service/internal/logger"
	"github.com/linguaverse/messaging-service/internal/metrics"
	"github.com/linguaverse/messaging-service/internal/presence"
	"github.com/linguaverse/messaging-service/internal/repository"
	"github.com/linguaverse/messaging-service/internal/service"
	"github.com/linguaverse/messaging-service/internal/ws"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	lg, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	metrics.Init()

	ctx := context.Background()
	mc, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		lg.Fatalw("mongo connect", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	db := mc.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		lg.Fatalw("index bootstrap", "err", err)
	}

	msgRepo := repository.NewMongoMessageRepo(db)
	convRepo := repository.NewMongoConversationRepo(db)
	userRepo := repository.NewMongoUserRepo(db)

	var store presence.Store
	if cfg.Presence.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		store = presence.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.PresenceStaleAfter)
	} else {
		store = presence.NewMemoryStore(cfg.PresenceStaleAfter)
	}

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		kp := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	hub := ws.NewHub()
	tracker := presence.NewTracker(store, hub, convRepo, cfg.TypingTTL, lg)
	resolver := service.NewConversationResolver(convRepo, userRepo, lg)
	pipeline := service.NewMessagePipeline(msgRepo, convRepo, userRepo, resolver, hub, publisher, lg)

	gateway := ws.NewGateway(hub, pipeline, tracker, ws.GatewayConfig{
		JWTSecret:         cfg.JWT.Secret,
		PingInterval:      cfg.PingInterval,
		WriteDeadline:     cfg.WriteDeadline,
		MaxMessageSize:    cfg.WS.MaxMessageSizeBytes,
		SendRatePerSecond: cfg.WS.SendRatePerSecond,
		SendBurst:         cfg.WS.SendBurst,
	}, lg)

	app := api.NewServer(cfg, gateway, pipeline, resolver, tracker)

	go func() {
		lg.Infow("metrics listening", "port", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, metrics.Handler()); err != nil {
			lg.Warnw("metrics server stopped", "err", err)
		}
	}()

	go func() {
		lg.Infow("messaging core listening", "port", cfg.App.Port)
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			lg.Fatalw("server listen", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	lg.Info("messaging core stopped")
}
