package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-service/config"
	"market-service/internal/api"
	"market-service/internal/auth"
	"market-service/internal/broker"
	"market-service/internal/realtime"
	"market-service/internal/redisclient"
	"market-service/internal/repository"
	"market-service/internal/service"
	"market-service/internal/store"
	"market-service/internal/store/memory"
	"market-service/internal/util"
	"market-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backends holds the stores the services are built on
type backends struct {
	items        repository.ItemStore
	transactions repository.TransactionStore
	messages     repository.MessageStore
	reviews      repository.ReviewStore
	inbox        repository.InboxStore
	typing       repository.TypingStore
	presence     repository.PresenceStore
	wishlist     repository.WishlistStore
	dedup        service.Deduplicator
	locker       service.Locker
	checks       map[string]api.Pinger
	closers      []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Printf("Error closing backend: %v", err)
		}
	}
}

// openBackends connects Postgres and Redis, or builds the in-memory store
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		st := memory.New()
		return &backends{
			items: st, transactions: st, messages: st, reviews: st,
			inbox: st, typing: st, presence: st, wishlist: st,
			dedup: st, locker: st,
			checks: map[string]api.Pinger{},
		}, nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &backends{
		items: db, transactions: db, messages: db, reviews: db,
		inbox: redisClient, typing: redisClient, presence: redisClient, wishlist: redisClient,
		dedup: redisClient, locker: redisClient,
		checks: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
		closers: []func() error{db.Close, redisClient.Close},
	}, nil
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting market service",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Database.Driver),
		zap.Bool("kafka", cfg.Kafka.Enabled))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("market-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	ctx := context.Background()
	b, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer b.Close()
	logger.Info("Stores ready", zap.String("driver", cfg.Database.Driver))

	hub := realtime.NewHub()

	// Events go through Kafka when it is enabled, otherwise straight to the
	// notification worker.
	var (
		notifier *worker.NotificationWorker
		sink     broker.Sink
	)
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMarket)
		defer producer.Close()
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicMarket, cfg.Kafka.ConsumerGroup)
		notifier = worker.NewNotificationWorker(consumer, hub, b.dedup)
		sink = producer
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicMarket))
	} else {
		notifier = worker.NewNotificationWorker(nil, hub, b.dedup)
		local := broker.NewLocalProducer(notifier.Handler())
		defer local.Close()
		sink = local
	}
	events := broker.NewEventPublisher(sink)

	reviews := service.NewReviewService(b.items, b.transactions, b.reviews, events)
	svc := api.Services{
		Transactions: service.NewTransactionService(b.items, b.transactions, b.locker, events, cfg.Business.ReserveLockTTL),
		Chat: service.NewChatService(b.items, b.transactions, b.messages, b.inbox, b.typing, b.dedup, events, service.ChatConfig{
			TypingTTL:      cfg.Business.TypingTTL,
			IdempotencyTTL: cfg.Business.IdempotencyTTL,
		}),
		Reviews: reviews,
		Items:   service.NewItemService(b.items, b.transactions, b.wishlist, b.presence, reviews),
	}
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Leeway)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go func() {
		if err := notifier.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(svc, tokens, hub, b.checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notifier.Stop(); err != nil {
		logger.Warn("Error stopping notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
