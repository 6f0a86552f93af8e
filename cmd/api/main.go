package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/cache"
	"github.com/undangke/coupon-service/internal/config"
	httphandler "github.com/undangke/coupon-service/internal/delivery/http"
	"github.com/undangke/coupon-service/internal/delivery/kafka"
	"github.com/undangke/coupon-service/internal/repository"
	"github.com/undangke/coupon-service/internal/usecase"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	pool, err := initDB(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := repository.RunMigrations(pool, "db/migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	store := repository.New(pool)

	var couponCache usecase.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		couponCache = cache.New(redisClient, cfg.CouponCacheTTL(), logger)
		logger.Info("coupon cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	engine := usecase.NewCouponEngine(store, couponCache, logger)

	var gateway usecase.CouponGateway
	var kafkaClient *kgo.Client
	var replyConsumer *kgo.Client
	var retryClient *kgo.Client

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EventDrivenEnabled == "true" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		kafkaClient, err = newConsumerClient(
			brokers,
			cfg.KafkaClientID,
			cfg.KafkaGroupID,
			kafka.TopicCreateRequest,
			kafka.TopicValidateRequest,
			kafka.TopicApplyRequest,
			kafka.TopicGetRequest,
		)
		if err != nil {
			logger.Fatal("failed to create kafka client", zap.Error(err))
		}

		if err := kafka.EnsureTopics(ctx, kafkaClient, cfg, logger); err != nil {
			logger.Warn("failed to ensure topics", zap.Error(err))
		}

		kgateway := kafka.NewGateway(cfg, kafkaClient, logger)
		gateway = kgateway

		consumer := kafka.NewConsumer(cfg, kafkaClient, engine, logger)
		go consumer.Start(ctx)

		retryClient, err = newConsumerClient(
			brokers,
			cfg.KafkaClientID+"-retry",
			cfg.KafkaRetryGroupID,
			kafka.TopicCreateRetry,
			kafka.TopicValidateRetry,
			kafka.TopicApplyRetry,
			kafka.TopicGetRetry,
		)
		if err != nil {
			logger.Fatal("failed to create retry kafka client", zap.Error(err))
		}
		retryConsumer := kafka.NewConsumer(cfg, retryClient, engine, logger)
		go retryConsumer.StartRetry(ctx)

		replyTopic := fmt.Sprintf("%s%s", kafka.TopicReplyPrefix, cfg.KafkaInstanceID)
		replyConsumer, err = newReplyClient(
			brokers,
			cfg.KafkaClientID+"-reply",
			replyTopic,
		)
		if err != nil {
			logger.Fatal("failed to create reply kafka client", zap.Error(err))
		}

		startReplyPoller(ctx, replyConsumer, kgateway)
	} else {
		gateway = kafka.NewDirectGateway(engine)
	}

	handler := httphandler.NewHandler(gateway, engine)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler.Routes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting server", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	if kafkaClient != nil {
		kafkaClient.Close()
	}
	if replyConsumer != nil {
		replyConsumer.Close()
	}
	if retryClient != nil {
		retryClient.Close()
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func initDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

func newConsumerClient(brokers []string, clientID, groupID string, topics ...string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
}

func newReplyClient(brokers []string, clientID, topic string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumeTopics(topic),
	)
}

func startReplyPoller(ctx context.Context, client *kgo.Client, gateway *kafka.Gateway) {
	go func() {
		for {
			fetches := client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return
			}
			iter := fetches.RecordIter()
			for !iter.Done() {
				record := iter.Next()
				gateway.HandleResponse(record.Value)
			}
		}
	}()
}
