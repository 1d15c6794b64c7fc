package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/minstrelbot/minstrel/app"
	"github.com/minstrelbot/minstrel/internal/generation"
	"github.com/minstrelbot/minstrel/types/config"
	"github.com/minstrelbot/minstrel/web"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stderr, "[minstrel] ", log.LstdFlags)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(
		ctx,
		cfg,
		&loggingSocialClient{logger: logger},
		generation.NewFallback(logger, &loggingGenerationProvider{logger: logger}),
		&nullChainVerifier{},
		app.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("wire container: %v", err)
	}

	container.Checkpoints.Recover(ctx)

	container.Scheduler.Start()
	logger.Printf("scheduler started with jobs %v", container.Scheduler.Jobs())

	var admin *web.HttpRouteHandler
	if cfg.AdminPort > 0 {
		admin = web.NewRouteHandler(
			container.Requests,
			container.Ledger,
			container.Limiter,
			container.Queue,
			container.Scheduler,
			container.Checkpoints,
			cfg.AdminToken,
			cfg.AdminPort,
			logger,
		)
		go func() {
			if err := admin.Serve(); err != nil {
				logger.Printf("admin server: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	gracefulExit(container, admin, logger)
}

// gracefulExit stops background work, takes a final checkpoint and releases
// connections.
func gracefulExit(container *app.Container, admin *web.HttpRouteHandler, logger *log.Logger) {
	logger.Println("shutting down")

	container.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Printf("admin shutdown: %v", err)
		}
	}

	container.Checkpoints.Save(shutdownCtx)

	if err := container.Close(); err != nil {
		logger.Printf("close container: %v", err)
	}
	logger.Println("bye")
}

func loadConfig() (*config.BotConfig, error) {
	price, err := decimal.NewFromString(getenv("PRICE", "0.1"))
	if err != nil {
		return nil, fmt.Errorf("PRICE: %w", err)
	}

	addrs, err := parseAddresses(mustGetenv("DESTINATION_ADDRESSES"))
	if err != nil {
		return nil, err
	}

	opts := []config.Option{
		config.WithPrice(price),
		config.WithDestinationAddresses(addrs),
		config.WithRateLimitPerHour(getenvInt("RATE_LIMIT_PER_HOUR", config.DefaultRateLimitPerHour)),
		config.WithTaskRetries(
			getenvInt("TASK_MAX_RETRIES", config.DefaultTaskMaxRetries),
			getenvDuration("TASK_RETRY_DELAY", config.DefaultTaskRetryDelay),
		),
		config.WithVerification(
			getenvDuration("PAYMENT_MAX_VERIFICATION_TIME", config.DefaultMaxVerificationTime),
			getenvInt("PAYMENT_MAX_ATTEMPTS", config.DefaultMaxAttempts),
		),
		config.WithRequestWindows(
			getenvDuration("REQUEST_STALENESS_WINDOW", config.DefaultStalenessWindow),
			getenvDuration("REQUEST_RETENTION_WINDOW", config.DefaultRetentionWindow),
		),
		config.WithCheckpointInterval(getenvDuration("CHECKPOINT_INTERVAL", config.DefaultCheckpointInterval)),
	}

	switch driver := config.StorageDriver(getenv("STORAGE_DRIVER", string(config.DefaultStorageDriver))); driver {
	case config.Memory:
	case config.Redis:
		opts = append(opts, config.WithRedisConfig(config.RedisConfig{
			Address:  mustGetenv("REDIS_ADDR"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		}))
	case config.Postgres:
		opts = append(opts, config.WithPostgresConfig(config.PostgresConfig{
			ConnectionUrl: mustGetenv("POSTGRES_URL"),
		}))
	case config.Dynamo:
		opts = append(opts, config.WithDynamoConfig(config.DynamoConfig{
			Table:    mustGetenv("DYNAMO_TABLE"),
			Region:   getenv("AWS_REGION", "us-east-1"),
			Endpoint: getenv("DYNAMO_ENDPOINT", ""),
		}))
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", driver)
	}

	switch driver := config.MessageQueueDriver(getenv("MQ_DRIVER", "")); driver {
	case config.NoBroker:
	case config.RabbitMQ:
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:      mustGetenv("RABBITMQ_URL"),
			Exchange: getenv("RABBITMQ_EXCHANGE", "minstrel"),
			Queue:    getenv("RABBITMQ_QUEUE", "minstrel-events"),
		}))
	case config.Kafka:
		opts = append(opts, config.WithKafkaConfig(config.KafkaConfig{
			Brokers: strings.Split(mustGetenv("KAFKA_BROKERS"), ","),
			Topic:   getenv("KAFKA_TOPIC", "minstrel-events"),
		}))
	default:
		return nil, fmt.Errorf("unsupported MQ_DRIVER %q", driver)
	}

	if port := getenvInt("ADMIN_PORT", 0); port > 0 {
		opts = append(opts, config.WithAdminServer(uint(port), getenv("ADMIN_TOKEN", "")))
	}

	return config.NewBotConfig(getenv("INSTANCE", "minstrel"), opts...)
}

func parseAddresses(raw string) (map[string]string, error) {
	addrs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		chainSym, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("DESTINATION_ADDRESSES: malformed entry %q, want CHAIN=address", pair)
		}
		addrs[chainSym] = addr
	}
	return addrs, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing env: %s", key)
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("env %s: %v", key, err)
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("env %s: %v", key, err)
	}
	return d
}
