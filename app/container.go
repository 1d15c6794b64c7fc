package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/minstrelbot/minstrel/internal/bot"
	"github.com/minstrelbot/minstrel/internal/broker"
	"github.com/minstrelbot/minstrel/internal/chain"
	"github.com/minstrelbot/minstrel/internal/checkpoint"
	"github.com/minstrelbot/minstrel/internal/generation"
	"github.com/minstrelbot/minstrel/internal/payment"
	"github.com/minstrelbot/minstrel/internal/ratelimit"
	"github.com/minstrelbot/minstrel/internal/scheduler"
	"github.com/minstrelbot/minstrel/internal/social"
	"github.com/minstrelbot/minstrel/internal/storage"
	"github.com/minstrelbot/minstrel/internal/store"
	"github.com/minstrelbot/minstrel/internal/taskqueue"
	"github.com/minstrelbot/minstrel/types"
	"github.com/minstrelbot/minstrel/types/config"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Job identifiers registered on the scheduler.
const (
	JobVerifyPending = "verify-pending"
	JobCheckpoint    = "checkpoint"
	JobCleanup       = "cleanup"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.BotConfig
	Logger *log.Logger

	// Storage connections (created once, shared)
	DB    *sql.DB
	Redis *redis.Client

	// Checkpoint backend and outbound events
	Storage   storage.Store
	Publisher broker.Publisher

	// Core services
	Limiter      *ratelimit.RateLimiter
	Queue        *taskqueue.TaskQueue
	Requests     *store.RequestStore
	Ledger       *payment.Ledger
	Scheduler    *scheduler.Scheduler
	Checkpoints  *checkpoint.Manager
	Orchestrator *bot.Orchestrator
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle. The social client, generation
// provider and chain verifier are the process's external edges and are always
// supplied by the caller.
// Pass optional WithDB, WithRedis, WithStorage etc. to inject for testing.
func NewContainer(
	ctx context.Context,
	cfg *config.BotConfig,
	socialClient social.Client,
	generator generation.Provider,
	verifier chain.Verifier,
	opts ...ContainerOption,
) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("[%s] ", cfg.Instance), log.LstdFlags)
	}

	db := opt.db
	redisClient := opt.redis

	checkpointStore := opt.storage
	if checkpointStore == nil {
		var err error
		checkpointStore, db, redisClient, err = initCheckpointStorage(ctx, cfg, db, redisClient)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}

	publisher := opt.publisher
	if publisher == nil {
		var err error
		publisher, err = initPublisher(cfg)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
	}

	requests := store.NewRequestStore(cfg.StalenessWindow, cfg.RetentionWindow, logger)

	// The ledger notifies the orchestrator, which is built afterwards; the
	// closures bind late through this variable.
	var orch *bot.Orchestrator
	ledger := payment.NewLedger(
		payment.Config{
			Price:                cfg.Price,
			DestinationAddresses: cfg.DestinationAddresses,
			MaxVerificationTime:  cfg.MaxVerificationTime,
			MaxAttempts:          cfg.MaxAttempts,
			AmountTolerance:      cfg.AmountTolerance,
		},
		verifier,
		requests,
		payment.Events{
			OnCompleted: func(p *types.PaymentRequest) { orch.OnPaymentCompleted(p) },
			OnFailed:    func(p *types.PaymentRequest) { orch.OnPaymentFailed(p) },
			OnRetried:   func(p *types.PaymentRequest) { orch.OnPaymentRetried(p) },
		},
		logger,
	)

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitPerHour, logger)
	queue := taskqueue.NewTaskQueue(cfg.TaskMaxRetries, cfg.TaskRetryDelay, logger)

	orch = bot.NewOrchestrator(
		limiter, queue, ledger, requests,
		socialClient, generator, publisher,
		cfg.ClipDuration, logger,
	)

	checkpoints := checkpoint.NewManager(requests, ledger, checkpointStore, logger)

	sched := scheduler.NewScheduler(scheduler.Events{
		OnStart: func(jobID, name string) {
			if err := publisher.Publish(context.Background(), broker.NewEvent(types.EventJobStarted, map[string]string{
				"job_id": jobID, "name": name, "instance": cfg.Instance,
			})); err != nil {
				logger.Printf("publish job start for %s: %v", jobID, err)
			}
		},
		OnComplete: func(jobID, name string, took time.Duration) {
			if err := publisher.Publish(context.Background(), broker.NewEvent(types.EventJobCompleted, map[string]string{
				"job_id": jobID, "name": name, "instance": cfg.Instance, "took": took.String(),
			})); err != nil {
				logger.Printf("publish job completion for %s: %v", jobID, err)
			}
		},
		OnError: func(jobID, name string, jobErr error) {
			logger.Printf("job %s (%s) failed: %v", jobID, name, jobErr)
			if err := publisher.Publish(context.Background(), broker.NewEvent(types.EventJobFailed, map[string]string{
				"job_id": jobID, "name": name, "instance": cfg.Instance, "error": jobErr.Error(),
			})); err != nil {
				logger.Printf("publish job failure for %s: %v", jobID, err)
			}
		},
	}, logger)

	if err := registerJobs(sched, cfg, orch, checkpoints); err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Redis:        redisClient,
		Storage:      checkpointStore,
		Publisher:    publisher,
		Limiter:      limiter,
		Queue:        queue,
		Requests:     requests,
		Ledger:       ledger,
		Scheduler:    sched,
		Checkpoints:  checkpoints,
		Orchestrator: orch,
	}, nil
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.BotConfig, orch *bot.Orchestrator, checkpoints *checkpoint.Manager) error {
	if err := sched.RegisterJob(JobVerifyPending, "re-verify stale pending payments", cfg.VerifyInterval, orch.RecheckStalePayments); err != nil {
		return err
	}
	if err := sched.RegisterJob(JobCheckpoint, "snapshot pending state", cfg.CheckpointInterval, func(ctx context.Context) error {
		checkpoints.Save(ctx)
		return nil
	}); err != nil {
		return err
	}
	return sched.RegisterCronJob(JobCleanup, "purge aged requests and rate windows", cfg.CleanupCron, orch.RunMaintenance)
}

// initCheckpointStorage creates the checkpoint backend for the configured
// driver, opening connections only when the caller did not inject them.
func initCheckpointStorage(ctx context.Context, cfg *config.BotConfig, db *sql.DB, redisClient *redis.Client) (storage.Store, *sql.DB, *redis.Client, error) {
	switch cfg.StorageDriver {
	case config.Memory:
		return storage.NewMemoryStore(), db, redisClient, nil

	case config.Redis:
		if redisClient == nil {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
			})
		}
		return storage.NewRedisStore(redisClient), db, redisClient, nil

	case config.Postgres:
		if db == nil {
			var err error
			db, err = sql.Open("postgres", cfg.PostgresConfig.ConnectionUrl)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
			}
		}
		st, err := storage.NewPostgresStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, db, redisClient, nil

	case config.Dynamo:
		st, err := storage.NewDynamoStore(ctx, cfg.DynamoConfig.Table, cfg.DynamoConfig.Region, cfg.DynamoConfig.Endpoint)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, db, redisClient, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}
}

func initPublisher(cfg *config.BotConfig) (broker.Publisher, error) {
	switch cfg.MQDriver {
	case config.NoBroker:
		return broker.Noop{}, nil
	case config.RabbitMQ:
		return broker.NewRabbitMQ(cfg.RabbitMQConfig.URL, cfg.RabbitMQConfig.Exchange, cfg.RabbitMQConfig.Queue)
	case config.Kafka:
		return broker.NewKafkaPublisher(cfg.KafkaConfig.Brokers, cfg.KafkaConfig.Topic), nil
	default:
		return nil, fmt.Errorf("unsupported message queue driver: %v", cfg.MQDriver)
	}
}

// Close releases the connections the container owns. Storage.Close releases
// the underlying database or Redis connection; injected connections stay
// with their caller.
func (c *Container) Close() error {
	var firstErr error
	if err := c.Publisher.Close(); err != nil {
		firstErr = err
	}
	if err := c.Storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
