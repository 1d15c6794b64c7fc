package app

import (
	"database/sql"
	"log"

	"github.com/minstrelbot/minstrel/internal/broker"
	"github.com/minstrelbot/minstrel/internal/storage"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating from config
	db    *sql.DB
	redis *redis.Client

	storage   storage.Store
	publisher broker.Publisher
	logger    *log.Logger
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithStorage injects a checkpoint store directly, bypassing the driver
// switch. Useful for testing.
func WithStorage(st storage.Store) ContainerOption {
	return func(c *containerConfig) {
		c.storage = st
	}
}

// WithPublisher injects an event publisher, bypassing the broker switch.
func WithPublisher(p broker.Publisher) ContainerOption {
	return func(c *containerConfig) {
		c.publisher = p
	}
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = logger
	}
}
