package config

import "time"

const (
	DefaultRateLimitPerHour    = 5
	DefaultTaskMaxRetries      = 3
	DefaultTaskRetryDelay      = 5 * time.Second
	DefaultMaxVerificationTime = 30 * time.Minute
	DefaultMaxAttempts         = 3
	DefaultAmountTolerance     = 0.05
	DefaultCheckpointInterval  = 5 * time.Minute
	DefaultStalenessWindow     = time.Hour
	DefaultRetentionWindow     = 48 * time.Hour
	DefaultVerifyInterval      = 2 * time.Minute
	DefaultCleanupCron         = "0 * * * *"
	DefaultStorageDriver       = Memory
	DefaultClipDuration        = 30 * time.Second
)
