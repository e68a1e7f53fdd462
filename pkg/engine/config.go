package engine

import "time"

// Config holds engine tuning loaded from the environment.
type Config struct {
	MaxRetries          int           `env:"NOTIFY_MAX_RETRIES" envDefault:"3"`
	BackoffBase         time.Duration `env:"NOTIFY_BACKOFF_BASE" envDefault:"60s"`
	SchedulerInterval   time.Duration `env:"NOTIFY_SCHEDULER_INTERVAL" envDefault:"30s"`
	SchedulerBatch      int           `env:"NOTIFY_SCHEDULER_BATCH" envDefault:"100"`
	DeliveryConcurrency int           `env:"NOTIFY_DELIVERY_CONCURRENCY" envDefault:"32"`

	// CountFailedAttempts preserves the upstream policy of charging the
	// daily quota for every accepted attempt regardless of delivery
	// outcome. Disable to charge only successful deliveries.
	CountFailedAttempts bool `env:"NOTIFY_COUNT_FAILED_ATTEMPTS" envDefault:"true"`

	// CallbackSecret signs and verifies provider delivery callbacks.
	CallbackSecret string `env:"NOTIFY_CALLBACK_SECRET"`

	// CallbackMaxAge bounds the signature timestamp window against
	// replays.
	CallbackMaxAge time.Duration `env:"NOTIFY_CALLBACK_MAX_AGE" envDefault:"5m"`
}
