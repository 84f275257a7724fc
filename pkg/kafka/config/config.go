// Package kafka_config reads the broker settings for the cross-instance event
// relay. Every tracker instance publishes the events it commits and consumes
// the whole topic under its own group, so defaults favour latency over
// throughput: small batches, leader acks, newest-offset start.
package kafka_config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"shelfwatch/pkg/logger"
)

const (
	EnvBrokers              = "KAFKA_BROKERS"
	EnvProducerMaxAttempts  = "KAFKA_PRODUCER_MAX_ATTEMPTS"
	EnvProducerBatchTimeout = "KAFKA_PRODUCER_BATCH_TIMEOUT"
	EnvProducerRequireAcks  = "KAFKA_PRODUCER_REQUIRE_ACKS"
	EnvProducerCompression  = "KAFKA_PRODUCER_COMPRESSION"
	EnvConsumerStartOffset  = "KAFKA_CONSUMER_START_OFFSET"
	EnvConsumerMaxWait      = "KAFKA_CONSUMER_MAX_WAIT"
	EnvConsumerCommitEvery  = "KAFKA_CONSUMER_COMMIT_INTERVAL"
	EnvConsumerSessionTTL   = "KAFKA_CONSUMER_SESSION_TIMEOUT"
	EnvConsumerMaxRetries   = "KAFKA_CONSUMER_MAX_RETRIES"
	EnvEnableMiddleware     = "KAFKA_ENABLE_MIDDLEWARE"
)

// StartOffset values understood by the relay consumer.
const (
	OffsetNewest int64 = -1
	OffsetOldest int64 = -2
)

var compressions = []string{"none", "gzip", "snappy", "lz4", "zstd"}

type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int // -1 all replicas, 0 none, 1 leader
	ProducerCompression  string

	ConsumerStartOffset    int64
	ConsumerMaxWait        time.Duration
	ConsumerCommitInterval time.Duration
	ConsumerSessionTimeout time.Duration
	ConsumerMaxRetries     int

	// EnableMiddleware turns on per-message debug logging on both sides.
	EnableMiddleware bool
}

// Defaults is the relay configuration used when no variable is set.
func Defaults() Config {
	return Config{
		Brokers:                []string{"localhost:9092"},
		ProducerMaxAttempts:    3,
		ProducerBatchTimeout:   5 * time.Millisecond,
		ProducerRequireAcks:    1,
		ProducerCompression:    "lz4",
		ConsumerStartOffset:    OffsetNewest,
		ConsumerMaxWait:        100 * time.Millisecond,
		ConsumerCommitInterval: 2 * time.Second,
		ConsumerSessionTimeout: 10 * time.Second,
		ConsumerMaxRetries:     1,
		EnableMiddleware:       false,
	}
}

// Load applies environment overrides to Defaults and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()
	env := envReader{}

	if raw := os.Getenv(EnvBrokers); raw != "" {
		cfg.Brokers = splitBrokers(raw)
	}
	env.setInt(EnvProducerMaxAttempts, &cfg.ProducerMaxAttempts)
	env.setDuration(EnvProducerBatchTimeout, &cfg.ProducerBatchTimeout)
	env.setInt(EnvProducerRequireAcks, &cfg.ProducerRequireAcks)
	env.setStr(EnvProducerCompression, &cfg.ProducerCompression)
	env.setInt64(EnvConsumerStartOffset, &cfg.ConsumerStartOffset)
	env.setDuration(EnvConsumerMaxWait, &cfg.ConsumerMaxWait)
	env.setDuration(EnvConsumerCommitEvery, &cfg.ConsumerCommitInterval)
	env.setDuration(EnvConsumerSessionTTL, &cfg.ConsumerSessionTimeout)
	env.setInt(EnvConsumerMaxRetries, &cfg.ConsumerMaxRetries)
	env.setBool(EnvEnableMiddleware, &cfg.EnableMiddleware)

	if err := errors.Join(append(env.errs, cfg.Validate())...); err != nil {
		return nil, fmt.Errorf("invalid kafka configuration: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	var errs []error

	if len(cfg.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required"))
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			errs = append(errs, fmt.Errorf("broker %d is empty", i))
		}
	}
	if cfg.ProducerMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("producer max attempts must be positive, got %d", cfg.ProducerMaxAttempts))
	}
	if cfg.ProducerBatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("producer batch timeout must be positive, got %s", cfg.ProducerBatchTimeout))
	}
	if cfg.ProducerRequireAcks < -1 || cfg.ProducerRequireAcks > 1 {
		errs = append(errs, fmt.Errorf("producer require acks must be -1, 0 or 1, got %d", cfg.ProducerRequireAcks))
	}
	if !slices.Contains(compressions, cfg.ProducerCompression) {
		errs = append(errs, fmt.Errorf("producer compression must be one of %v, got %q", compressions, cfg.ProducerCompression))
	}
	if cfg.ConsumerStartOffset != OffsetNewest && cfg.ConsumerStartOffset != OffsetOldest {
		errs = append(errs, fmt.Errorf("consumer start offset must be %d (newest) or %d (oldest), got %d", OffsetNewest, OffsetOldest, cfg.ConsumerStartOffset))
	}
	if cfg.ConsumerMaxWait <= 0 {
		errs = append(errs, fmt.Errorf("consumer max wait must be positive, got %s", cfg.ConsumerMaxWait))
	}
	if cfg.ConsumerCommitInterval <= 0 {
		errs = append(errs, fmt.Errorf("consumer commit interval must be positive, got %s", cfg.ConsumerCommitInterval))
	}
	if cfg.ConsumerSessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("consumer session timeout must be positive, got %s", cfg.ConsumerSessionTimeout))
	}
	if cfg.ConsumerMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("consumer max retries cannot be negative, got %d", cfg.ConsumerMaxRetries))
	}

	return errors.Join(errs...)
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka relay configuration loaded",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_batch_timeout", cfg.ProducerBatchTimeout,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_wait", cfg.ConsumerMaxWait,
		"consumer_commit_interval", cfg.ConsumerCommitInterval,
		"consumer_session_timeout", cfg.ConsumerSessionTimeout,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"enable_middleware", cfg.EnableMiddleware,
	)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		brokers = append(brokers, strings.TrimSpace(b))
	}
	return brokers
}

// envReader overwrites a field only when its variable is set, and collects
// values that fail to parse instead of silently keeping the default.
type envReader struct {
	errs []error
}

func (e *envReader) parse(key string, fn func(string) error) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	if err := fn(value); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
	}
}

func (e *envReader) setStr(key string, dst *string) {
	e.parse(key, func(v string) error { *dst = v; return nil })
}

func (e *envReader) setInt(key string, dst *int) {
	e.parse(key, func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	})
}

func (e *envReader) setInt64(key string, dst *int64) {
	e.parse(key, func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			*dst = n
		}
		return err
	})
}

func (e *envReader) setBool(key string, dst *bool) {
	e.parse(key, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err
	})
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	e.parse(key, func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			*dst = d
		}
		return err
	})
}
