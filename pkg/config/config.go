package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"shelfwatch/pkg/client"
	"shelfwatch/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port        string
	StoreDriver string
	JWTSecret   string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	CheckinCooldown         time.Duration
	DuplicateWindow         time.Duration
	CategoryTimeLimits      map[string]int
	DefaultTimeLimitMinutes int
	DefaultLoanDays         int
	FinePerDayCents         int

	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	SubscriberSendBuffer int
	EventQueueSize       int

	KafkaEnabled        bool
	KafkaEventsTopic    string
	KafkaEventsDLQTopic string
	KafkaGroupPrefix    string

	AuditDatabaseURL string

	Log    *logger.Logger
	Client *client.Client

	parseErrors []string
}

// Load reads the configuration from the environment and exits the process
// when it does not validate.
func Load(serviceName string) *Config {
	cfg := FromEnv(serviceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func FromEnv(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port:        getEnvStr(EnvPort, DefaultPort),
		StoreDriver: getEnvStr(EnvStoreDriver, DefaultStoreDriver),
		JWTSecret:   getEnvStr(EnvJWTSecret, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		CheckinCooldown:         getEnvDuration(EnvCheckinCooldown, DefaultCheckinCooldown),
		DuplicateWindow:         getEnvDuration(EnvDuplicateWindow, DefaultDuplicateWindow),
		DefaultTimeLimitMinutes: getEnvNum(EnvDefaultTimeLimitMinutes, DefaultDefaultTimeLimitMinutes),
		DefaultLoanDays:         getEnvNum(EnvDefaultLoanDays, DefaultLoanDays),
		FinePerDayCents:         getEnvNum(EnvFinePerDayCents, DefaultFinePerDayCents),

		HeartbeatInterval:    getEnvDuration(EnvHeartbeatInterval, DefaultHeartbeatInterval),
		HeartbeatTimeout:     getEnvDuration(EnvHeartbeatTimeout, DefaultHeartbeatTimeout),
		SubscriberSendBuffer: getEnvNum(EnvSubscriberSendBuffer, DefaultSubscriberSendBuffer),
		EventQueueSize:       getEnvNum(EnvEventQueueSize, DefaultEventQueueSize),

		KafkaEnabled:        getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaEventsTopic:    getEnvStr(EnvKafkaEventsTopic, DefaultKafkaEventsTopic),
		KafkaEventsDLQTopic: getEnvStr(EnvKafkaEventsDLQTopic, DefaultKafkaEventsDLQTopic),
		KafkaGroupPrefix:    getEnvStr(EnvKafkaGroupPrefix, DefaultKafkaGroupPrefix),

		AuditDatabaseURL: getEnvStr(EnvAuditDatabaseURL, ""),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	limits, err := ParseCategoryTimeLimits(getEnvStr(EnvCategoryTimeLimits, DefaultCategoryTimeLimits))
	if err != nil {
		cfg.parseErrors = append(cfg.parseErrors, err.Error())
	}
	cfg.CategoryTimeLimits = limits

	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	if cfg.AuditDatabaseURL == "" {
		return
	}
	cfg.Client.SetPostgres(cfg.Log, cfg.AuditDatabaseURL, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	errors := append([]string{}, cfg.parseErrors...)

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreDriverMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoreDriverMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [%s, %s], got: %s", StoreDriverMongo, StoreDriverMemory, cfg.StoreDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.CheckinCooldown < 0 {
		errors = append(errors, fmt.Sprintf("CheckinCooldown cannot be negative, got: %s", cfg.CheckinCooldown))
	}
	if cfg.DuplicateWindow < 0 {
		errors = append(errors, fmt.Sprintf("DuplicateWindow cannot be negative, got: %s", cfg.DuplicateWindow))
	}
	if cfg.DefaultTimeLimitMinutes <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultTimeLimitMinutes must be positive, got: %d", cfg.DefaultTimeLimitMinutes))
	}
	if cfg.DefaultLoanDays <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultLoanDays must be positive, got: %d", cfg.DefaultLoanDays))
	}
	if cfg.FinePerDayCents < 0 {
		errors = append(errors, fmt.Sprintf("FinePerDayCents cannot be negative, got: %d", cfg.FinePerDayCents))
	}

	if cfg.HeartbeatInterval <= 0 {
		errors = append(errors, fmt.Sprintf("HeartbeatInterval must be positive, got: %s", cfg.HeartbeatInterval))
	}
	if cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		errors = append(errors, fmt.Sprintf("HeartbeatTimeout (%s) must be greater than HeartbeatInterval (%s)", cfg.HeartbeatTimeout, cfg.HeartbeatInterval))
	}
	if cfg.SubscriberSendBuffer <= 0 {
		errors = append(errors, fmt.Sprintf("SubscriberSendBuffer must be positive, got: %d", cfg.SubscriberSendBuffer))
	}
	if cfg.EventQueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("EventQueueSize must be positive, got: %d", cfg.EventQueueSize))
	}

	if cfg.KafkaEnabled && cfg.KafkaEventsTopic == "" {
		errors = append(errors, "KafkaEventsTopic cannot be empty when Kafka is enabled")
	}
	if cfg.AuditDatabaseURL != "" && !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.AuditDatabaseURL) {
		errors = append(errors, "AuditDatabaseURL must start with 'postgres://' or 'postgresql://'")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"checkin_cooldown", cfg.CheckinCooldown,
		"duplicate_window", cfg.DuplicateWindow,
		"category_time_limits", FormatCategoryTimeLimits(cfg.CategoryTimeLimits),
		"default_time_limit_minutes", cfg.DefaultTimeLimitMinutes,
		"default_loan_days", cfg.DefaultLoanDays,
		"fine_per_day_cents", cfg.FinePerDayCents,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"heartbeat_timeout", cfg.HeartbeatTimeout,
		"subscriber_send_buffer", cfg.SubscriberSendBuffer,
		"event_queue_size", cfg.EventQueueSize,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_events_topic", cfg.KafkaEventsTopic,
		"audit_enabled", cfg.AuditDatabaseURL != "",
	)
}

// ParseCategoryTimeLimits parses "PRIMARY=30,JUNIOR_HIGH=90" into a lookup table.
// Category names are upper-cased.
func ParseCategoryTimeLimits(s string) (map[string]int, error) {
	limits := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, minutes, ok := strings.Cut(pair, "=")
		if !ok {
			return limits, fmt.Errorf("CategoryTimeLimits entry %q must be CATEGORY=MINUTES", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(minutes))
		if err != nil || n <= 0 {
			return limits, fmt.Errorf("CategoryTimeLimits entry %q must have a positive minute value", pair)
		}
		limits[strings.ToUpper(strings.TrimSpace(name))] = n
	}
	return limits, nil
}

func FormatCategoryTimeLimits(limits map[string]int) string {
	keys := make([]string, 0, len(limits))
	for k := range limits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, limits[k]))
	}
	return strings.Join(parts, ",")
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
