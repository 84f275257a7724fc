package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "shelfwatch"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultStoreDriver = StoreDriverMongo

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	// Check-in cooldown is off unless configured.
	DefaultCheckinCooldown         = 0 * time.Minute
	DefaultDuplicateWindow         = 30 * time.Minute
	DefaultCategoryTimeLimits      = "PRIMARY=30,ELEMENTARY=60,JUNIOR_HIGH=90,SENIOR_HIGH=120"
	DefaultDefaultTimeLimitMinutes = 60
	DefaultLoanDays                = 14
	DefaultFinePerDayCents         = 500

	DefaultHeartbeatInterval    = 15 * time.Second
	DefaultHeartbeatTimeout     = 30 * time.Second
	DefaultSubscriberSendBuffer = 64
	DefaultEventQueueSize       = 1024

	DefaultKafkaEnabled        = false
	DefaultKafkaEventsTopic    = "shelfwatch.events"
	DefaultKafkaEventsDLQTopic = "shelfwatch.events.dlq"
	DefaultKafkaGroupPrefix    = "shelfwatch-fanout"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)
