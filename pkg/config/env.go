package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort        = "PORT"
	EnvLogLevel    = "LOG_LEVEL"
	EnvStoreDriver = "STORE_DRIVER"
	EnvJWTSecret   = "JWT_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvCheckinCooldown         = "CHECKIN_COOLDOWN"
	EnvDuplicateWindow         = "DUPLICATE_WINDOW"
	EnvCategoryTimeLimits      = "CATEGORY_TIME_LIMITS"
	EnvDefaultTimeLimitMinutes = "DEFAULT_TIME_LIMIT_MINUTES"
	EnvDefaultLoanDays         = "DEFAULT_LOAN_DAYS"
	EnvFinePerDayCents         = "FINE_PER_DAY_CENTS"

	EnvHeartbeatInterval    = "HEARTBEAT_INTERVAL"
	EnvHeartbeatTimeout     = "HEARTBEAT_TIMEOUT"
	EnvSubscriberSendBuffer = "SUBSCRIBER_SEND_BUFFER"
	EnvEventQueueSize       = "EVENT_QUEUE_SIZE"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvKafkaEventsTopic    = "KAFKA_EVENTS_TOPIC"
	EnvKafkaEventsDLQTopic = "KAFKA_EVENTS_DLQ_TOPIC"
	EnvKafkaGroupPrefix    = "KAFKA_GROUP_PREFIX"

	EnvAuditDatabaseURL = "AUDIT_DATABASE_URL"
)
