package main

import (
	"context"

	"shelfwatch/internal/audit"
	checkouthandler "shelfwatch/internal/checkouts/handler"
	checkoutservice "shelfwatch/internal/checkouts/service"
	"shelfwatch/internal/events"
	"shelfwatch/internal/fanout"
	"shelfwatch/internal/guard"
	"shelfwatch/internal/health"
	"shelfwatch/internal/identity"
	scanhandler "shelfwatch/internal/scan/handler"
	scanservice "shelfwatch/internal/scan/service"
	sessionhandler "shelfwatch/internal/sessions/handler"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/internal/store"
	"shelfwatch/internal/store/memstore"
	"shelfwatch/internal/store/mongostore"
	"shelfwatch/pkg/app"
	"shelfwatch/pkg/auth"
	"shelfwatch/pkg/config"
	"shelfwatch/pkg/contracts"
	"shelfwatch/pkg/kafka"
	kafka_config "shelfwatch/pkg/kafka/config"
	kafka_middleware "shelfwatch/pkg/kafka/middleware"
	"shelfwatch/pkg/validator"

	"github.com/google/uuid"
)

const ServiceName = "shelfwatch-tracker"

type services struct {
	sessions  sessionservice.SessionService
	checkouts checkoutservice.CheckoutService
	scan      scanservice.ScanService
}

type relay struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	metrics  *kafka_middleware.Metrics
}

// tracker is the assembled service. Fields beyond app are kept for tests.
type tracker struct {
	app   *app.Application
	store store.Store
	hub   *fanout.Hub
	bus   *events.Bus
}

func main() {
	cfg := config.Load(ServiceName)
	newTracker(cfg).app.Run()
}

func newTracker(cfg *config.Config) *tracker {
	application := app.NewApplication(cfg)

	st, database := initStore(cfg)
	recorder, auditPing := initAudit(cfg)
	verifier := initVerifier(cfg)
	v := validator.New(cfg.Log)

	hub := fanout.NewHub(verifier, v, fanout.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		SendBuffer:        cfg.SubscriberSendBuffer,
	}, cfg.Log, nil)

	var sink events.Sink = hub
	kafkaRelay := initKafka(cfg, hub)
	if kafkaRelay != nil {
		sink = events.NewPublisher(kafkaRelay.producer, ServiceName)
		application.AddRunner("kafka-relay", contracts.RunnerFunc(kafkaRelay.consumer.Start))
		application.OnShutdown(func() { kafkaRelay.close(cfg) })
	}
	bus := events.NewBus(cfg.EventQueueSize, cfg.Log, nil, sink)

	svc := initServices(cfg, st, bus, recorder)

	realtime := fanout.NewHandler(hub, realtimeStats(hub, bus, kafkaRelay), cfg.Log)
	application.SetApp(
		health.NewHealthHandler(database, auditPing, cfg.Log),
		realtime,
		apiVerifier(cfg, verifier),
		scanhandler.NewScanHandler(svc.scan, v, cfg.Log),
		sessionhandler.NewSessionHandler(svc.sessions, v, cfg.Log),
		checkouthandler.NewCheckoutHandler(svc.checkouts, v, cfg.Log),
	)

	application.AddRunner("event-bus", bus)
	application.AddRunner("realtime-heartbeat", contracts.RunnerFunc(func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	}))

	return &tracker{app: application, store: st, hub: hub, bus: bus}
}

func initStore(cfg *config.Config) (store.Store, health.Pinger) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		cfg.SetMongo()
		st := mongostore.NewFromConfig(cfg)
		cfg.Log.Info("Record store initialized", "driver", cfg.StoreDriver, "database", cfg.MongoDatabaseName)
		return st, st
	default:
		st := memstore.New()
		cfg.Log.Warn("Using in-memory record store; state is lost on restart", "driver", cfg.StoreDriver)
		return st, st
	}
}

func initAudit(cfg *config.Config) (audit.Recorder, health.Pinger) {
	cfg.SetPostgres()
	if cfg.Client.Postgres == nil {
		cfg.Log.Info("Scan audit log disabled")
		return audit.Noop(), nil
	}
	cfg.Log.Info("Scan audit log writing to Postgres", "table", audit.TableName)
	return audit.NewPostgres(cfg.Client.Postgres, cfg.Log, cfg.WriteTimeout), cfg.Client.Postgres
}

func initVerifier(cfg *config.Config) auth.Verifier {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		cfg.Log.Warn("JWT_SECRET not set; generated an ephemeral secret, issued tokens will not survive a restart")
	}
	return auth.NewHMAC(secret)
}

// apiVerifier protects the REST API only when a shared secret is configured.
// Real-time subscribers always authenticate.
func apiVerifier(cfg *config.Config, verifier auth.Verifier) auth.Verifier {
	if cfg.JWTSecret == "" {
		return nil
	}
	return verifier
}

func initServices(cfg *config.Config, st store.Store, bus events.Dispatcher, recorder audit.Recorder) services {
	limits := sessionservice.TimeLimits{
		ByCategory: cfg.CategoryTimeLimits,
		Default:    cfg.DefaultTimeLimitMinutes,
	}
	g := guard.NewGuard(st, guard.Policy{
		DuplicateWindow: cfg.DuplicateWindow,
		CheckinCooldown: cfg.CheckinCooldown,
	}, cfg.Log, nil)

	releaser := checkoutservice.NewReleaser(st, cfg.Log)
	sessions := sessionservice.NewSessionService(st, g, releaser, bus, limits, cfg.Log, nil)
	checkouts := checkoutservice.NewCheckoutService(st, sessions, bus, limits, checkoutservice.LoanPolicy{
		LoanDays:        cfg.DefaultLoanDays,
		FinePerDayCents: cfg.FinePerDayCents,
	}, cfg.Log, nil)
	resolver := identity.NewResolver(st, cfg.Log)
	scan := scanservice.NewScanService(st, resolver, g, sessions, checkouts, recorder, cfg.Log, nil)

	cfg.Log.Info("Tracker services initialized")
	return services{sessions: sessions, checkouts: checkouts, scan: scan}
}

// initKafka wires the cross-instance relay: the bus publishes to the events
// topic and a per-instance consumer group feeds every event back into the
// local hub, so each instance broadcasts changes made on any instance.
func initKafka(cfg *config.Config, hub *fanout.Hub) *relay {
	if !cfg.KafkaEnabled {
		return nil
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	metrics := kafka_middleware.NewMetrics()

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, cfg.KafkaEventsTopic, cfg.KafkaEventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	groupID := cfg.KafkaGroupPrefix + "-" + uuid.NewString()
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.Log, cfg.KafkaEventsTopic, groupID, cfg.KafkaEventsDLQTopic, events.NewRelay(hub).Handle)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	}
	producer.Use(metrics.Producer())
	consumer.Use(metrics.Consumer())

	cfg.Log.Info("Kafka event relay enabled", "topic", cfg.KafkaEventsTopic, "group_id", groupID)
	return &relay{producer: producer, consumer: consumer, metrics: metrics}
}

func (r *relay) close(cfg *config.Config) {
	if err := r.consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka consumer", "error", err)
	}
	if err := r.producer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka producer", "error", err)
	}
}

func realtimeStats(hub *fanout.Hub, bus *events.Bus, r *relay) func() any {
	return func() any {
		stats := map[string]any{
			"hub": hub.Stats(),
			"bus": bus.Stats(),
		}
		if r != nil {
			stats["kafka"] = r.metrics.Snapshot()
			stats["kafka_lag"] = r.consumer.Lag()
		}
		return stats
	}
}
