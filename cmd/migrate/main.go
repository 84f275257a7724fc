package main

import (
	"context"
	"fmt"
	"time"

	"shelfwatch/internal/audit"
	mongoMigration "shelfwatch/internal/migrations/mongo"
	"shelfwatch/pkg/config"
)

const JobName = "shelfwatch-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	cfg.SetPostgres()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job")
	migrateMongo(ctx, cfg)
	migratePostgres(ctx, cfg)
	fmt.Println("🎉 Migration completed successfully.")
}

func migrateMongo(ctx context.Context, cfg *config.Config) {
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName); err != nil {
		cfg.Log.Fatal("Mongo migration failed", "error", err)
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config) {
	if cfg.Client.Postgres == nil {
		cfg.Log.Info("No audit database configured, skipping Postgres migration")
		return
	}
	if err := audit.EnsureSchema(ctx, cfg.Client.Postgres); err != nil {
		cfg.Log.Fatal("Postgres migration failed", "error", err)
	}
	fmt.Printf("📚 Ensured table %s\n", audit.TableName)
}
