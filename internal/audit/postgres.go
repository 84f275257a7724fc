package audit

import (
	"context"
	"fmt"
	"time"

	"shelfwatch/pkg/logger"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialectPostgres = "postgres"

	colOccurredAt = "occurred_at"
)

// Schema creates the audit table. It is applied by cmd/migrate.
const Schema = `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id          TEXT PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	station     TEXT NOT NULL DEFAULT '',
	token       TEXT NOT NULL,
	token_type  TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	action      TEXT NOT NULL DEFAULT '',
	person_id   TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ` + TableName + `_occurred_at_idx ON ` + TableName + ` (occurred_at DESC);`

type Postgres struct {
	pool    *pgxpool.Pool
	log     *logger.Logger
	timeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, log *logger.Logger, timeout time.Duration) *Postgres {
	return &Postgres{pool: pool, log: log, timeout: timeout}
}

func (p *Postgres) Record(ctx context.Context, entry Entry) error {
	query, args, err := buildInsert(entry)
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query, args, err := buildRecent(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build audit select: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[Entry])
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	return entries, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create %s: %w", TableName, err)
	}
	return nil
}

func buildInsert(entry Entry) (string, []any, error) {
	return goqu.Dialect(dialectPostgres).
		Insert(TableName).
		Prepared(true).
		Rows(entry).
		ToSQL()
}

func buildRecent(limit int) (string, []any, error) {
	return goqu.Dialect(dialectPostgres).
		From(TableName).
		Prepared(true).
		Select(&Entry{}).
		Order(goqu.I(colOccurredAt).Desc()).
		Limit(uint(limit)).
		ToSQL()
}
