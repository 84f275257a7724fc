// Package audit keeps an append-only log of every scan submitted to the
// tracker. The log is informational: a failed write never changes the
// outcome of the scan that produced it.
package audit

import (
	"context"
	"time"
)

const TableName = "scan_audit"

type Entry struct {
	ID         string    `db:"id" json:"id"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Station    string    `db:"station" json:"station,omitempty"`
	Token      string    `db:"token" json:"token"`
	TokenType  string    `db:"token_type" json:"token_type"`
	Outcome    string    `db:"outcome" json:"outcome"`
	Action     string    `db:"action" json:"action,omitempty"`
	PersonID   string    `db:"person_id" json:"person_id,omitempty"`
	ResourceID string    `db:"resource_id" json:"resource_id,omitempty"`
	Message    string    `db:"message" json:"message"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

type noop struct{}

// Noop discards entries. Used when no audit database is configured.
func Noop() Recorder { return noop{} }

func (noop) Record(context.Context, Entry) error { return nil }

func (noop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }
