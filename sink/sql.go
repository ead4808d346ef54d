package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/database"
)

const DefaultTable = "audit_events"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    event_id     TEXT PRIMARY KEY,
    occurred_at  TIMESTAMPTZ NOT NULL,
    duration_ms  DOUBLE PRECISION NOT NULL,
    target_type  TEXT,
    operation    TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    actor_id     TEXT,
    trace_id     TEXT,
    request_id   TEXT,
    payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_time ON %[1]s(occurred_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_actor ON %[1]s(actor_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    event_id     TEXT PRIMARY KEY,
    occurred_at  TEXT NOT NULL,
    duration_ms  REAL NOT NULL,
    target_type  TEXT,
    operation    TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    actor_id     TEXT,
    trace_id     TEXT,
    request_id   TEXT,
    payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_time ON %[1]s(occurred_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_actor ON %[1]s(actor_id);
`

// SQLSink inserts one row per event. Rows are keyed by event ID, so
// replaying an event is a no-op.
type SQLSink struct {
	db     *sql.DB
	insert string
}

// NewSQLSink creates the table if needed. The sink takes ownership of db.
func NewSQLSink(ctx context.Context, db *sql.DB, driver database.Driver, table string) (*SQLSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sink/sql: invalid table name %q", table)
	}

	schema, insert := sqliteSchema, "INSERT INTO %s (event_id, occurred_at, duration_ms, target_type, operation, outcome, actor_id, trace_id, request_id, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if driver == database.DriverPostgres {
		schema, insert = postgresSchema, "INSERT INTO %s (event_id, occurred_at, duration_ms, target_type, operation, outcome, actor_id, trace_id, request_id, payload) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, table)); err != nil {
		return nil, fmt.Errorf("sink/sql: create table %s: %w", table, err)
	}

	return &SQLSink{db: db, insert: fmt.Sprintf(insert, table)}, nil
}

func (s *SQLSink) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink/sql: marshal failed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.insert,
		event.ID(),
		event.Timestamp().UTC(),
		float64(event.Duration().Microseconds())/1000,
		nullable(event.TargetType().String()),
		event.Operation().String(),
		outcome(event),
		nullable(event.ActorID()),
		nullable(event.TraceID()),
		nullable(event.RequestID()),
		string(payload),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("sink/sql: insert event %s: %w", event.ID(), err)
	}
	return nil
}

func (s *SQLSink) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLSink) Close() error                   { return s.db.Close() }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
