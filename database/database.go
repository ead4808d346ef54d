package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite"
)

// Config holds standard database configuration.
// It is the service's responsibility to load these values.
type Config struct {
	Driver          Driver        `envconfig:"DB_DRIVER" default:"pgx"`
	DSN             string        `envconfig:"DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"15m"`
}

// Open initializes a *sql.DB with OpenTelemetry instrumentation and
// connection pooling, then pings it.
func Open(ctx context.Context, cfg Config, serviceName string) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	db, err := otelsql.Open(string(driver), cfg.DSN,
		otelsql.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		otelsql.WithDBName(dbSystem(driver)),
	)
	if err != nil {
		return nil, fmt.Errorf("database: failed to open %s connection: %w", driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if driver == DriverSQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: failed to ping database: %w", err)
	}

	return db, nil
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a file with WAL enabled.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

func dbSystem(d Driver) string {
	if d == DriverSQLite {
		return "sqlite"
	}
	return "postgres"
}
