// Package postgres keeps an archive journal in PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"itemdb/internal/infra/journal/sqljournal"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/itemdb?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var dialect = sqljournal.Dialect{
	Name: "postgres",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS fragments (
			seq BIGSERIAL PRIMARY KEY,
			payload BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BYTEA NOT NULL
		)`,
	},
	InsertFragment:  `INSERT INTO fragments(payload) VALUES($1)`,
	SelectFragments: `SELECT payload FROM fragments ORDER BY seq`,
	UpsertUsers:     `INSERT INTO users(id, payload) VALUES($1, $2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`,
	SelectUsers:     `SELECT payload FROM users WHERE id = 1`,
}

// Open connects with dsn (falling back to a local default), checks the
// connection and ensures the journal tables exist.
func Open(ctx context.Context, dsn string) (*sqljournal.Journal, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	j, err := sqljournal.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
