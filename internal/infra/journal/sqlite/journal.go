// Package sqlite keeps an archive journal in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"itemdb/internal/infra/journal/sqljournal"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "itemdb.db"

var dialect = sqljournal.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS fragments (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL
		)`,
	},
	InsertFragment:  `INSERT INTO fragments(payload) VALUES(?)`,
	SelectFragments: `SELECT payload FROM fragments ORDER BY seq`,
	UpsertUsers:     `INSERT INTO users(id, payload) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
	SelectUsers:     `SELECT payload FROM users WHERE id = 1`,
}

// Open opens or creates the journal file at path.
func Open(ctx context.Context, path string) (*sqljournal.Journal, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	j, err := sqljournal.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}
