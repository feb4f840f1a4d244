// Package sqljournal implements the archive journal on database/sql. The
// sqlite and postgres packages supply the dialect and the driver.
package sqljournal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Dialect holds the statements for one SQL engine. Placeholders follow the
// engine's syntax; UpsertUsers takes (id, payload).
type Dialect struct {
	Name            string
	Schema          []string
	InsertFragment  string
	SelectFragments string
	UpsertUsers     string
	SelectUsers     string
}

// usersRow is the single row id of the users table.
const usersRow = 1

// Journal stores fragments as ordered rows and the user list as one row.
type Journal struct {
	db *sql.DB
	d  Dialect
}

// New applies the dialect schema and returns a journal over db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Journal, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: apply schema: %w", d.Name, err)
		}
	}
	return &Journal{db: db, d: d}, nil
}

// Fragments implements archive.Journal.
func (j *Journal) Fragments(ctx context.Context) ([][]byte, error) {
	rows, err := j.db.QueryContext(ctx, j.d.SelectFragments)
	if err != nil {
		return nil, fmt.Errorf("%s: select fragments: %w", j.d.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%s: scan fragment: %w", j.d.Name, err)
		}
		out = append(out, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate fragments: %w", j.d.Name, err)
	}
	return out, nil
}

// Append implements archive.Journal.
func (j *Journal) Append(ctx context.Context, fragment []byte) error {
	if _, err := j.db.ExecContext(ctx, j.d.InsertFragment, fragment); err != nil {
		return fmt.Errorf("%s: insert fragment: %w", j.d.Name, err)
	}
	return nil
}

// Users implements archive.Journal.
func (j *Journal) Users(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := j.db.QueryRowContext(ctx, j.d.SelectUsers).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: select users: %w", j.d.Name, err)
	}
	return payload, nil
}

// ReplaceUsers implements archive.Journal.
func (j *Journal) ReplaceUsers(ctx context.Context, doc []byte) error {
	if _, err := j.db.ExecContext(ctx, j.d.UpsertUsers, usersRow, doc); err != nil {
		return fmt.Errorf("%s: upsert users: %w", j.d.Name, err)
	}
	return nil
}

// Close implements archive.Journal.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the handle for diagnostics.
func (j *Journal) DB() *sql.DB { return j.db }
