package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);`

// SQLite is a single-file DocumentStore for local runs.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ DocumentStore = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Get implements DocumentStore.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, notFound(collection, id)
		}
		return Document{}, apperrors.NewUnavailable(fmt.Errorf("get %s/%s: %w", collection, id, err))
	}
	return decodeDocument(id, []byte(raw))
}

// Set implements DocumentStore.
func (s *SQLite) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	const query = `
        INSERT INTO documents (collection, id, data, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (collection, id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(raw), now, now); err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("set %s/%s: %w", collection, id, err))
	}
	return nil
}

// Update implements DocumentStore as a read-merge-write inside one
// transaction.
func (s *SQLite) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := normalize(fields)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("begin update %s/%s: %w", collection, id, err))
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(collection, id)
		}
		return apperrors.NewUnavailable(fmt.Errorf("update %s/%s: %w", collection, id, err))
	}
	doc, err := decodeDocument(id, []byte(raw))
	if err != nil {
		return err
	}
	for k, v := range patch {
		doc.Fields[k] = v
	}
	merged, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data=?, updated_at=? WHERE collection=? AND id=?`,
		string(merged), s.now().UTC().Format(time.RFC3339Nano), collection, id)
	if err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("update %s/%s: %w", collection, id, err))
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("commit %s/%s: %w", collection, id, err))
	}
	return nil
}

// Query implements DocumentStore.
func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	query, args, err := buildSelect(sqliteDialect, collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewUnavailable(fmt.Errorf("query %s: %w", collection, err))
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewUnavailable(fmt.Errorf("query %s: %w", collection, err))
	}
	return result, nil
}

// Ping implements DocumentStore.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements DocumentStore.
func (s *SQLite) Close() error {
	return s.db.Close()
}
