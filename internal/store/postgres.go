package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Postgres stores documents as jsonb rows. The schema lives in
// migrations/001_documents.sql.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ DocumentStore = (*Postgres)(nil)

// NewPostgres wraps an open pool. The pool is owned by the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) ready() error {
	if p == nil || p.pool == nil {
		return apperrors.NewUnavailable(errors.New("postgres pool not configured"))
	}
	return nil
}

// Get implements DocumentStore.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := p.ready(); err != nil {
		return Document{}, err
	}
	const query = `SELECT data FROM documents WHERE collection=$1 AND id=$2`
	var raw []byte
	if err := p.pool.QueryRow(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, notFound(collection, id)
		}
		return Document{}, apperrors.NewUnavailable(fmt.Errorf("get %s/%s: %w", collection, id, err))
	}
	return decodeDocument(id, raw)
}

// Set implements DocumentStore.
func (p *Postgres) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := p.ready(); err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	const query = `
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3::jsonb)
        ON CONFLICT (collection, id) DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()`
	if _, err := p.pool.Exec(ctx, query, collection, id, string(raw)); err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("set %s/%s: %w", collection, id, err))
	}
	return nil
}

// Update implements DocumentStore with a jsonb merge, so only the given
// top-level fields change.
func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := p.ready(); err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	const query = `
        UPDATE documents SET data = data || $3::jsonb, updated_at=NOW()
        WHERE collection=$1 AND id=$2`
	cmd, err := p.pool.Exec(ctx, query, collection, id, string(raw))
	if err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("update %s/%s: %w", collection, id, err))
	}
	if cmd.RowsAffected() == 0 {
		return notFound(collection, id)
	}
	return nil
}

// Query implements DocumentStore.
func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	query, args, err := buildSelect(postgresDialect, collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewUnavailable(fmt.Errorf("query %s: %w", collection, err))
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, raw)
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
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	return p.pool.Ping(ctx)
}

// Close is a no-op; persistence.Postgres owns the pool.
func (p *Postgres) Close() error { return nil }

func decodeDocument(id string, raw []byte) (Document, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return Document{ID: id, Fields: fields}, nil
}
