// Package store defines the document store the triage core talks to and
// its backends. Documents are flat JSON objects grouped in collections and
// addressed by string id; every backend returns query results in insertion
// order.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Op is a filter comparison.
type Op string

const (
	// OpEqual matches documents whose field equals Value.
	OpEqual Op = "=="
	// OpArrayContainsAny matches documents whose array field shares at least
	// one element with Value, which must be a []string.
	OpArrayContainsAny Op = "array-contains-any"
)

// Filter is one predicate of a Query. Filters are ANDed.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from a collection. Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	Limit   int
}

// Where appends an equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpEqual, Value: value})
	return q
}

// WhereAny appends an array-contains-any filter.
func (q Query) WhereAny(field string, values []string) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpArrayContainsAny, Value: values})
	return q
}

// Take sets the result limit.
func (q Query) Take(limit int) Query {
	q.Limit = limit
	return q
}

// DocumentStore is the collaborator every component receives instead of a
// global client.
type DocumentStore interface {
	// Get returns the document or a NOT_FOUND domain error.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update overwrites only the given fields of an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Query returns matching documents in insertion order.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Ping(ctx context.Context) error
	Close() error
}

// Document is a stored record. Fields hold JSON-decoded values: strings,
// float64, bool, nil, []any and map[string]any.
type Document struct {
	ID     string
	Fields map[string]any
}

// String returns the field as a string, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// OptionalString returns nil for absent, null or empty string fields.
func (d Document) OptionalString(field string) *string {
	s, ok := d.Fields[field].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Strings returns an array field as strings, skipping non-string elements.
func (d Document) Strings(field string) []string {
	raw, ok := d.Fields[field].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Time parses an RFC 3339 field; the zero time is returned otherwise.
func (d Document) Time(field string) time.Time {
	s, ok := d.Fields[field].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// normalize turns arbitrary Go values into their JSON-decoded form so every
// backend hands back the same shapes.
func normalize(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func notFound(collection, id string) error {
	return apperrors.NewNotFound("document", map[string]any{"collection": collection, "id": id})
}

func validateFilter(f Filter) error {
	switch f.Op {
	case OpEqual:
		return nil
	case OpArrayContainsAny:
		if _, ok := f.Value.([]string); !ok {
			return fmt.Errorf("filter %s: %s needs []string, got %T", f.Field, f.Op, f.Value)
		}
		return nil
	default:
		return fmt.Errorf("filter %s: unsupported op %q", f.Field, f.Op)
	}
}
