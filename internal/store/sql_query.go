package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// dialect renders filters for one SQL backend. Both backends keep documents
// in a single `documents` table keyed by (collection, id).
type dialect struct {
	placeholder sq.PlaceholderFormat
	order       string
	equal       func(field string, value any) sq.Sqlizer
	containsAny func(field string, values []string) sq.Sqlizer
}

var postgresDialect = dialect{
	placeholder: sq.Dollar,
	order:       "seq ASC",
	equal: func(field string, value any) sq.Sqlizer {
		return sq.Expr("data->>?::text = ?::text", field, fmt.Sprint(value))
	},
	containsAny: func(field string, values []string) sq.Sqlizer {
		// ?? renders as the literal jsonb ?| operator.
		return sq.Expr("data->?::text ??| ?::text[]", field, values)
	},
}

var sqliteDialect = dialect{
	placeholder: sq.Question,
	order:       "rowid ASC",
	equal: func(field string, value any) sq.Sqlizer {
		return sq.Expr("json_extract(data, ?) = ?", jsonPath(field), value)
	},
	containsAny: func(field string, values []string) sq.Sqlizer {
		args := make([]any, 0, len(values)+1)
		args = append(args, jsonPath(field))
		for _, v := range values {
			args = append(args, v)
		}
		return sq.Expr(
			"EXISTS (SELECT 1 FROM json_each(documents.data, ?) WHERE json_each.value IN ("+sq.Placeholders(len(values))+"))",
			args...)
	},
}

func jsonPath(field string) string {
	return fmt.Sprintf("$.%q", field)
}

// buildSelect renders a Query into SQL selecting (id, data).
func buildSelect(d dialect, collection string, q Query) (string, []any, error) {
	builder := sq.Select("id", "data").
		From("documents").
		Where(sq.Eq{"collection": collection}).
		OrderBy(d.order).
		PlaceholderFormat(d.placeholder)

	for _, f := range q.Filters {
		if err := validateFilter(f); err != nil {
			return "", nil, err
		}
		switch f.Op {
		case OpEqual:
			builder = builder.Where(d.equal(f.Field, f.Value))
		case OpArrayContainsAny:
			values := f.Value.([]string)
			if len(values) == 0 {
				// Nothing can intersect an empty set.
				builder = builder.Where(sq.Expr("1 = 0"))
				continue
			}
			builder = builder.Where(d.containsAny(f.Field, values))
		}
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder.ToSql()
}
