// Package querysql compiles document filters into parameterized SQLite.
//
// Documents are stored as JSON bodies; filter fields are addressed with
// json_extract. Field names are validated against a strict pattern and
// values are always bound as parameters, never interpolated.
package querysql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

// fieldPattern accepts dotted JSON paths such as "account" or "origins.ip".
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// OrderBy is the ordering every document query uses: stamp first, id as a
// deterministic tiebreaker.
const OrderBy = "ORDER BY updated_at ASC, id COLLATE BINARY ASC"

// CompileFilter converts filter into a WHERE fragment (without the WHERE
// keyword) and its parameters. Keys are emitted in sorted order so that the
// same filter always compiles to the same SQL.
//
// An empty filter compiles to "1 = 1".
func CompileFilter(filter live.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "1 = 1", nil, nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	var params []any
	for _, field := range fields {
		if !fieldPattern.MatchString(field) {
			return "", nil, fmt.Errorf("invalid filter field %q", field)
		}
		path := "json_extract(body, '$." + field + "')"

		value := filter[field]
		if value == nil {
			parts = append(parts, path+" IS NULL")
			continue
		}
		param, err := toParam(value)
		if err != nil {
			return "", nil, fmt.Errorf("filter field %q: %w", field, err)
		}
		parts = append(parts, path+" = ?")
		params = append(params, param)
	}
	return strings.Join(parts, " AND "), params, nil
}

// CompileFind builds the full SELECT for a filtered find over one
// collection. The collection is always the first parameter.
func CompileFind(collection string, filter live.Filter) (string, []any, error) {
	where, params, err := CompileFilter(filter)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT body FROM documents WHERE collection = ? AND " + where + " " + OrderBy
	return sql, append([]any{collection}, params...), nil
}

// toParam converts a filter value to a SQLite parameter. json_extract
// yields 1/0 for JSON booleans, so booleans are bound as integers.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case string, int, int32, int64, uint32, float64:
		return val, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
