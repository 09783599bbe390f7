package database

import (
	"strconv"
	"strings"
)

// Dialect names a supported SQL dialect
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// IsValid returns true for supported dialects
func (d Dialect) IsValid() bool {
	return d == DialectSQLite || d == DialectPostgres
}

// Rebind rewrites '?' placeholders into the dialect's form.
// Queries are written once with '?'; postgres receives $1, $2, ...
// Placeholders inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inLiteral := false
	for _, r := range query {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(r)
		case r == '?' && !inLiteral:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
