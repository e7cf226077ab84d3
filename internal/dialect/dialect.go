// Package dialect describes the relational backends queries are rendered for.
//
// A Dialect supplies three things: the LIKE escape character, the driver
// used to open connections, and the vendor specific way of paging a result
// set. Nothing here talks to a database.
package dialect

import (
	"fmt"
	"strings"
)

// EscapeProvider returns the LIKE escape character of the active backend.
//
// The value may be a vendor-escaped multi-character form (for example a
// doubled backslash); consumers use its last character.
type EscapeProvider interface {
	EscapeCharacter() string
}

// Dialect is an EscapeProvider plus backend identity and paging rules.
type Dialect interface {
	EscapeProvider

	// Name is the short lowercase name used in configuration.
	Name() string

	// DriverName is the database/sql driver name.
	DriverName() string

	// BackslashLiteral reports whether the backend treats a backslash in a
	// LIKE pattern as a literal character. When false and the escape
	// character is a backslash, bind values have their backslashes doubled.
	BackslashLiteral() bool

	// Placeholder returns the positional parameter marker for the n-th
	// (1-based) argument.
	Placeholder(n int) string

	// Paginate wraps query with vendor paging. orderBy is a complete
	// " ORDER BY ..." fragment or empty. A limit <= 0 means unlimited.
	Paginate(query, orderBy string, limit, offset int) string
}

// EscapeChar extracts the effective escape token from a provider.
func EscapeChar(p EscapeProvider) string {
	if p == nil {
		return `\`
	}
	s := p.EscapeCharacter()
	if s == "" {
		return `\`
	}
	r := []rune(s)
	return string(r[len(r)-1])
}

// Static is a fixed EscapeProvider, handy for tests and tools that render
// queries without a backend.
type Static string

func (s Static) EscapeCharacter() string { return string(s) }

// Names of the built-in dialects.
const (
	NameSQLite    = "sqlite"
	NamePostgres  = "postgres"
	NameH2        = "h2"
	NameMySQL     = "mysql"
	NameOracle    = "oracle"
	NameSQLServer = "sqlserver"
)

var builtins = map[string]Dialect{
	NameSQLite:    SQLite{},
	NamePostgres:  Postgres{},
	NameH2:        H2{},
	NameMySQL:     MySQL{},
	NameOracle:    Oracle{},
	NameSQLServer: SQLServer{},
}

// ByName looks up a built-in dialect. Matching is case-insensitive and
// accepts a few common aliases.
func ByName(name string) (Dialect, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "sqlite3":
		key = NameSQLite
	case "postgresql", "pgx":
		key = NamePostgres
	case "mssql":
		key = NameSQLServer
	}
	if d, ok := builtins[key]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}

// Names lists the built-in dialect names in a stable order.
func Names() []string {
	return []string{NameSQLite, NamePostgres, NameH2, NameMySQL, NameOracle, NameSQLServer}
}

func questionMark(int) string { return "?" }

// limitOffset appends ORDER BY then LIMIT/OFFSET.
func limitOffset(query, orderBy string, limit, offset int) string {
	if limit <= 0 {
		return query + orderBy
	}
	return fmt.Sprintf("%s%s LIMIT %d OFFSET %d", query, orderBy, limit, offset)
}
