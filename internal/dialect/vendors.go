package dialect

import "fmt"

// SQLite is the embedded default backend.
type SQLite struct{}

func (SQLite) Name() string             { return NameSQLite }
func (SQLite) DriverName() string       { return "sqlite3" }
func (SQLite) EscapeCharacter() string  { return `\` }
func (SQLite) BackslashLiteral() bool   { return false }
func (SQLite) Placeholder(n int) string { return questionMark(n) }

func (SQLite) Paginate(query, orderBy string, limit, offset int) string {
	return limitOffset(query, orderBy, limit, offset)
}

// Postgres uses numbered placeholders and LIMIT/OFFSET paging.
type Postgres struct{}

func (Postgres) Name() string       { return NamePostgres }
func (Postgres) DriverName() string { return "pgx" }

// EscapeCharacter returns the doubled form Postgres needs inside a string
// literal.
func (Postgres) EscapeCharacter() string  { return `\\` }
func (Postgres) BackslashLiteral() bool   { return false }
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) Paginate(query, orderBy string, limit, offset int) string {
	return limitOffset(query, orderBy, limit, offset)
}

// H2 pages like Postgres but binds with question marks. There is no Go
// driver for it; it exists for rendering only.
type H2 struct{}

func (H2) Name() string             { return NameH2 }
func (H2) DriverName() string       { return "" }
func (H2) EscapeCharacter() string  { return `\` }
func (H2) BackslashLiteral() bool   { return false }
func (H2) Placeholder(n int) string { return questionMark(n) }

func (H2) Paginate(query, orderBy string, limit, offset int) string {
	return limitOffset(query, orderBy, limit, offset)
}

// MySQL pages with "LIMIT offset, count".
type MySQL struct{}

func (MySQL) Name() string             { return NameMySQL }
func (MySQL) DriverName() string       { return "mysql" }
func (MySQL) EscapeCharacter() string  { return `\\` }
func (MySQL) BackslashLiteral() bool   { return false }
func (MySQL) Placeholder(n int) string { return questionMark(n) }

func (MySQL) Paginate(query, orderBy string, limit, offset int) string {
	if limit <= 0 {
		return query + orderBy
	}
	return fmt.Sprintf("%s%s LIMIT %d, %d", query, orderBy, offset, limit)
}

// Oracle pages with a ROWNUM double projection.
type Oracle struct{}

func (Oracle) Name() string             { return NameOracle }
func (Oracle) DriverName() string       { return "" }
func (Oracle) EscapeCharacter() string  { return "!" }
func (Oracle) BackslashLiteral() bool   { return true }
func (Oracle) Placeholder(n int) string { return fmt.Sprintf(":%d", n) }

// Paginate filters the high bound on the inner projection and the low bound
// on the outer one, since ROWNUM is assigned before the outer WHERE runs.
func (Oracle) Paginate(query, orderBy string, limit, offset int) string {
	if limit <= 0 {
		return query + orderBy
	}
	minRow := offset + 1
	maxRow := minRow + limit - 1
	return fmt.Sprintf(
		"SELECT outerResults.* FROM ( SELECT innerResults.*, ROWNUM rnum FROM ( %s%s ) innerResults WHERE ROWNUM <= %d ) outerResults WHERE rnum >= %d",
		query, orderBy, maxRow, minRow)
}

// SQLServer pages with ROW_NUMBER over the requested ordering.
type SQLServer struct{}

func (SQLServer) Name() string             { return NameSQLServer }
func (SQLServer) DriverName() string       { return "" }
func (SQLServer) EscapeCharacter() string  { return "!" }
func (SQLServer) BackslashLiteral() bool   { return true }
func (SQLServer) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// Paginate evaluates orderBy against innerResults, so it may only name
// columns present in the inner select list.
func (SQLServer) Paginate(query, orderBy string, limit, offset int) string {
	if limit <= 0 {
		return query + orderBy
	}
	over := orderBy
	if over == "" {
		over = " ORDER BY (SELECT 0)"
	}
	minRow := offset + 1
	maxRow := minRow + limit - 1
	return fmt.Sprintf(
		"SELECT outerResults.* FROM ( SELECT innerResults.*, ROW_NUMBER() OVER(%s ) AS rownum FROM ( %s ) AS innerResults ) AS outerResults WHERE rownum <= %d AND rownum >= %d",
		over, query, maxRow, minRow)
}
