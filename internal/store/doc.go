// Package store runs generated criteria queries on a relational database
// through database/sql.
//
// A Store compiles query IR with querysql for its dialect and materializes
// rows as Entity values. It implements the runner backend:
//   - Select: one page of the data query, then one query per join-fetched
//     field for the whole page
//   - Count: the count query
//   - Initialize: one query loading a deferred association of a row
//
// # Drivers
//
// SQLite (mattn/go-sqlite3), PostgreSQL (jackc/pgx stdlib) and MySQL
// (go-sql-driver/mysql) are registered. Dialects without a Go driver can
// still generate and compile SQL but cannot be opened.
//
// # Database Configuration
//
// SQLite databases get the demo schema from schema.sql and:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The demo tables are described by DemoRegistry; Seed fills them.
package store
