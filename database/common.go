package database

import "database/sql"

// Querier is the query surface shared by *sql.DB and *sql.Tx. Handler methods
// with a Tx variant run against it so that the persistence gateway can execute
// them inside a single transaction.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// rowScanner abstracts over *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
