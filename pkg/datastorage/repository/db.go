package repository

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Open connects to PostgreSQL via the pgx stdlib driver, wrapped in sqlx
// for struct-tag row scanning. dsn follows the standard libpq
// connection-string format.
func Open(dsn string) (*sqlx.DB, error) {
	return sqlx.Connect("pgx", dsn)
}
