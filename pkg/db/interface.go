package db

import "database/sql"

// DBProvider is implemented by the SQL clients the catalog mirror can write to.
// Both PostgresClient and SupabaseClient satisfy it.
type DBProvider interface {
	DB() *sql.DB
}
