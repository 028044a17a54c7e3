package connectors

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the connector schema for postgres, with the sqlite
// rendition under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
