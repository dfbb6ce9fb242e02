// Package migrations embeds SQL migration files into the binary, so
// deployments never need the schema files present on disk.
package migrations

import (
	"embed"

	"github.com/autoglm/autoglm-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
