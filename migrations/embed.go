// Package migrations embeds the entity manager's SQL migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/entity-manager/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
