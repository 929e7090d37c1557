// Package migrations embeds the SQL migrations bun's migrate.Migrator
// discovers at startup (internal/infrastructure/storage.NewMigrator).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
