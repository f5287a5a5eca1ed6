package db

import "embed"

// EmbedMigrations contains the embedded SQL migration files for the demo schema.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
