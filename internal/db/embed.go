package db

import "embed"

// EmbedMigrations holds the metastore schema: realm definitions and role
// restrictions.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
