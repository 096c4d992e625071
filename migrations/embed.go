// Package migrations embeds the PostgreSQL schema applied by platform/db.Migrate.
package migrations

import "embed"

// FS holds the ordered up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
