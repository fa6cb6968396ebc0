// Package migrations embeds the SQLite schema migrations.
package migrations

import "embed"

// FS holds the *.sql migration files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
