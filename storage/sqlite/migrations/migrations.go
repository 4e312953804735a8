// Package migrations embeds the SQLite schema migrations.
package migrations

import "embed"

// Migrations holds the numbered up/down SQL files.
//
//go:embed *.sql
var Migrations embed.FS
