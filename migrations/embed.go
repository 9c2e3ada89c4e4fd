// Package migrations embeds the TypePilot SQL schema into the binary.
package migrations

import "embed"

// FS holds every migration file at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
