// Package migrations embeds the Postgres schema in golang-migrate layout.
package migrations

import "embed"

// FS holds the versioned up and down migrations.
//
//go:embed *.sql
var FS embed.FS
