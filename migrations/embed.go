// Package migrations embeds the SQL schema applied by pkg/migrations.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
