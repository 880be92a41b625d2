// Package migrations embeds the SQL schema migrations for the orchestrator
// database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
