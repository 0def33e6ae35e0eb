// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the postgres migrations.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory within FS where migrations live.
const Dir = "sql"
