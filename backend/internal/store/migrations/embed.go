// Package migrations embeds the SQL migration source so the binary ships
// with its own schema and never depends on a migrations/ directory existing
// next to the executable.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
