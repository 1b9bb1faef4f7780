// Package migrations holds the SQL for the optional transition journal.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
