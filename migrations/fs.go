// Package migrations embeds the SQL schema migrations so the migrate tool
// and tests can run them without a checkout of this directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
