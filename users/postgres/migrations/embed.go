// Package migrations contains embedded SQL migrations for the Postgres user store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
