// Package migrations embebe las migraciones SQL de Postgres.
package migrations

import "embed"

// FS contiene las migraciones {version}_{name}.sql.
//
//go:embed *.sql
var FS embed.FS
