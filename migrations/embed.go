// Package migrations embebe los archivos SQL de migración.
package migrations

import "embed"

// PostgresFS contiene el schema del directorio de principals.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// PostgresDir es el directorio dentro de PostgresFS.
const PostgresDir = "postgres"
