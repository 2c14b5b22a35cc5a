package auditlog

import "embed"

// migrationsFS embeds the audit log's migration files into the binary.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
