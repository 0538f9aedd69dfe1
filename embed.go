package coursehub

import "embed"

// EmailFS holds the html/plaintext template pairs used by the email service.
//
//go:embed templates/emails
var EmailFS embed.FS

// MigrationsFS holds the ordered SQL migrations applied by lmsctl migrate.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
