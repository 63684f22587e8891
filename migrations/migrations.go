// Package migrations embeds the SQL schema applied at startup. Files follow
// golang-migrate naming: <version>_<name>.up.sql and .down.sql.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
