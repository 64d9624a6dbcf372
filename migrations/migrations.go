// Package migrations embeds the SQL schema for the database docstore backends.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
