// Package migrations embeds the schema for every supported store.
package migrations

import "embed"

// FS holds one sub-directory per dialect, each with NNN_name.sql files.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
