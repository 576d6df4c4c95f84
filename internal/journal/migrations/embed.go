package migrations

import "embed"

// FS contains the embedded SQLite schema for the reconciliation journal.
//
//go:embed *.sql
var FS embed.FS
