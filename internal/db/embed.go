package db

import "embed"

// migrationFS holds the goose migrations compiled into the binary.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
