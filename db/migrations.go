// Package db ships the SQL migrations with the binary.
package db

import "embed"

// Migrations holds migrations/{dialect}/*.sql.
//
//go:embed migrations/*/*.sql
var Migrations embed.FS
