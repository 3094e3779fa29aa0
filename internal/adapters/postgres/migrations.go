package postgres

import "embed"

// Migrations holds the goose SQL migrations of the purchase schema
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations the files live in
const MigrationsDir = "migrations"
