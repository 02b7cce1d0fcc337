package repo

import _ "embed"

//go:embed schema.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string
