// Package postgres implements the storage interfaces of internal/store on
// PostgreSQL through database/sql and the pgx driver. It also embeds the
// goose schema migrations.
package postgres
