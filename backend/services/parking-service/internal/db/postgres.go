package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	libdb "parkingops/backend/libs/db"
)

//go:embed schema.sql
var schema string

// NewPostgres opens the service database.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, dsn)
}

// ApplySchema creates the service's tables and indexes when they are missing.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the DDL applied by ApplySchema.
func Schema() string {
	return schema
}
