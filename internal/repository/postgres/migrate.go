package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for vectors of the given dimension.
func Schema(dimension int) string {
	return strings.ReplaceAll(schemaSQL, "{{DIMENSION}}", strconv.Itoa(dimension))
}

// Migrate creates the extension, tables and indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	// no arguments: pgx sends the script over the simple protocol, which
	// allows several statements in one call
	if _, err := db.Pool.Exec(ctx, Schema(dimension)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
