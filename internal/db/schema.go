package db

import (
	"context"
	_ "embed"

	"habitpulse/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates any missing tables and indexes. Every statement is
// IF NOT EXISTS, so it is safe on every local boot.
func ApplySchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}
