package postgresql

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the payroll tables if they do not exist yet.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply payroll schema: %w", err)
	}
	return nil
}
