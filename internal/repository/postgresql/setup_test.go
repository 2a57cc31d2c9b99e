package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/payroll-engine/internal/repository/postgresql"
	"github.com/stretchr/testify/require"
)

var (
	testDBOnce sync.Once
	testDB     *database.DB
	testDBErr  error
)

// openTestDB connects to TEST_DATABASE_URL and applies the schema once per
// package run. Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	testDBOnce.Do(func() {
		ctx := context.Background()
		testDB, testDBErr = database.NewPostgreSQLDB(ctx, dsn)
		if testDBErr != nil {
			return
		}
		testDBErr = postgresql.Migrate(ctx, testDB)
	})
	require.NoError(t, testDBErr)

	truncateTables(t, testDB)
	return testDB
}

func truncateTables(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	tables := []string{
		"payroll_records",
		"employee_payroll_components",
		"payroll_components",
		"employees",
	}
	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "truncate %s", table)
	}

	require.NoError(t, tx.Commit(ctx))
}

// createTestEmployee inserts an active employee and returns its id.
func createTestEmployee(t *testing.T, db *database.DB, code string, baseSalary string) string {
	t.Helper()

	var id string
	err := db.QueryRow(context.Background(), `
		INSERT INTO employees (employee_code, full_name, email, employment_status, base_salary)
		VALUES ($1, $2, $3, 'active', $4::numeric)
		RETURNING id
	`, code, "Employee "+code, code+"@example.com", baseSalary).Scan(&id)
	require.NoError(t, err)
	return id
}
