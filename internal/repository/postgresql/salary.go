package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	componentColumns  = `id, name, type, calculation_type, status, created_at, updated_at`
	assignmentColumns = `employee_id, payroll_component_id, amount, effective_from, status, created_at, updated_at`
)

type salaryRepository struct {
	db *database.DB
}

func NewSalaryRepository(db *database.DB) payroll.SalaryRepository {
	return &salaryRepository{db: db}
}

// ========== COMPONENTS ==========

func (r *salaryRepository) CreateComponent(ctx context.Context, component payroll.SalaryComponent) (payroll.SalaryComponent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_components (id, name, type, calculation_type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + componentColumns

	created, err := scanComponent(q.QueryRow(ctx, query,
		component.ID, component.Name, string(component.Type), string(component.CalculationType), string(component.Status),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uk_payroll_component_name" {
			return payroll.SalaryComponent{}, payroll.ErrPayrollComponentNameExists
		}
		return payroll.SalaryComponent{}, fmt.Errorf("failed to create payroll component: %w", err)
	}
	return created, nil
}

func (r *salaryRepository) GetComponentByID(ctx context.Context, id string) (payroll.SalaryComponent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payroll.SalaryComponent{}, payroll.ErrPayrollComponentNotFound
	}
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + componentColumns + ` FROM payroll_components WHERE id = $1`

	component, err := scanComponent(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.SalaryComponent{}, payroll.ErrPayrollComponentNotFound
		}
		return payroll.SalaryComponent{}, fmt.Errorf("failed to get payroll component: %w", err)
	}
	return component, nil
}

// GetComponentsByIDs returns the components that exist; missing ids are simply absent from the map.
func (r *salaryRepository) GetComponentsByIDs(ctx context.Context, ids []string) (map[string]payroll.SalaryComponent, error) {
	result := make(map[string]payroll.SalaryComponent, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + componentColumns + ` FROM payroll_components WHERE id::text = ANY($1)`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get payroll components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll component: %w", err)
		}
		result[component.ID] = component
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get payroll components: %w", err)
	}

	return result, nil
}

func (r *salaryRepository) ListComponents(ctx context.Context, activeOnly bool) ([]payroll.SalaryComponent, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + componentColumns + ` FROM payroll_components`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY type, name`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll components: %w", err)
	}
	defer rows.Close()

	components := []payroll.SalaryComponent{}
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll component: %w", err)
		}
		components = append(components, component)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll components: %w", err)
	}

	return components, nil
}

// ========== ASSIGNMENTS ==========

// UpsertAssignment holds a share lock on the component while writing so the
// component cannot be removed mid-assignment.
func (r *salaryRepository) UpsertAssignment(ctx context.Context, assignment payroll.ComponentAssignment) (payroll.ComponentAssignment, error) {
	if _, err := uuid.Parse(assignment.ComponentID); err != nil {
		return payroll.ComponentAssignment{}, payroll.ErrPayrollComponentNotFound
	}
	if _, err := uuid.Parse(assignment.EmployeeID); err != nil {
		return payroll.ComponentAssignment{}, payroll.ErrEmployeeNotFound
	}

	var saved payroll.ComponentAssignment
	err := WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)

		var componentID string
		err := q.QueryRow(txCtx, `SELECT id FROM payroll_components WHERE id = $1 FOR SHARE`, assignment.ComponentID).Scan(&componentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return payroll.ErrPayrollComponentNotFound
			}
			return fmt.Errorf("failed to lock payroll component: %w", err)
		}

		query := `
			INSERT INTO employee_payroll_components (employee_id, payroll_component_id, amount, effective_from, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (employee_id, payroll_component_id, effective_from)
			DO UPDATE SET amount = EXCLUDED.amount, status = EXCLUDED.status, updated_at = NOW()
			RETURNING ` + assignmentColumns

		saved, err = scanAssignment(q.QueryRow(txCtx, query,
			assignment.EmployeeID, assignment.ComponentID, assignment.Amount,
			assignment.EffectiveFrom, string(assignment.Status),
		))
		if err != nil {
			return fmt.Errorf("failed to save component assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return payroll.ComponentAssignment{}, err
	}

	return saved, nil
}

func (r *salaryRepository) ListAssignments(ctx context.Context, employeeID string) ([]payroll.ComponentAssignment, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return []payroll.ComponentAssignment{}, nil
	}
	query := `
		SELECT ` + assignmentColumns + `
		FROM employee_payroll_components
		WHERE employee_id = $1
		ORDER BY payroll_component_id, effective_from DESC`

	return r.queryAssignments(ctx, query, employeeID)
}

func (r *salaryRepository) ListApplicableAssignments(ctx context.Context, employeeID string, asOf time.Time) ([]payroll.ComponentAssignment, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return []payroll.ComponentAssignment{}, nil
	}
	query := `
		SELECT ` + assignmentColumns + `
		FROM employee_payroll_components
		WHERE employee_id = $1 AND effective_from <= $2
		ORDER BY payroll_component_id, effective_from DESC`

	return r.queryAssignments(ctx, query, employeeID, asOf)
}

func (r *salaryRepository) queryAssignments(ctx context.Context, query string, args ...interface{}) ([]payroll.ComponentAssignment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list component assignments: %w", err)
	}
	defer rows.Close()

	assignments := []payroll.ComponentAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list component assignments: %w", err)
	}

	return assignments, nil
}

func scanComponent(row pgx.Row) (payroll.SalaryComponent, error) {
	var c payroll.SalaryComponent
	var componentType, calculationType, status string
	if err := row.Scan(&c.ID, &c.Name, &componentType, &calculationType, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return payroll.SalaryComponent{}, err
	}
	c.Type = payroll.ComponentType(componentType)
	c.CalculationType = payroll.CalculationType(calculationType)
	c.Status = payroll.RecordStatus(status)
	return c, nil
}

func scanAssignment(row pgx.Row) (payroll.ComponentAssignment, error) {
	var a payroll.ComponentAssignment
	var status string
	if err := row.Scan(&a.EmployeeID, &a.ComponentID, &a.Amount, &a.EffectiveFrom, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return payroll.ComponentAssignment{}, err
	}
	a.Status = payroll.RecordStatus(status)
	return a, nil
}
