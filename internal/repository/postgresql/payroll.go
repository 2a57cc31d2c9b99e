package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const recordColumns = `
	id, employee_id, period, basic_salary_snapshot, earnings_lines, deduction_lines,
	statutory_deductions, gross_pay, net_pay, status, payment_date, payment_method,
	payment_reference, paid_at, created_at, updated_at`

type payrollRepository struct {
	db *database.DB
}

func NewPayrollRepository(db *database.DB) payroll.PayrollRepository {
	return &payrollRepository{db: db}
}

// ========== PAYROLL RECORDS ==========

func (r *payrollRepository) CreateRecordIfAbsent(ctx context.Context, record payroll.PayrollRecord) (payroll.PayrollRecord, bool, error) {
	q := GetQuerier(ctx, r.db)

	earningsJSON, err := json.Marshal(nonNilLines(record.EarningsLines))
	if err != nil {
		return payroll.PayrollRecord{}, false, fmt.Errorf("failed to encode earnings lines: %w", err)
	}
	deductionsJSON, err := json.Marshal(nonNilLines(record.DeductionLines))
	if err != nil {
		return payroll.PayrollRecord{}, false, fmt.Errorf("failed to encode deduction lines: %w", err)
	}
	statutoryJSON, err := json.Marshal(record.Statutory)
	if err != nil {
		return payroll.PayrollRecord{}, false, fmt.Errorf("failed to encode statutory deductions: %w", err)
	}

	// uk_employee_period decides concurrent runs: the loser inserts nothing.
	query := `
		INSERT INTO payroll_records (
			id, employee_id, period, basic_salary_snapshot, earnings_lines, deduction_lines,
			statutory_deductions, gross_pay, net_pay, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT uk_employee_period DO NOTHING
		RETURNING` + recordColumns

	created, err := scanRecord(q.QueryRow(ctx, query,
		record.ID, record.EmployeeID, record.Period.String(), record.BasicSalarySnapshot,
		earningsJSON, deductionsJSON, statutoryJSON, record.GrossPay, record.NetPay, string(record.Status),
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return payroll.PayrollRecord{}, false, fmt.Errorf("failed to create payroll record: %w", err)
	}

	existing, err := r.GetRecordByEmployeePeriod(ctx, record.EmployeeID, record.Period)
	if err != nil {
		return payroll.PayrollRecord{}, false, err
	}
	return existing, false, nil
}

func (r *payrollRepository) GetRecordByID(ctx context.Context, id string) (payroll.PayrollRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + recordColumns + ` FROM payroll_records WHERE id = $1`

	rec, err := scanRecord(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
		}
		return payroll.PayrollRecord{}, fmt.Errorf("failed to get payroll record: %w", err)
	}
	return rec, nil
}

func (r *payrollRepository) GetRecordByEmployeePeriod(ctx context.Context, employeeID string, period payroll.Period) (payroll.PayrollRecord, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	q := GetQuerier(ctx, r.db)

	query := `SELECT` + recordColumns + ` FROM payroll_records WHERE employee_id = $1 AND period = $2`

	rec, err := scanRecord(q.QueryRow(ctx, query, employeeID, period.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
		}
		return payroll.PayrollRecord{}, fmt.Errorf("failed to get payroll record: %w", err)
	}
	return rec, nil
}

func (r *payrollRepository) ExistsForEmployeePeriod(ctx context.Context, employeeID string, period payroll.Period) (bool, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return false, nil
	}
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payroll_records WHERE employee_id = $1 AND period = $2)`,
		employeeID, period.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payroll record: %w", err)
	}
	return exists, nil
}

func (r *payrollRepository) ListRecords(ctx context.Context, query payroll.RecordQuery) ([]payroll.PayrollRecord, error) {
	if query.EmployeeID != nil {
		if _, err := uuid.Parse(*query.EmployeeID); err != nil {
			return []payroll.PayrollRecord{}, nil
		}
	}
	q := GetQuerier(ctx, r.db)

	sql := `SELECT` + recordColumns + ` FROM payroll_records WHERE 1 = 1`
	args := []interface{}{}
	argIdx := 1

	if query.Period != nil {
		sql += fmt.Sprintf(" AND period = $%d", argIdx)
		args = append(args, query.Period.String())
		argIdx++
	}
	if query.Status != nil {
		sql += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*query.Status))
		argIdx++
	}
	if query.EmployeeID != nil {
		sql += fmt.Sprintf(" AND employee_id = $%d", argIdx)
		args = append(args, *query.EmployeeID)
		argIdx++
	}
	if len(query.RecordIDs) > 0 {
		sql += fmt.Sprintf(" AND id::text = ANY($%d)", argIdx)
		args = append(args, query.RecordIDs)
		argIdx++
	}
	if len(query.EmployeeIDs) > 0 {
		sql += fmt.Sprintf(" AND employee_id::text = ANY($%d)", argIdx)
		args = append(args, query.EmployeeIDs)
	}
	sql += " ORDER BY period DESC, created_at ASC, id ASC"

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll records: %w", err)
	}
	defer rows.Close()

	records := []payroll.PayrollRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll records: %w", err)
	}

	return records, nil
}

func (r *payrollRepository) MarkRecordPaid(ctx context.Context, id string, info payroll.PaymentInfo, paidAt time.Time) (payroll.PayrollRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	q := GetQuerier(ctx, r.db)

	// Compare-and-set on status: of two concurrent payers only one matches the row.
	query := `
		UPDATE payroll_records
		SET status = 'paid', payment_date = $2, payment_method = $3, payment_reference = $4,
			paid_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'processed'
		RETURNING` + recordColumns

	rec, err := scanRecord(q.QueryRow(ctx, query,
		id, info.PaymentDate, string(info.PaymentMethod), nullIfEmpty(info.PaymentReference), paidAt,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return payroll.PayrollRecord{}, fmt.Errorf("failed to mark payroll record paid: %w", err)
	}

	var status string
	err = q.QueryRow(ctx, `SELECT status FROM payroll_records WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
		}
		return payroll.PayrollRecord{}, fmt.Errorf("failed to check payroll record status: %w", err)
	}
	return payroll.PayrollRecord{}, payroll.ErrPayrollRecordAlreadyPaid
}

func (r *payrollRepository) GetPeriodSummary(ctx context.Context, period payroll.Period) (payroll.PeriodSummary, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT
			COUNT(*) AS total_employees,
			COUNT(*) FILTER (WHERE status = 'processed') AS processed_count,
			COUNT(*) FILTER (WHERE status = 'paid') AS paid_count,
			COALESCE(SUM(gross_pay), 0) AS total_gross_pay,
			COALESCE(SUM(net_pay), 0) AS total_net_pay
		FROM payroll_records
		WHERE period = $1
	`

	summary := payroll.PeriodSummary{Period: period}
	err := q.QueryRow(ctx, query, period.String()).Scan(
		&summary.TotalEmployees, &summary.ProcessedCount, &summary.PaidCount,
		&summary.TotalGrossPay, &summary.TotalNetPay,
	)
	if err != nil {
		return payroll.PeriodSummary{}, fmt.Errorf("failed to get payroll summary: %w", err)
	}

	return summary, nil
}

func scanRecord(row pgx.Row) (payroll.PayrollRecord, error) {
	var rec payroll.PayrollRecord
	var period, status string
	var method *string
	var earningsBytes, deductionsBytes, statutoryBytes []byte

	err := row.Scan(
		&rec.ID, &rec.EmployeeID, &period, &rec.BasicSalarySnapshot, &earningsBytes, &deductionsBytes,
		&statutoryBytes, &rec.GrossPay, &rec.NetPay, &status, &rec.PaymentDate, &method,
		&rec.PaymentReference, &rec.PaidAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return payroll.PayrollRecord{}, err
	}

	if rec.Period, err = payroll.ParsePeriod(period); err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("stored period %q: %w", period, err)
	}
	if rec.Status, err = payroll.ParsePayrollStatus(status); err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("stored status %q: %w", status, err)
	}
	if method != nil {
		m := payroll.PaymentMethod(*method)
		rec.PaymentMethod = &m
	}
	if err := json.Unmarshal(earningsBytes, &rec.EarningsLines); err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("decode earnings lines: %w", err)
	}
	if err := json.Unmarshal(deductionsBytes, &rec.DeductionLines); err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("decode deduction lines: %w", err)
	}
	if err := json.Unmarshal(statutoryBytes, &rec.Statutory); err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("decode statutory deductions: %w", err)
	}

	return rec, nil
}

func nonNilLines(lines []payroll.LineItem) []payroll.LineItem {
	if lines == nil {
		return []payroll.LineItem{}
	}
	return lines
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
