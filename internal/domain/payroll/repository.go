package payroll

import (
	"context"
	"time"
)

// PayrollRepository defines data access methods for payroll records.
type PayrollRepository interface {
	// CreateRecordIfAbsent inserts record unless one already exists for its
	// (employee, period). created is false when the existing record won.
	CreateRecordIfAbsent(ctx context.Context, record PayrollRecord) (stored PayrollRecord, created bool, err error)
	GetRecordByID(ctx context.Context, id string) (PayrollRecord, error)
	GetRecordByEmployeePeriod(ctx context.Context, employeeID string, period Period) (PayrollRecord, error)
	ExistsForEmployeePeriod(ctx context.Context, employeeID string, period Period) (bool, error)
	ListRecords(ctx context.Context, query RecordQuery) ([]PayrollRecord, error)

	// MarkRecordPaid moves a processed record to paid in a single compare-and-set.
	// It returns ErrPayrollRecordNotFound or ErrPayrollRecordAlreadyPaid when the
	// record is missing or no longer processed.
	MarkRecordPaid(ctx context.Context, id string, info PaymentInfo, paidAt time.Time) (PayrollRecord, error)

	GetPeriodSummary(ctx context.Context, period Period) (PeriodSummary, error)
}

// SalaryRepository defines data access methods for salary components and
// their assignments to employees.
type SalaryRepository interface {
	CreateComponent(ctx context.Context, component SalaryComponent) (SalaryComponent, error)
	GetComponentByID(ctx context.Context, id string) (SalaryComponent, error)
	GetComponentsByIDs(ctx context.Context, ids []string) (map[string]SalaryComponent, error)
	ListComponents(ctx context.Context, activeOnly bool) ([]SalaryComponent, error)

	// UpsertAssignment keys assignments by (employee, component, effective from).
	UpsertAssignment(ctx context.Context, assignment ComponentAssignment) (ComponentAssignment, error)
	ListAssignments(ctx context.Context, employeeID string) ([]ComponentAssignment, error)
	// ListApplicableAssignments returns assignments of any status effective on
	// or before asOf. A newer inactive row ends an older active one.
	ListApplicableAssignments(ctx context.Context, employeeID string, asOf time.Time) ([]ComponentAssignment, error)
}
