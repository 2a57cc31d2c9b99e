package payroll

import "context"

// PayrollService defines business logic for payroll generation and settlement
type PayrollService interface {
	// GenerateRun computes and stores records for a period; one employee's failure never aborts the run
	GenerateRun(ctx context.Context, req GenerateRunRequest) (RunSummary, error)

	// MarkPaid settles a single processed record
	MarkPaid(ctx context.Context, recordID string, info PaymentInfo) (PayrollRecord, error)

	// BulkMarkPaid settles every matching processed record of a period independently
	BulkMarkPaid(ctx context.Context, req BulkMarkPaidRequest) (BulkResult, error)

	GetPaySlip(ctx context.Context, employeeID string, period Period) (PaySlip, error)
	GetRecord(ctx context.Context, id string) (PayrollRecord, error)
	ListRecords(ctx context.Context, filter PayrollFilter) ([]PayrollRecord, error)
	GetRunSummary(ctx context.Context, period Period) (PeriodSummary, error)

	// Salary configuration
	CreateComponent(ctx context.Context, req CreateComponentRequest) (SalaryComponent, error)
	ListComponents(ctx context.Context, activeOnly bool) ([]SalaryComponent, error)
	AssignComponent(ctx context.Context, req AssignComponentRequest) (ComponentAssignment, error)
	ListAssignments(ctx context.Context, employeeID string) ([]ComponentAssignment, error)
}

// Notifier is told about settled records. Delivery is best effort.
type Notifier interface {
	PayrollPaid(ctx context.Context, to string, slip PaySlip) error
}
