package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComponentType enum
type ComponentType string

const (
	ComponentTypeEarning   ComponentType = "earning"
	ComponentTypeDeduction ComponentType = "deduction"
)

func (t ComponentType) Valid() bool {
	return t == ComponentTypeEarning || t == ComponentTypeDeduction
}

// CalculationType enum
type CalculationType string

const (
	CalculationFixed      CalculationType = "fixed"
	CalculationPercentage CalculationType = "percentage"
)

func (t CalculationType) Valid() bool {
	return t == CalculationFixed || t == CalculationPercentage
}

// Bind turns an assignment amount into the calculation it stands for.
func (t CalculationType) Bind(amount decimal.Decimal) (Calculation, error) {
	switch t {
	case CalculationFixed:
		return Fixed{Amount: amount}, nil
	case CalculationPercentage:
		return Percentage{Rate: amount}, nil
	default:
		return nil, ErrInvalidCalculationType
	}
}

// Calculation is either Fixed or Percentage.
type Calculation interface {
	isCalculation()
}

// Fixed is a flat currency amount.
type Fixed struct {
	Amount decimal.Decimal
}

// Percentage is a rate in percentage points of the basic salary.
type Percentage struct {
	Rate decimal.Decimal
}

func (Fixed) isCalculation()      {}
func (Percentage) isCalculation() {}

// RecordStatus enum
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusInactive RecordStatus = "inactive"
)

// SalaryComponent - Master earning or deduction rule
type SalaryComponent struct {
	ID              string
	Name            string
	Type            ComponentType
	CalculationType CalculationType
	Status          RecordStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ComponentAssignment - Component assigned to an employee from EffectiveFrom onwards
type ComponentAssignment struct {
	EmployeeID    string
	ComponentID   string
	Amount        decimal.Decimal
	EffectiveFrom time.Time
	Status        RecordStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppliesTo reports whether the assignment is in force for period.
func (a ComponentAssignment) AppliesTo(period Period) bool {
	return a.Status == StatusActive && !a.EffectiveFrom.After(period.End())
}

// LineItem - One resolved earning or deduction
type LineItem struct {
	ComponentID string          `json:"component_id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
}

// SumLines adds line amounts without rounding.
func SumLines(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// PayrollStatus enum
type PayrollStatus string

const (
	PayrollStatusProcessed PayrollStatus = "processed"
	PayrollStatusPaid      PayrollStatus = "paid"
)

func ParsePayrollStatus(s string) (PayrollStatus, error) {
	switch PayrollStatus(s) {
	case PayrollStatusProcessed, PayrollStatusPaid:
		return PayrollStatus(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// The only legal transition is processed -> paid.
func (s PayrollStatus) CanTransitionTo(next PayrollStatus) bool {
	return s == PayrollStatusProcessed && next == PayrollStatusPaid
}

// PaymentMethod enum
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheque       PaymentMethod = "cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheque:
		return true
	}
	return false
}

// PaymentInfo - Settlement details recorded when a record is paid
type PaymentInfo struct {
	PaymentDate      time.Time
	PaymentMethod    PaymentMethod
	PaymentReference string
}

// PayrollRecord - Generated payroll result for one employee and period
type PayrollRecord struct {
	ID                  string
	EmployeeID          string
	Period              Period
	BasicSalarySnapshot decimal.Decimal
	EarningsLines       []LineItem
	DeductionLines      []LineItem
	Statutory           StatutoryDeductions
	GrossPay            decimal.Decimal
	NetPay              decimal.Decimal
	Status              PayrollStatus
	PaymentDate         *time.Time
	PaymentMethod       *PaymentMethod
	PaymentReference    *string
	PaidAt              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RunSummary - Outcome of a payroll run
type RunSummary struct {
	Period    Period       `json:"period"`
	Generated []string     `json:"generated"`
	Skipped   []string     `json:"skipped"`
	Failed    []RunFailure `json:"failed"`
}

type RunFailure struct {
	EmployeeID string    `json:"employee_id"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
}

// BulkResult - Outcome of a bulk settlement
type BulkResult struct {
	SuccessCount int           `json:"success_count"`
	Failures     []BulkFailure `json:"failures"`
}

type BulkFailure struct {
	RecordID string    `json:"record_id"`
	Kind     ErrorKind `json:"kind"`
	Reason   string    `json:"reason"`
}

// PeriodSummary - Aggregate figures of one period
type PeriodSummary struct {
	Period         Period          `json:"period"`
	TotalEmployees int             `json:"total_employees"`
	ProcessedCount int             `json:"processed_count"`
	PaidCount      int             `json:"paid_count"`
	TotalGrossPay  decimal.Decimal `json:"total_gross_pay"`
	TotalNetPay    decimal.Decimal `json:"total_net_pay"`
}
