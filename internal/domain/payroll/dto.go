package payroll

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

const maxPaymentReferenceLength = 100

// ========== RUN DTOs ==========

type GenerateRunRequest struct {
	Period      string   `json:"period"`
	EmployeeIDs []string `json:"employee_ids,omitempty"` // Empty = all active employees
}

func (r *GenerateRunRequest) Validate() error {
	var errs validator.ValidationErrors

	if _, err := ParsePeriod(r.Period); err != nil {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "must be in YYYY-MM format"})
	}
	if validator.HasEmpty(r.EmployeeIDs) {
		errs = append(errs, validator.ValidationError{Field: "employee_ids", Message: "must not contain empty ids"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ========== SETTLEMENT DTOs ==========

type PaymentRequest struct {
	PaymentDate      string `json:"payment_date"` // YYYY-MM-DD
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

func (r *PaymentRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.PaymentDate) {
		errs = append(errs, validator.ValidationError{Field: "payment_date", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.PaymentDate); !ok {
		errs = append(errs, validator.ValidationError{Field: "payment_date", Message: "must be in YYYY-MM-DD format"})
	}
	if !PaymentMethod(r.PaymentMethod).Valid() {
		errs = append(errs, validator.ValidationError{Field: "payment_method", Message: "must be 'bank_transfer', 'cash' or 'cheque'"})
	}
	if !validator.MaxLength(r.PaymentReference, maxPaymentReferenceLength) {
		errs = append(errs, validator.ValidationError{Field: "payment_reference", Message: "must be at most 100 characters"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ToPaymentInfo validates the request and converts it.
func (r *PaymentRequest) ToPaymentInfo() (PaymentInfo, error) {
	if err := r.Validate(); err != nil {
		return PaymentInfo{}, Wrap(KindValidation, "invalid payment details", err)
	}
	date, _ := validator.IsValidDate(r.PaymentDate)
	return PaymentInfo{
		PaymentDate:      date,
		PaymentMethod:    PaymentMethod(r.PaymentMethod),
		PaymentReference: strings.TrimSpace(r.PaymentReference),
	}, nil
}

// Validate checks the payment details of a settlement.
func (p PaymentInfo) Validate() error {
	if p.PaymentDate.IsZero() {
		return ErrPaymentDateRequired
	}
	if !p.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if !validator.MaxLength(p.PaymentReference, maxPaymentReferenceLength) {
		return Wrap(KindValidation, "payment reference must be at most 100 characters", nil)
	}
	return nil
}

type BulkMarkPaidRequest struct {
	Period      string         `json:"period"`
	EmployeeIDs []string       `json:"employee_ids,omitempty"`
	RecordIDs   []string       `json:"record_ids,omitempty"`
	Payment     PaymentRequest `json:"payment"`
}

func (r *BulkMarkPaidRequest) Validate() error {
	var errs validator.ValidationErrors

	if _, err := ParsePeriod(r.Period); err != nil {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "must be in YYYY-MM format"})
	}
	if err := r.Payment.Validate(); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			errs = append(errs, ve.Prefixed("payment")...)
		}
	}
	if validator.HasEmpty(r.EmployeeIDs) {
		errs = append(errs, validator.ValidationError{Field: "employee_ids", Message: "must not contain empty ids"})
	}
	if validator.HasEmpty(r.RecordIDs) {
		errs = append(errs, validator.ValidationError{Field: "record_ids", Message: "must not contain empty ids"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ========== RECORD DTOs ==========

type PayrollFilter struct {
	Period     string `json:"period,omitempty"`
	Status     string `json:"status,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// RecordQuery is a parsed PayrollFilter. Nil fields match everything.
type RecordQuery struct {
	Period     *Period
	Status     *PayrollStatus
	EmployeeID *string

	// Restrict to these ids when non-empty.
	EmployeeIDs []string
	RecordIDs   []string
}

// ToQuery validates the filter and converts it.
func (f PayrollFilter) ToQuery() (RecordQuery, error) {
	var q RecordQuery
	var errs validator.ValidationErrors

	if f.Period != "" {
		p, err := ParsePeriod(f.Period)
		if err != nil {
			errs = append(errs, validator.ValidationError{Field: "period", Message: "must be in YYYY-MM format"})
		} else {
			q.Period = &p
		}
	}
	if f.Status != "" {
		s, err := ParsePayrollStatus(f.Status)
		if err != nil {
			errs = append(errs, validator.ValidationError{Field: "status", Message: "must be 'processed' or 'paid'"})
		} else {
			q.Status = &s
		}
	}
	if f.EmployeeID != "" {
		id := f.EmployeeID
		q.EmployeeID = &id
	}

	if len(errs) > 0 {
		return RecordQuery{}, Wrap(KindValidation, "invalid payroll filter", errs)
	}
	return q, nil
}

type PayrollRecordResponse struct {
	ID                  string              `json:"id"`
	EmployeeID          string              `json:"employee_id"`
	Period              string              `json:"period"`
	BasicSalarySnapshot decimal.Decimal     `json:"basic_salary_snapshot"`
	EarningsLines       []LineItem          `json:"earnings_lines"`
	DeductionLines      []LineItem          `json:"deduction_lines"`
	Statutory           StatutoryDeductions `json:"statutory_deductions"`
	GrossPay            decimal.Decimal     `json:"gross_pay"`
	NetPay              decimal.Decimal     `json:"net_pay"`
	Status              string              `json:"status"`
	PaymentDate         *string             `json:"payment_date,omitempty"`
	PaymentMethod       *string             `json:"payment_method,omitempty"`
	PaymentReference    *string             `json:"payment_reference,omitempty"`
	PaidAt              *string             `json:"paid_at,omitempty"`
	CreatedAt           string              `json:"created_at"`
}

func NewRecordResponse(r PayrollRecord) PayrollRecordResponse {
	resp := PayrollRecordResponse{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		Period:              r.Period.String(),
		BasicSalarySnapshot: r.BasicSalarySnapshot,
		EarningsLines:       nonNilLines(r.EarningsLines),
		DeductionLines:      nonNilLines(r.DeductionLines),
		Statutory:           r.Statutory,
		GrossPay:            r.GrossPay,
		NetPay:              r.NetPay,
		Status:              string(r.Status),
		PaymentReference:    r.PaymentReference,
		CreatedAt:           r.CreatedAt.Format(time.RFC3339),
	}
	if r.PaymentDate != nil {
		d := r.PaymentDate.Format("2006-01-02")
		resp.PaymentDate = &d
	}
	if r.PaymentMethod != nil {
		m := string(*r.PaymentMethod)
		resp.PaymentMethod = &m
	}
	if r.PaidAt != nil {
		p := r.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &p
	}
	return resp
}

func NewRecordResponses(records []PayrollRecord) []PayrollRecordResponse {
	result := make([]PayrollRecordResponse, 0, len(records))
	for _, r := range records {
		result = append(result, NewRecordResponse(r))
	}
	return result
}

func nonNilLines(lines []LineItem) []LineItem {
	if lines == nil {
		return []LineItem{}
	}
	return lines
}

// ========== PAY SLIP ==========

// EmployeeMetadata identifies the employee on a pay slip.
type EmployeeMetadata struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Email       string  `json:"email,omitempty"`
	Department  *string `json:"department,omitempty"`
	Designation *string `json:"designation,omitempty"`
}

type PaySlip struct {
	Employee         EmployeeMetadata `json:"employee"`
	Period           string           `json:"period"`
	BasicSalary      decimal.Decimal  `json:"basic_salary"`
	EarningsLines    []LineItem       `json:"earnings_lines"`
	DeductionsLines  []LineItem       `json:"deductions_lines"`
	TotalEarnings    decimal.Decimal  `json:"total_earnings"`
	TotalDeductions  decimal.Decimal  `json:"total_deductions"`
	NetPay           decimal.Decimal  `json:"net_pay"`
	Status           string           `json:"status"`
	PaymentDate      *string          `json:"payment_date,omitempty"`
	PaymentMethod    *string          `json:"payment_method,omitempty"`
	PaymentReference *string          `json:"payment_reference,omitempty"`
}

// ========== COMPONENT DTOs ==========

type CreateComponentRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`             // "earning" or "deduction"
	CalculationType string `json:"calculation_type"` // "fixed" or "percentage"
}

func (r *CreateComponentRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Name) {
		errs = append(errs, validator.ValidationError{Field: "name", Message: "is required"})
	} else if !validator.MaxLength(r.Name, 100) {
		errs = append(errs, validator.ValidationError{Field: "name", Message: "must be at most 100 characters"})
	}
	if !ComponentType(r.Type).Valid() {
		errs = append(errs, validator.ValidationError{Field: "type", Message: "must be 'earning' or 'deduction'"})
	}
	if !CalculationType(r.CalculationType).Valid() {
		errs = append(errs, validator.ValidationError{Field: "calculation_type", Message: "must be 'fixed' or 'percentage'"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type ComponentResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	CalculationType string `json:"calculation_type"`
	Status          string `json:"status"`
}

func NewComponentResponse(c SalaryComponent) ComponentResponse {
	return ComponentResponse{
		ID:              c.ID,
		Name:            c.Name,
		Type:            string(c.Type),
		CalculationType: string(c.CalculationType),
		Status:          string(c.Status),
	}
}

type AssignComponentRequest struct {
	EmployeeID    string          `json:"-"`
	ComponentID   string          `json:"payroll_component_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveFrom string          `json:"effective_from"` // YYYY-MM-DD
	Status        string          `json:"status,omitempty"`
}

func (r *AssignComponentRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "is required"})
	}
	if validator.IsEmpty(r.ComponentID) {
		errs = append(errs, validator.ValidationError{Field: "payroll_component_id", Message: "is required"})
	}
	if r.Amount.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "must be non-negative"})
	}
	if _, ok := validator.IsValidDate(r.EffectiveFrom); !ok {
		errs = append(errs, validator.ValidationError{Field: "effective_from", Message: "must be in YYYY-MM-DD format"})
	}
	if r.Status != "" && !validator.IsInSlice(r.Status, []string{string(StatusActive), string(StatusInactive)}) {
		errs = append(errs, validator.ValidationError{Field: "status", Message: "must be 'active' or 'inactive'"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type AssignmentResponse struct {
	EmployeeID    string          `json:"employee_id"`
	ComponentID   string          `json:"payroll_component_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveFrom string          `json:"effective_from"`
	Status        string          `json:"status"`
}

func NewAssignmentResponse(a ComponentAssignment) AssignmentResponse {
	return AssignmentResponse{
		EmployeeID:    a.EmployeeID,
		ComponentID:   a.ComponentID,
		Amount:        a.Amount,
		EffectiveFrom: a.EffectiveFrom.Format("2006-01-02"),
		Status:        string(a.Status),
	}
}
