package payroll

import (
	"errors"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

// ErrorKind classifies payroll errors. Each kind is itself an error so callers
// can match with errors.Is(err, payroll.KindNotFound).
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindInvalidState ErrorKind = "invalid_state"
	KindConsistency  ErrorKind = "consistency"
	KindInternal     ErrorKind = "internal"
)

func (k ErrorKind) Error() string {
	return string(k)
}

// Error is a classified payroll error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind with a message.
func Wrap(kind ErrorKind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal if there is none. Request validation errors are KindValidation.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindInternal
}

var (
	ErrInvalidPeriod              = newError(KindValidation, "invalid payroll period, expected YYYY-MM")
	ErrEmployeeHasNoBaseSalary    = newError(KindValidation, "employee has no base salary configured")
	ErrNegativeBaseSalary         = newError(KindValidation, "employee base salary cannot be negative")
	ErrEmployeeNotActive          = newError(KindValidation, "employee is not active")
	ErrInvalidAssignmentAmount    = newError(KindValidation, "component assignment amount cannot be negative")
	ErrInvalidCalculationType     = newError(KindValidation, "invalid component calculation type")
	ErrInvalidComponentType       = newError(KindValidation, "invalid component type")
	ErrInvalidStatus              = newError(KindValidation, "invalid payroll status")
	ErrInvalidPaymentMethod       = newError(KindValidation, "invalid payment method")
	ErrPaymentDateRequired        = newError(KindValidation, "payment date is required")
	ErrInvalidTaxConfig           = newError(KindValidation, "invalid statutory tax configuration")
	ErrEmployeeNotFound           = newError(KindNotFound, "employee not found")
	ErrPayrollComponentNotFound   = newError(KindNotFound, "payroll component not found")
	ErrPayrollRecordNotFound      = newError(KindNotFound, "payroll record not found")
	ErrPayrollRecordAlreadyExists = newError(KindConflict, "payroll record already exists for this period")
	ErrPayrollComponentNameExists = newError(KindConflict, "payroll component name already exists")
	ErrConcurrentSettlement       = newError(KindConflict, "payroll record was settled by another request")
	ErrPayrollRecordAlreadyPaid   = newError(KindInvalidState, "payroll record already paid")
	ErrComponentMissing           = newError(KindConsistency, "assignment references a payroll component that no longer exists")
)
