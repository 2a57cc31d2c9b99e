package employee

import (
	"time"

	"github.com/shopspring/decimal"
)

// Employee is the directory entry payroll reads. The directory itself is
// maintained elsewhere.
type Employee struct {
	ID               string
	EmployeeCode     string
	FullName         string
	Email            string
	Department       *string
	Designation      *string
	EmploymentStatus EmploymentStatus
	BaseSalary       *decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusInactive   EmploymentStatus = "inactive"
	EmploymentStatusResigned   EmploymentStatus = "resigned"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

func (e Employee) IsActive() bool {
	return e.EmploymentStatus == EmploymentStatusActive
}
