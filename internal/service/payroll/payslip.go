package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

const (
	StatutoryContributionLineID = "statutory_contribution"
	StatutoryIncomeTaxLineID    = "statutory_income_tax"
)

// AssemblePaySlip projects a record onto a pay slip. It has no side effects.
// Statutory deductions are listed after the component deductions.
func AssemblePaySlip(record payroll.PayrollRecord, meta payroll.EmployeeMetadata) payroll.PaySlip {
	earnings := append([]payroll.LineItem{}, record.EarningsLines...)
	deductions := append([]payroll.LineItem{}, record.DeductionLines...)
	deductions = append(deductions,
		payroll.LineItem{ComponentID: StatutoryContributionLineID, Name: "Statutory Contribution", Amount: record.Statutory.Contribution},
		payroll.LineItem{ComponentID: StatutoryIncomeTaxLineID, Name: "Income Tax", Amount: record.Statutory.IncomeTax},
	)

	slip := payroll.PaySlip{
		Employee:         meta,
		Period:           record.Period.String(),
		BasicSalary:      record.BasicSalarySnapshot,
		EarningsLines:    earnings,
		DeductionsLines:  deductions,
		TotalEarnings:    payroll.RoundMoney(record.BasicSalarySnapshot.Add(payroll.SumLines(record.EarningsLines))),
		TotalDeductions:  payroll.RoundMoney(payroll.SumLines(record.DeductionLines).Add(record.Statutory.Total)),
		NetPay:           record.NetPay,
		Status:           string(record.Status),
		PaymentReference: record.PaymentReference,
	}
	if record.PaymentDate != nil {
		d := record.PaymentDate.Format("2006-01-02")
		slip.PaymentDate = &d
	}
	if record.PaymentMethod != nil {
		m := string(*record.PaymentMethod)
		slip.PaymentMethod = &m
	}
	return slip
}

func employeeMetadata(emp employee.Employee) payroll.EmployeeMetadata {
	return payroll.EmployeeMetadata{
		ID:          emp.ID,
		Name:        emp.FullName,
		Code:        emp.EmployeeCode,
		Email:       emp.Email,
		Department:  emp.Department,
		Designation: emp.Designation,
	}
}

func (s *PayrollServiceImpl) GetPaySlip(ctx context.Context, employeeID string, period payroll.Period) (payroll.PaySlip, error) {
	rec, err := s.payrollRepo.GetRecordByEmployeePeriod(ctx, employeeID, period)
	if err != nil {
		return payroll.PaySlip{}, err
	}

	emp, err := s.employeeRepo.GetByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return payroll.PaySlip{}, payroll.ErrEmployeeNotFound
		}
		return payroll.PaySlip{}, fmt.Errorf("failed to get employee: %w", err)
	}

	return AssemblePaySlip(rec, employeeMetadata(emp)), nil
}
