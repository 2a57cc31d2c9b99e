package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

// ========== COMPONENTS ==========

func (s *PayrollServiceImpl) CreateComponent(ctx context.Context, req payroll.CreateComponentRequest) (payroll.SalaryComponent, error) {
	if err := req.Validate(); err != nil {
		return payroll.SalaryComponent{}, payroll.Wrap(payroll.KindValidation, "invalid payroll component", err)
	}

	id, err := s.newID()
	if err != nil {
		return payroll.SalaryComponent{}, fmt.Errorf("failed to generate component id: %w", err)
	}

	return s.salaryRepo.CreateComponent(ctx, payroll.SalaryComponent{
		ID:              id,
		Name:            strings.TrimSpace(req.Name),
		Type:            payroll.ComponentType(req.Type),
		CalculationType: payroll.CalculationType(req.CalculationType),
		Status:          payroll.StatusActive,
	})
}

func (s *PayrollServiceImpl) ListComponents(ctx context.Context, activeOnly bool) ([]payroll.SalaryComponent, error) {
	return s.salaryRepo.ListComponents(ctx, activeOnly)
}

// ========== ASSIGNMENTS ==========

// AssignComponent records an assignment from its effective date onwards.
// Re-assigning with the same effective date replaces that entry; earlier
// entries stay as history.
func (s *PayrollServiceImpl) AssignComponent(ctx context.Context, req payroll.AssignComponentRequest) (payroll.ComponentAssignment, error) {
	if err := req.Validate(); err != nil {
		return payroll.ComponentAssignment{}, payroll.Wrap(payroll.KindValidation, "invalid component assignment", err)
	}
	effectiveFrom, _ := validator.IsValidDate(req.EffectiveFrom)

	if _, err := s.employeeRepo.GetByID(ctx, req.EmployeeID); err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return payroll.ComponentAssignment{}, payroll.ErrEmployeeNotFound
		}
		return payroll.ComponentAssignment{}, fmt.Errorf("failed to get employee: %w", err)
	}

	status := payroll.StatusActive
	if req.Status != "" {
		status = payroll.RecordStatus(req.Status)
	}

	return s.salaryRepo.UpsertAssignment(ctx, payroll.ComponentAssignment{
		EmployeeID:    req.EmployeeID,
		ComponentID:   req.ComponentID,
		Amount:        req.Amount,
		EffectiveFrom: effectiveFrom,
		Status:        status,
	})
}

func (s *PayrollServiceImpl) ListAssignments(ctx context.Context, employeeID string) ([]payroll.ComponentAssignment, error) {
	return s.salaryRepo.ListAssignments(ctx, employeeID)
}
