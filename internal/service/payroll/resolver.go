package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolvedComponents are an employee's component lines for one period.
type ResolvedComponents struct {
	Earnings   []payroll.LineItem
	Deductions []payroll.LineItem
}

// ComponentResolver turns salary component assignments into line items.
type ComponentResolver struct {
	salaryRepo payroll.SalaryRepository
}

func NewComponentResolver(salaryRepo payroll.SalaryRepository) *ComponentResolver {
	return &ComponentResolver{salaryRepo: salaryRepo}
}

// Resolve returns the earning and deduction lines in force for employeeID in
// period. Per component the assignment with the latest effective date on or
// before the period end wins; when that assignment is inactive the component
// has been ended and contributes nothing. Inactive components are ignored; an
// assignment whose component no longer exists is a consistency error.
func (r *ComponentResolver) Resolve(ctx context.Context, employeeID string, period payroll.Period, basicSalary decimal.Decimal) (ResolvedComponents, error) {
	resolved := ResolvedComponents{
		Earnings:   []payroll.LineItem{},
		Deductions: []payroll.LineItem{},
	}

	assignments, err := r.salaryRepo.ListApplicableAssignments(ctx, employeeID, period.End())
	if err != nil {
		return ResolvedComponents{}, fmt.Errorf("failed to get component assignments: %w", err)
	}

	latest := make(map[string]payroll.ComponentAssignment)
	for _, a := range assignments {
		if a.EffectiveFrom.After(period.End()) {
			continue
		}
		if cur, ok := latest[a.ComponentID]; !ok || a.EffectiveFrom.After(cur.EffectiveFrom) {
			latest[a.ComponentID] = a
		}
	}
	for id, a := range latest {
		if !a.AppliesTo(period) {
			delete(latest, id)
		}
	}
	if len(latest) == 0 {
		return resolved, nil
	}

	componentIDs := make([]string, 0, len(latest))
	for id := range latest {
		componentIDs = append(componentIDs, id)
	}
	sort.Strings(componentIDs)

	components, err := r.salaryRepo.GetComponentsByIDs(ctx, componentIDs)
	if err != nil {
		return ResolvedComponents{}, fmt.Errorf("failed to get payroll components: %w", err)
	}

	for _, id := range componentIDs {
		a := latest[id]
		component, ok := components[id]
		if !ok {
			return ResolvedComponents{}, fmt.Errorf("component %s: %w", id, payroll.ErrComponentMissing)
		}
		if component.Status != payroll.StatusActive {
			continue
		}
		if a.Amount.IsNegative() {
			return ResolvedComponents{}, fmt.Errorf("component %q: %w", component.Name, payroll.ErrInvalidAssignmentAmount)
		}

		calc, err := component.CalculationType.Bind(a.Amount)
		if err != nil {
			return ResolvedComponents{}, fmt.Errorf("component %q: %w", component.Name, err)
		}
		line := payroll.LineItem{
			ComponentID: component.ID,
			Name:        component.Name,
			Amount:      lineAmount(calc, basicSalary),
		}

		switch component.Type {
		case payroll.ComponentTypeEarning:
			resolved.Earnings = append(resolved.Earnings, line)
		case payroll.ComponentTypeDeduction:
			resolved.Deductions = append(resolved.Deductions, line)
		default:
			return ResolvedComponents{}, fmt.Errorf("component %q: %w", component.Name, payroll.ErrInvalidComponentType)
		}
	}

	sortLines(resolved.Earnings)
	sortLines(resolved.Deductions)
	return resolved, nil
}

// lineAmount keeps full precision; rounding happens on the record totals.
func lineAmount(calc payroll.Calculation, basicSalary decimal.Decimal) decimal.Decimal {
	switch c := calc.(type) {
	case payroll.Fixed:
		return c.Amount
	case payroll.Percentage:
		return basicSalary.Mul(c.Rate).Div(hundred)
	default:
		panic(fmt.Sprintf("payroll: unhandled calculation %T", calc))
	}
}

func sortLines(lines []payroll.LineItem) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Name != lines[j].Name {
			return lines[i].Name < lines[j].Name
		}
		return lines[i].ComponentID < lines[j].ComponentID
	})
}
