package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

type runOutcome struct {
	created bool
	skipped bool
	err     error
}

// GenerateRun computes a payroll record for every requested employee that does
// not have one for the period yet. Employees are computed concurrently and
// independently; the summary lists them in request order.
func (s *PayrollServiceImpl) GenerateRun(ctx context.Context, req payroll.GenerateRunRequest) (payroll.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return payroll.RunSummary{}, payroll.Wrap(payroll.KindValidation, "invalid payroll run request", err)
	}
	period, err := payroll.ParsePeriod(req.Period)
	if err != nil {
		return payroll.RunSummary{}, err
	}

	started := s.now()

	employeeIDs := dedupe(req.EmployeeIDs)
	if len(employeeIDs) == 0 {
		employeeIDs, err = s.employeeRepo.ListActiveIDs(ctx)
		if err != nil {
			return payroll.RunSummary{}, fmt.Errorf("failed to get employees: %w", err)
		}
	}

	outcomes := make([]runOutcome, len(employeeIDs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, employeeID := range employeeIDs {
		// Stop starting employees once cancelled; committed records stay as they are.
		if err := ctx.Err(); err != nil {
			outcomes[i] = runOutcome{err: fmt.Errorf("payroll run interrupted: %w", err)}
			continue
		}
		g.Go(func() error {
			// A started employee runs to completion.
			outcomes[i] = s.generateForEmployee(context.WithoutCancel(ctx), employeeID, period)
			return nil
		})
	}
	_ = g.Wait()

	summary := payroll.RunSummary{
		Period:    period,
		Generated: []string{},
		Skipped:   []string{},
		Failed:    []payroll.RunFailure{},
	}
	for i, o := range outcomes {
		employeeID := employeeIDs[i]
		switch {
		case o.err != nil:
			summary.Failed = append(summary.Failed, payroll.RunFailure{
				EmployeeID: employeeID,
				Kind:       payroll.KindOf(o.err),
				Reason:     o.err.Error(),
			})
			slog.Warn("Payroll generation failed for employee",
				"period", period.String(),
				"employee_id", employeeID,
				"error", o.err,
			)
		case o.skipped:
			summary.Skipped = append(summary.Skipped, employeeID)
		case o.created:
			summary.Generated = append(summary.Generated, employeeID)
		}
	}

	s.metrics.AddRunEmployees(metrics.RunOutcomeGenerated, len(summary.Generated))
	s.metrics.AddRunEmployees(metrics.RunOutcomeSkipped, len(summary.Skipped))
	s.metrics.AddRunEmployees(metrics.RunOutcomeFailed, len(summary.Failed))
	s.metrics.ObserveRunDuration(s.now().Sub(started))

	slog.Info("Payroll run completed",
		"period", period.String(),
		"generated", len(summary.Generated),
		"skipped", len(summary.Skipped),
		"failed", len(summary.Failed),
	)

	return summary, nil
}

func (s *PayrollServiceImpl) generateForEmployee(ctx context.Context, employeeID string, period payroll.Period) runOutcome {
	// Existing records are never recomputed or overwritten.
	exists, err := s.payrollRepo.ExistsForEmployeePeriod(ctx, employeeID, period)
	if err != nil {
		return runOutcome{err: fmt.Errorf("failed to check existing payroll record: %w", err)}
	}
	if exists {
		return runOutcome{skipped: true}
	}

	emp, err := s.employeeRepo.GetByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return runOutcome{err: payroll.ErrEmployeeNotFound}
		}
		return runOutcome{err: fmt.Errorf("failed to get employee: %w", err)}
	}

	record, err := s.computeRecord(ctx, emp, period)
	if err != nil {
		return runOutcome{err: err}
	}

	// A concurrent run may have inserted the record since the check above.
	_, created, err := s.payrollRepo.CreateRecordIfAbsent(ctx, record)
	if err != nil {
		return runOutcome{err: err}
	}
	if !created {
		return runOutcome{skipped: true}
	}
	return runOutcome{created: true}
}

// computeRecord builds the processed record of emp for period. The basic salary
// is snapshotted here, and gross and net pay are each rounded once.
func (s *PayrollServiceImpl) computeRecord(ctx context.Context, emp employee.Employee, period payroll.Period) (payroll.PayrollRecord, error) {
	if !emp.IsActive() {
		return payroll.PayrollRecord{}, payroll.ErrEmployeeNotActive
	}
	if emp.BaseSalary == nil {
		return payroll.PayrollRecord{}, payroll.ErrEmployeeHasNoBaseSalary
	}
	if emp.BaseSalary.IsNegative() {
		return payroll.PayrollRecord{}, payroll.ErrNegativeBaseSalary
	}
	basic := *emp.BaseSalary

	resolved, err := s.resolver.Resolve(ctx, emp.ID, period, basic)
	if err != nil {
		return payroll.PayrollRecord{}, err
	}
	statutory := payroll.ComputeStatutory(basic, s.taxConfig)

	earnings := payroll.SumLines(resolved.Earnings)
	deductions := payroll.SumLines(resolved.Deductions)
	gross := basic.Add(earnings)
	net := gross.Sub(deductions).Sub(statutory.Total)

	id, err := s.newID()
	if err != nil {
		return payroll.PayrollRecord{}, fmt.Errorf("failed to generate record id: %w", err)
	}

	return payroll.PayrollRecord{
		ID:                  id,
		EmployeeID:          emp.ID,
		Period:              period,
		BasicSalarySnapshot: basic,
		EarningsLines:       resolved.Earnings,
		DeductionLines:      resolved.Deductions,
		Statutory:           statutory,
		GrossPay:            payroll.RoundMoney(gross),
		NetPay:              payroll.RoundMoney(net),
		Status:              payroll.PayrollStatusProcessed,
	}, nil
}
