package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/metrics"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"golang.org/x/sync/errgroup"
)

// notifyWorkers caps in-flight paid notifications per settlement call.
const notifyWorkers = 4

// MarkPaid settles a processed record. A record that is already paid fails with
// ErrPayrollRecordAlreadyPaid and is left untouched.
func (s *PayrollServiceImpl) MarkPaid(ctx context.Context, recordID string, info payroll.PaymentInfo) (payroll.PayrollRecord, error) {
	if err := info.Validate(); err != nil {
		return payroll.PayrollRecord{}, err
	}

	rec, err := s.payrollRepo.MarkRecordPaid(ctx, recordID, info, s.now())
	if err != nil {
		s.metrics.IncSettlement(settlementModeSingle, metrics.SettlementOutcomeFailed)
		return payroll.PayrollRecord{}, err
	}
	s.metrics.IncSettlement(settlementModeSingle, metrics.SettlementOutcomePaid)

	slog.Info("Payroll record paid", "record_id", rec.ID, "employee_id", rec.EmployeeID, "period", rec.Period.String())
	s.notifyPaid(ctx, rec)

	return rec, nil
}

// BulkMarkPaid settles every processed record of the period matching the
// filter. Each record is settled on its own; a record paid by another caller
// in the meantime is reported as a conflict and does not stop the rest.
func (s *PayrollServiceImpl) BulkMarkPaid(ctx context.Context, req payroll.BulkMarkPaidRequest) (payroll.BulkResult, error) {
	if err := req.Validate(); err != nil {
		return payroll.BulkResult{}, payroll.Wrap(payroll.KindValidation, "invalid bulk settlement request", err)
	}
	period, err := payroll.ParsePeriod(req.Period)
	if err != nil {
		return payroll.BulkResult{}, err
	}
	info, err := req.Payment.ToPaymentInfo()
	if err != nil {
		return payroll.BulkResult{}, err
	}

	recordIDs := dedupe(req.RecordIDs)
	processed := payroll.PayrollStatusProcessed
	records, err := s.payrollRepo.ListRecords(ctx, payroll.RecordQuery{
		Period:      &period,
		Status:      &processed,
		EmployeeIDs: dedupe(req.EmployeeIDs),
		RecordIDs:   recordIDs,
	})
	if err != nil {
		return payroll.BulkResult{}, fmt.Errorf("failed to select payroll records: %w", err)
	}

	result := payroll.BulkResult{Failures: []payroll.BulkFailure{}}
	result.Failures = append(result.Failures, s.unselectedFailures(ctx, recordIDs, records, period)...)

	paidAt := s.now()
	paidRecords := make([]payroll.PayrollRecord, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, bulkFailure(rec.ID, fmt.Errorf("bulk settlement interrupted: %w", err)))
			continue
		}

		paid, err := s.payrollRepo.MarkRecordPaid(context.WithoutCancel(ctx), rec.ID, info, paidAt)
		if err != nil {
			if errors.Is(err, payroll.ErrPayrollRecordAlreadyPaid) {
				err = payroll.ErrConcurrentSettlement
			}
			s.metrics.IncSettlement(settlementModeBulk, metrics.SettlementOutcomeFailed)
			slog.Warn("Bulk settlement failed for record", "record_id", rec.ID, "period", period.String(), "error", err)
			result.Failures = append(result.Failures, bulkFailure(rec.ID, err))
			continue
		}

		s.metrics.IncSettlement(settlementModeBulk, metrics.SettlementOutcomePaid)
		result.SuccessCount++
		paidRecords = append(paidRecords, paid)
	}
	s.notifyPaid(ctx, paidRecords...)

	slog.Info("Bulk settlement completed",
		"period", period.String(),
		"success_count", result.SuccessCount,
		"failure_count", len(result.Failures),
	)

	return result, nil
}

// unselectedFailures explains explicitly requested record ids that were not
// selected for settlement.
func (s *PayrollServiceImpl) unselectedFailures(ctx context.Context, recordIDs []string, selected []payroll.PayrollRecord, period payroll.Period) []payroll.BulkFailure {
	if len(recordIDs) == 0 {
		return nil
	}
	found := make(map[string]struct{}, len(selected))
	for _, rec := range selected {
		found[rec.ID] = struct{}{}
	}

	var failures []payroll.BulkFailure
	for _, id := range recordIDs {
		if _, ok := found[id]; ok {
			continue
		}
		rec, err := s.payrollRepo.GetRecordByID(ctx, id)
		switch {
		case err != nil:
			failures = append(failures, bulkFailure(id, err))
		case rec.Period != period:
			failures = append(failures, bulkFailure(id, fmt.Errorf("record belongs to period %s: %w", rec.Period, payroll.ErrPayrollRecordNotFound)))
		case rec.Status == payroll.PayrollStatusPaid:
			failures = append(failures, bulkFailure(id, payroll.ErrPayrollRecordAlreadyPaid))
		default:
			// Processed and in period but filtered out by employee_ids.
			failures = append(failures, bulkFailure(id, fmt.Errorf("record not selected by employee filter: %w", payroll.ErrPayrollRecordNotFound)))
		}
	}
	return failures
}

func bulkFailure(recordID string, err error) payroll.BulkFailure {
	return payroll.BulkFailure{
		RecordID: recordID,
		Kind:     payroll.KindOf(err),
		Reason:   err.Error(),
	}
}

// notifyPaid sends paid notifications in the background, at most
// notifyWorkers at a time. Failures are only logged; the settlements are
// already committed.
func (s *PayrollServiceImpl) notifyPaid(ctx context.Context, records ...payroll.PayrollRecord) {
	if s.notifier == nil || len(records) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		var g errgroup.Group
		g.SetLimit(notifyWorkers)
		for _, rec := range records {
			g.Go(func() error {
				s.sendPaidNotification(ctx, rec)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *PayrollServiceImpl) sendPaidNotification(ctx context.Context, rec payroll.PayrollRecord) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Payroll paid notification panicked", "record_id", rec.ID, "panic", p)
		}
	}()

	emp, err := s.employeeRepo.GetByID(ctx, rec.EmployeeID)
	if err != nil {
		s.metrics.IncNotification(err)
		slog.Warn("Skipping payroll paid notification", "record_id", rec.ID, "error", err)
		return
	}
	if !validator.IsValidEmail(emp.Email) {
		slog.Debug("Employee has no deliverable email", "record_id", rec.ID, "employee_id", rec.EmployeeID)
		return
	}

	err = s.notifier.PayrollPaid(ctx, emp.Email, AssemblePaySlip(rec, employeeMetadata(emp)))
	s.metrics.IncNotification(err)
	if err != nil {
		slog.Error("Failed to send payroll paid notification",
			"record_id", rec.ID,
			"employee_id", rec.EmployeeID,
			"error", err,
		)
	}
}
