package payroll

import (
	"context"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

func (s *PayrollServiceImpl) GetRecord(ctx context.Context, id string) (payroll.PayrollRecord, error) {
	return s.payrollRepo.GetRecordByID(ctx, id)
}

// ListRecords serves reporting and export; formatting is left to the caller.
func (s *PayrollServiceImpl) ListRecords(ctx context.Context, filter payroll.PayrollFilter) ([]payroll.PayrollRecord, error) {
	query, err := filter.ToQuery()
	if err != nil {
		return nil, err
	}
	return s.payrollRepo.ListRecords(ctx, query)
}

func (s *PayrollServiceImpl) GetRunSummary(ctx context.Context, period payroll.Period) (payroll.PeriodSummary, error) {
	return s.payrollRepo.GetPeriodSummary(ctx, period)
}
