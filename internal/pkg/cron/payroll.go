package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

// PayrollRunner is the part of the payroll service the scheduled run needs.
type PayrollRunner interface {
	GenerateRun(ctx context.Context, req payroll.GenerateRunRequest) (payroll.RunSummary, error)
}

// PayrollJobs generates the current period for all active employees once the
// calendar reaches the configured run day.
type PayrollJobs struct {
	runner PayrollRunner
	runDay int
	now    func() time.Time

	mu        sync.Mutex
	completed payroll.Period
}

func NewPayrollJobs(runner PayrollRunner, runDay int) *PayrollJobs {
	return &PayrollJobs{
		runner: runner,
		runDay: runDay,
		now:    time.Now,
	}
}

// RegisterJobs registers all payroll-related cron jobs
func (j *PayrollJobs) RegisterJobs(scheduler *Scheduler) {
	// Check every hour; the run itself happens once per period
	scheduler.AddJob(
		"generate_monthly_payroll",
		1*time.Hour,
		j.GenerateMonthlyPayroll,
	)
}

// GenerateMonthlyPayroll runs payroll for the current period. A period with
// failed employees is retried on the next tick; existing records are skipped.
func (j *PayrollJobs) GenerateMonthlyPayroll(ctx context.Context) error {
	now := j.now().UTC()
	if now.Day() < j.runDay {
		return nil
	}
	period := payroll.Period{Year: now.Year(), Month: now.Month()}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.completed == period {
		return nil
	}

	summary, err := j.runner.GenerateRun(ctx, payroll.GenerateRunRequest{Period: period.String()})
	if err != nil {
		return err
	}

	slog.Info("Scheduled payroll run finished",
		"period", period.String(),
		"generated", len(summary.Generated),
		"skipped", len(summary.Skipped),
		"failed", len(summary.Failed),
	)
	if len(summary.Failed) == 0 {
		j.completed = period
	}
	return nil
}
