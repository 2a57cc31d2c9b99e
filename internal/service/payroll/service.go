package payroll

import (
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/config"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/metrics"
	"github.com/google/uuid"
)

const (
	settlementModeSingle = "single"
	settlementModeBulk   = "bulk"
)

type PayrollServiceImpl struct {
	payrollRepo  payroll.PayrollRepository
	salaryRepo   payroll.SalaryRepository
	employeeRepo employee.EmployeeRepository
	resolver     *ComponentResolver
	notifier     payroll.Notifier
	metrics      *metrics.PayrollMetrics
	taxConfig    payroll.TaxConfig
	workers      int

	now   func() time.Time
	newID func() (string, error)
}

// NewPayrollService wires the payroll engine. notifier and m may be nil.
func NewPayrollService(
	payrollRepo payroll.PayrollRepository,
	salaryRepo payroll.SalaryRepository,
	employeeRepo employee.EmployeeRepository,
	notifier payroll.Notifier,
	m *metrics.PayrollMetrics,
	cfg config.PayrollConfig,
) payroll.PayrollService {
	return newPayrollService(payrollRepo, salaryRepo, employeeRepo, notifier, m, cfg)
}

func newPayrollService(
	payrollRepo payroll.PayrollRepository,
	salaryRepo payroll.SalaryRepository,
	employeeRepo employee.EmployeeRepository,
	notifier payroll.Notifier,
	m *metrics.PayrollMetrics,
	cfg config.PayrollConfig,
) *PayrollServiceImpl {
	workers := cfg.RunWorkers
	if workers < 1 {
		workers = 1
	}
	return &PayrollServiceImpl{
		payrollRepo:  payrollRepo,
		salaryRepo:   salaryRepo,
		employeeRepo: employeeRepo,
		resolver:     NewComponentResolver(salaryRepo),
		notifier:     notifier,
		metrics:      m,
		taxConfig:    cfg.Tax,
		workers:      workers,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        newUUIDv7,
	}
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
