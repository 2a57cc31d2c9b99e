package payroll

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/config"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustPeriod(t *testing.T, s string) payroll.Period {
	t.Helper()
	p, err := payroll.ParsePeriod(s)
	if err != nil {
		t.Fatalf("parse period %q: %v", s, err)
	}
	return p
}

func testPayrollConfig() config.PayrollConfig {
	return config.PayrollConfig{
		Tax: payroll.TaxConfig{
			FlatRate: dec("0.055"),
			Brackets: []payroll.TaxBracket{
				{Low: dec("0"), High: decPtr("5000"), Rate: dec("0")},
				{Low: dec("5000"), High: decPtr("10000"), Rate: dec("0.10")},
				{Low: dec("10000"), Rate: dec("0.20")},
			},
		},
		RunWorkers: 4,
	}
}

// ========== PAYROLL RECORDS ==========

type memPayrollRepo struct {
	mu      sync.Mutex
	records map[string]payroll.PayrollRecord
	byKey   map[string]string
	order   []string

	// beforeMarkPaid runs before the compare-and-set, outside the lock.
	beforeMarkPaid func(id string)
}

func newMemPayrollRepo() *memPayrollRepo {
	return &memPayrollRepo{
		records: make(map[string]payroll.PayrollRecord),
		byKey:   make(map[string]string),
	}
}

func recordKey(employeeID string, period payroll.Period) string {
	return employeeID + "|" + period.String()
}

func cloneRecord(r payroll.PayrollRecord) payroll.PayrollRecord {
	r.EarningsLines = append([]payroll.LineItem(nil), r.EarningsLines...)
	r.DeductionLines = append([]payroll.LineItem(nil), r.DeductionLines...)
	r.Statutory.Brackets = append([]payroll.BracketTax(nil), r.Statutory.Brackets...)
	return r
}

func (m *memPayrollRepo) CreateRecordIfAbsent(_ context.Context, record payroll.PayrollRecord) (payroll.PayrollRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(record.EmployeeID, record.Period)
	if id, ok := m.byKey[key]; ok {
		return cloneRecord(m.records[id]), false, nil
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	m.records[record.ID] = cloneRecord(record)
	m.byKey[key] = record.ID
	m.order = append(m.order, record.ID)
	return cloneRecord(record), true, nil
}

func (m *memPayrollRepo) GetRecordByID(_ context.Context, id string) (payroll.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	return cloneRecord(r), nil
}

func (m *memPayrollRepo) GetRecordByEmployeePeriod(_ context.Context, employeeID string, period payroll.Period) (payroll.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[recordKey(employeeID, period)]
	if !ok {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	return cloneRecord(m.records[id]), nil
}

func (m *memPayrollRepo) ExistsForEmployeePeriod(_ context.Context, employeeID string, period payroll.Period) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.byKey[recordKey(employeeID, period)]
	return ok, nil
}

func (m *memPayrollRepo) ListRecords(_ context.Context, q payroll.RecordQuery) ([]payroll.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	employees := toSet(q.EmployeeIDs)
	ids := toSet(q.RecordIDs)

	result := []payroll.PayrollRecord{}
	for _, id := range m.order {
		r := m.records[id]
		if q.Period != nil && r.Period != *q.Period {
			continue
		}
		if q.Status != nil && r.Status != *q.Status {
			continue
		}
		if q.EmployeeID != nil && r.EmployeeID != *q.EmployeeID {
			continue
		}
		if len(employees) > 0 && !employees[r.EmployeeID] {
			continue
		}
		if len(ids) > 0 && !ids[r.ID] {
			continue
		}
		result = append(result, cloneRecord(r))
	}
	return result, nil
}

func (m *memPayrollRepo) MarkRecordPaid(_ context.Context, id string, info payroll.PaymentInfo, paidAt time.Time) (payroll.PayrollRecord, error) {
	if m.beforeMarkPaid != nil {
		m.beforeMarkPaid(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordNotFound
	}
	if !r.Status.CanTransitionTo(payroll.PayrollStatusPaid) {
		return payroll.PayrollRecord{}, payroll.ErrPayrollRecordAlreadyPaid
	}

	date := info.PaymentDate
	method := info.PaymentMethod
	r.Status = payroll.PayrollStatusPaid
	r.PaymentDate = &date
	r.PaymentMethod = &method
	if info.PaymentReference != "" {
		ref := info.PaymentReference
		r.PaymentReference = &ref
	}
	r.PaidAt = &paidAt
	r.UpdatedAt = paidAt
	m.records[id] = r
	return cloneRecord(r), nil
}

func (m *memPayrollRepo) GetPeriodSummary(_ context.Context, period payroll.Period) (payroll.PeriodSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := payroll.PeriodSummary{Period: period, TotalGrossPay: decimal.Zero, TotalNetPay: decimal.Zero}
	for _, r := range m.records {
		if r.Period != period {
			continue
		}
		s.TotalEmployees++
		switch r.Status {
		case payroll.PayrollStatusProcessed:
			s.ProcessedCount++
		case payroll.PayrollStatusPaid:
			s.PaidCount++
		}
		s.TotalGrossPay = s.TotalGrossPay.Add(r.GrossPay)
		s.TotalNetPay = s.TotalNetPay.Add(r.NetPay)
	}
	return s, nil
}

// settle marks a record paid directly, as another caller would.
func (m *memPayrollRepo) settle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.records[id]
	now := time.Now().UTC()
	method := payroll.PaymentMethodCash
	r.Status = payroll.PayrollStatusPaid
	r.PaymentDate = &now
	r.PaymentMethod = &method
	r.PaidAt = &now
	m.records[id] = r
}

func (m *memPayrollRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// ========== SALARY ==========

type memSalaryRepo struct {
	mu          sync.Mutex
	components  map[string]payroll.SalaryComponent
	assignments []payroll.ComponentAssignment
}

func newMemSalaryRepo() *memSalaryRepo {
	return &memSalaryRepo{components: make(map[string]payroll.SalaryComponent)}
}

func (m *memSalaryRepo) addComponent(id, name string, typ payroll.ComponentType, calc payroll.CalculationType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[id] = payroll.SalaryComponent{ID: id, Name: name, Type: typ, CalculationType: calc, Status: payroll.StatusActive}
}

func (m *memSalaryRepo) assign(employeeID, componentID, amount, effectiveFrom string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, err := time.Parse("2006-01-02", effectiveFrom)
	if err != nil {
		panic(err)
	}
	m.assignments = append(m.assignments, payroll.ComponentAssignment{
		EmployeeID:    employeeID,
		ComponentID:   componentID,
		Amount:        dec(amount),
		EffectiveFrom: from,
		Status:        payroll.StatusActive,
	})
}

func (m *memSalaryRepo) CreateComponent(_ context.Context, c payroll.SalaryComponent) (payroll.SalaryComponent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.components {
		if existing.Name == c.Name {
			return payroll.SalaryComponent{}, payroll.ErrPayrollComponentNameExists
		}
	}
	m.components[c.ID] = c
	return c, nil
}

func (m *memSalaryRepo) GetComponentByID(_ context.Context, id string) (payroll.SalaryComponent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.components[id]
	if !ok {
		return payroll.SalaryComponent{}, payroll.ErrPayrollComponentNotFound
	}
	return c, nil
}

func (m *memSalaryRepo) GetComponentsByIDs(_ context.Context, ids []string) (map[string]payroll.SalaryComponent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]payroll.SalaryComponent, len(ids))
	for _, id := range ids {
		if c, ok := m.components[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func (m *memSalaryRepo) ListComponents(_ context.Context, activeOnly bool) ([]payroll.SalaryComponent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []payroll.SalaryComponent{}
	for _, c := range m.components {
		if activeOnly && c.Status != payroll.StatusActive {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *memSalaryRepo) UpsertAssignment(_ context.Context, a payroll.ComponentAssignment) (payroll.ComponentAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.components[a.ComponentID]; !ok {
		return payroll.ComponentAssignment{}, payroll.ErrPayrollComponentNotFound
	}
	for i, existing := range m.assignments {
		if existing.EmployeeID == a.EmployeeID && existing.ComponentID == a.ComponentID && existing.EffectiveFrom.Equal(a.EffectiveFrom) {
			m.assignments[i] = a
			return a, nil
		}
	}
	m.assignments = append(m.assignments, a)
	return a, nil
}

func (m *memSalaryRepo) ListAssignments(_ context.Context, employeeID string) ([]payroll.ComponentAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []payroll.ComponentAssignment{}
	for _, a := range m.assignments {
		if a.EmployeeID == employeeID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *memSalaryRepo) ListApplicableAssignments(_ context.Context, employeeID string, asOf time.Time) ([]payroll.ComponentAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []payroll.ComponentAssignment{}
	for _, a := range m.assignments {
		if a.EmployeeID == employeeID && !a.EffectiveFrom.After(asOf) {
			result = append(result, a)
		}
	}
	return result, nil
}

// ========== EMPLOYEES ==========

type memEmployeeRepo struct {
	mu        sync.Mutex
	employees map[string]employee.Employee
}

func newMemEmployeeRepo() *memEmployeeRepo {
	return &memEmployeeRepo{employees: make(map[string]employee.Employee)}
}

func (m *memEmployeeRepo) add(id, salary string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := employee.Employee{
		ID:               id,
		EmployeeCode:     fmt.Sprintf("EMP-%s", id),
		FullName:         "Employee " + id,
		Email:            id + "@example.com",
		EmploymentStatus: employee.EmploymentStatusActive,
	}
	if salary != "" {
		e.BaseSalary = decPtr(salary)
	}
	m.employees[id] = e
}

func (m *memEmployeeRepo) update(id string, fn func(*employee.Employee)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.employees[id]
	fn(&e)
	m.employees[id] = e
}

func (m *memEmployeeRepo) GetByID(_ context.Context, id string) (employee.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.employees[id]
	if !ok {
		return employee.Employee{}, employee.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *memEmployeeRepo) ListActiveIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := []string{}
	for id, e := range m.employees {
		if e.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ========== NOTIFIER ==========

type notification struct {
	to   string
	slip payroll.PaySlip
}

type chanNotifier struct {
	sent chan notification
	err  error
}

func newChanNotifier(err error) *chanNotifier {
	return &chanNotifier{sent: make(chan notification, 16), err: err}
}

func (n *chanNotifier) PayrollPaid(_ context.Context, to string, slip payroll.PaySlip) error {
	n.sent <- notification{to: to, slip: slip}
	return n.err
}

// gatedNotifier holds every send until release is closed and records the
// highest number of sends in flight at once.
type gatedNotifier struct {
	release chan struct{}

	mu        sync.Mutex
	inFlight  int
	peak      int
	delivered []string
}

func newGatedNotifier() *gatedNotifier {
	return &gatedNotifier{release: make(chan struct{})}
}

func (n *gatedNotifier) PayrollPaid(_ context.Context, to string, _ payroll.PaySlip) error {
	n.mu.Lock()
	n.inFlight++
	n.peak = max(n.peak, n.inFlight)
	n.mu.Unlock()

	<-n.release

	n.mu.Lock()
	n.inFlight--
	n.delivered = append(n.delivered, to)
	n.mu.Unlock()
	return nil
}

func (n *gatedNotifier) snapshot() (inFlight, peak, delivered int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inFlight, n.peak, len(n.delivered)
}

// ========== FIXTURE ==========

type fixture struct {
	payrolls  *memPayrollRepo
	salaries  *memSalaryRepo
	employees *memEmployeeRepo
	notifier  *chanNotifier
	svc       *PayrollServiceImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		payrolls:  newMemPayrollRepo(),
		salaries:  newMemSalaryRepo(),
		employees: newMemEmployeeRepo(),
		notifier:  newChanNotifier(nil),
	}
	f.svc = newPayrollService(f.payrolls, f.salaries, f.employees, f.notifier, nil, testPayrollConfig())

	var seq int
	var mu sync.Mutex
	f.svc.newID = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("rec-%03d", seq), nil
	}
	f.svc.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) generate(t *testing.T, period string, employeeIDs ...string) payroll.RunSummary {
	t.Helper()
	summary, err := f.svc.GenerateRun(context.Background(), payroll.GenerateRunRequest{Period: period, EmployeeIDs: employeeIDs})
	if err != nil {
		t.Fatalf("generate run: %v", err)
	}
	return summary
}

func testPayment() payroll.PaymentInfo {
	return payroll.PaymentInfo{
		PaymentDate:      time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
		PaymentMethod:    payroll.PaymentMethodBankTransfer,
		PaymentReference: "TRX-1",
	}
}
