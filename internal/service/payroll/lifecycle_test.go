package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generatedRecord(t *testing.T, f *fixture, employeeID, period string) payroll.PayrollRecord {
	t.Helper()
	rec, err := f.payrolls.GetRecordByEmployeePeriod(context.Background(), employeeID, mustPeriod(t, period))
	require.NoError(t, err)
	return rec
}

func waitNotification(t *testing.T, n *chanNotifier) notification {
	t.Helper()
	select {
	case got := <-n.sent:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("notification not sent")
		return notification{}
	}
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.generate(t, "2024-01", "emp-1")
	rec := generatedRecord(t, f, "emp-1", "2024-01")

	paid, err := f.svc.MarkPaid(context.Background(), rec.ID, testPayment())
	require.NoError(t, err)

	assert.Equal(t, payroll.PayrollStatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, "2024-02-05", paid.PaymentDate.Format("2006-01-02"))
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, payroll.PaymentMethodBankTransfer, *paid.PaymentMethod)
	require.NotNil(t, paid.PaymentReference)
	assert.Equal(t, "TRX-1", *paid.PaymentReference)
	require.NotNil(t, paid.PaidAt)

	// Amounts are untouched by settlement.
	assert.True(t, rec.NetPay.Equal(paid.NetPay))
	assert.True(t, rec.GrossPay.Equal(paid.GrossPay))

	got := waitNotification(t, f.notifier)
	assert.Equal(t, "emp-1@example.com", got.to)
	assert.Equal(t, "paid", got.slip.Status)
	assert.Equal(t, "2024-01", got.slip.Period)
}

func TestMarkPaid_NoEmailSkipsNotification(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.update("emp-1", func(e *employee.Employee) { e.Email = "" })
	f.generate(t, "2024-01", "emp-1")
	rec := generatedRecord(t, f, "emp-1", "2024-01")

	_, err := f.svc.MarkPaid(context.Background(), rec.ID, testPayment())
	require.NoError(t, err)

	select {
	case got := <-f.notifier.sent:
		t.Fatalf("unexpected notification to %q", got.to)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMarkPaid_Twice(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.generate(t, "2024-01", "emp-1")
	rec := generatedRecord(t, f, "emp-1", "2024-01")

	first, err := f.svc.MarkPaid(context.Background(), rec.ID, testPayment())
	require.NoError(t, err)

	second := testPayment()
	second.PaymentDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	second.PaymentMethod = payroll.PaymentMethodCash
	second.PaymentReference = "OTHER"

	_, err = f.svc.MarkPaid(context.Background(), rec.ID, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrPayrollRecordAlreadyPaid)
	assert.Equal(t, payroll.KindInvalidState, payroll.KindOf(err))

	stored := generatedRecord(t, f, "emp-1", "2024-01")
	assert.Equal(t, first.PaymentDate, stored.PaymentDate)
	assert.Equal(t, payroll.PaymentMethodBankTransfer, *stored.PaymentMethod)
	assert.Equal(t, "TRX-1", *stored.PaymentReference)
}

func TestMarkPaid_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.generate(t, "2024-01", "emp-1")
	rec := generatedRecord(t, f, "emp-1", "2024-01")

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.MarkPaid(context.Background(), rec.ID, testPayment())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, payroll.ErrPayrollRecordAlreadyPaid)
	}
	assert.Equal(t, 1, succeeded)
}

func TestMarkPaid_Validation(t *testing.T) {
	f := newFixture(t)

	info := testPayment()
	info.PaymentDate = time.Time{}
	_, err := f.svc.MarkPaid(context.Background(), "rec-001", info)
	assert.ErrorIs(t, err, payroll.ErrPaymentDateRequired)

	info = testPayment()
	info.PaymentMethod = "crypto"
	_, err = f.svc.MarkPaid(context.Background(), "rec-001", info)
	assert.ErrorIs(t, err, payroll.ErrInvalidPaymentMethod)
}

func TestMarkPaid_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkPaid(context.Background(), "missing", testPayment())
	assert.ErrorIs(t, err, payroll.ErrPayrollRecordNotFound)
	assert.Equal(t, payroll.KindNotFound, payroll.KindOf(err))
}

func TestMarkPaid_NotifierFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.notifier = newChanNotifier(errors.New("smtp down"))
	f.svc.notifier = f.notifier
	f.employees.add("emp-1", "5000")
	f.generate(t, "2024-01", "emp-1")
	rec := generatedRecord(t, f, "emp-1", "2024-01")

	paid, err := f.svc.MarkPaid(context.Background(), rec.ID, testPayment())
	require.NoError(t, err)
	assert.Equal(t, payroll.PayrollStatusPaid, paid.Status)

	waitNotification(t, f.notifier)
	assert.Equal(t, payroll.PayrollStatusPaid, generatedRecord(t, f, "emp-1", "2024-01").Status)
}

func bulkRequest(period string) payroll.BulkMarkPaidRequest {
	return payroll.BulkMarkPaidRequest{
		Period: period,
		Payment: payroll.PaymentRequest{
			PaymentDate:   "2024-02-05",
			PaymentMethod: "bank_transfer",
		},
	}
}

func TestBulkMarkPaid(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.add("emp-2", "6000")
	f.employees.add("emp-3", "7000")
	f.generate(t, "2024-01", "emp-1", "emp-2", "emp-3")
	f.generate(t, "2024-02", "emp-1")

	result, err := f.svc.BulkMarkPaid(context.Background(), bulkRequest("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Empty(t, result.Failures)

	for _, id := range []string{"emp-1", "emp-2", "emp-3"} {
		assert.Equal(t, payroll.PayrollStatusPaid, generatedRecord(t, f, id, "2024-01").Status)
	}
	assert.Equal(t, payroll.PayrollStatusProcessed, generatedRecord(t, f, "emp-1", "2024-02").Status)

	// Nothing left to settle.
	again, err := f.svc.BulkMarkPaid(context.Background(), bulkRequest("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, again.SuccessCount)
	assert.Empty(t, again.Failures)
}

func TestBulkMarkPaid_NotificationsAreBounded(t *testing.T) {
	f := newFixture(t)
	notifier := newGatedNotifier()
	f.svc.notifier = notifier

	const employees = 3 * notifyWorkers
	ids := make([]string, 0, employees)
	for i := range employees {
		id := fmt.Sprintf("emp-%02d", i)
		f.employees.add(id, "5000")
		ids = append(ids, id)
	}
	f.generate(t, "2024-01", ids...)

	result, err := f.svc.BulkMarkPaid(context.Background(), bulkRequest("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, employees, result.SuccessCount)

	// Settlement returned while every send is still held.
	require.Eventually(t, func() bool {
		inFlight, _, _ := notifier.snapshot()
		return inFlight == notifyWorkers
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	inFlight, peak, delivered := notifier.snapshot()
	assert.Equal(t, notifyWorkers, inFlight)
	assert.Equal(t, notifyWorkers, peak)
	assert.Zero(t, delivered)

	close(notifier.release)
	require.Eventually(t, func() bool {
		_, _, delivered := notifier.snapshot()
		return delivered == employees
	}, 2*time.Second, 5*time.Millisecond)

	_, peak, _ = notifier.snapshot()
	assert.LessOrEqual(t, peak, notifyWorkers)
}

func TestBulkMarkPaid_ConcurrentSettlementReported(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.add("emp-2", "6000")
	f.employees.add("emp-3", "7000")
	f.generate(t, "2024-01", "emp-1", "emp-2", "emp-3")
	raced := generatedRecord(t, f, "emp-2", "2024-01")

	f.payrolls.beforeMarkPaid = func(id string) {
		if id == raced.ID {
			f.payrolls.settle(id)
		}
	}

	result, err := f.svc.BulkMarkPaid(context.Background(), bulkRequest("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, raced.ID, result.Failures[0].RecordID)
	assert.Equal(t, payroll.KindConflict, result.Failures[0].Kind)

	// The concurrent settlement is kept as it was.
	stored := generatedRecord(t, f, "emp-2", "2024-01")
	assert.Equal(t, payroll.PaymentMethodCash, *stored.PaymentMethod)
}

func TestBulkMarkPaid_EmployeeFilter(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.add("emp-2", "6000")
	f.generate(t, "2024-01", "emp-1", "emp-2")

	req := bulkRequest("2024-01")
	req.EmployeeIDs = []string{"emp-2"}
	result, err := f.svc.BulkMarkPaid(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	assert.Equal(t, payroll.PayrollStatusProcessed, generatedRecord(t, f, "emp-1", "2024-01").Status)
	assert.Equal(t, payroll.PayrollStatusPaid, generatedRecord(t, f, "emp-2", "2024-01").Status)
}

func TestBulkMarkPaid_ExplicitRecordIDs(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.add("emp-2", "6000")
	f.employees.add("emp-3", "7000")
	f.generate(t, "2024-01", "emp-1", "emp-2", "emp-3")
	f.generate(t, "2024-02", "emp-1")
	rec1 := generatedRecord(t, f, "emp-1", "2024-01")
	rec2 := generatedRecord(t, f, "emp-2", "2024-01")
	feb := generatedRecord(t, f, "emp-1", "2024-02")

	_, err := f.svc.MarkPaid(context.Background(), rec2.ID, testPayment())
	require.NoError(t, err)

	req := bulkRequest("2024-01")
	req.RecordIDs = []string{rec1.ID, rec2.ID, "missing", feb.ID}
	result, err := f.svc.BulkMarkPaid(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	kinds := map[string]payroll.ErrorKind{}
	for _, fail := range result.Failures {
		kinds[fail.RecordID] = fail.Kind
	}
	assert.Equal(t, map[string]payroll.ErrorKind{
		rec2.ID:   payroll.KindInvalidState,
		"missing": payroll.KindNotFound,
		feb.ID:    payroll.KindNotFound,
	}, kinds)
	assert.Equal(t, payroll.PayrollStatusProcessed, generatedRecord(t, f, "emp-3", "2024-01").Status)
	assert.Equal(t, payroll.PayrollStatusProcessed, generatedRecord(t, f, "emp-1", "2024-02").Status)
}

func TestBulkMarkPaid_Validation(t *testing.T) {
	f := newFixture(t)

	req := bulkRequest("2024-1")
	req.Payment.PaymentMethod = ""
	_, err := f.svc.BulkMarkPaid(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, payroll.KindValidation, payroll.KindOf(err))
}

func TestBulkMarkPaid_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.employees.add("emp-1", "5000")
	f.employees.add("emp-2", "6000")
	f.generate(t, "2024-01", "emp-1", "emp-2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.BulkMarkPaid(ctx, bulkRequest("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Len(t, result.Failures, 2)
	assert.Equal(t, payroll.PayrollStatusProcessed, generatedRecord(t, f, "emp-1", "2024-01").Status)
}
