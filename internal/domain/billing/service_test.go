package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db/dbtest"
)

// -- Mock Repositories --

type mockRecordRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*BillingRecord
	items   map[uuid.UUID][]*BillingItem
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{
		records: make(map[uuid.UUID]*BillingRecord),
		items:   make(map[uuid.UUID][]*BillingItem),
	}
}

func (m *mockRecordRepo) Create(_ context.Context, rec *BillingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	for _, it := range rec.Items {
		it.ID = uuid.New()
		it.BillingID = rec.ID
		it.CreatedAt = rec.CreatedAt
	}
	cp := *rec
	cp.Items = nil
	m.records[rec.ID] = &cp
	m.items[rec.ID] = append([]*BillingItem(nil), rec.Items...)
	return nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	rec, err := m.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	rec.Items = m.items[id]
	m.mu.Unlock()
	return rec, nil
}

func (m *mockRecordRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("billing record", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRecordRepo) Update(_ context.Context, rec *BillingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return apperr.NotFound("billing record", rec.ID)
	}
	rec.UpdatedAt = time.Now()
	cp := *rec
	cp.Items = nil
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*BillingRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*BillingRecord
	for _, rec := range m.records {
		if rec.PatientID == patientID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := len(result)
	if offset < len(result) {
		result = result[offset:]
	} else {
		result = nil
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

func (m *mockRecordRepo) BalanceTotals(_ context.Context, patientID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due, paid := decimal.Zero, decimal.Zero
	for _, rec := range m.records {
		switch {
		case rec.PatientID != patientID || rec.Status == StatusCancelled:
		case rec.Status == StatusPaid:
			paid = paid.Add(rec.PatientResponsibility)
		default:
			due = due.Add(rec.PatientResponsibility)
		}
	}
	return due, paid, nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments []*Payment
	records  *mockRecordRepo
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *mockPaymentRepo) SumByBilling(_ context.Context, billingID uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.BillingID == billingID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (m *mockPaymentRepo) ListByBilling(_ context.Context, billingID uuid.UUID) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Payment
	for _, p := range m.payments {
		if p.BillingID == billingID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockPaymentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Payment
	for _, p := range m.payments {
		rec, err := m.records.GetForUpdate(ctx, p.BillingID)
		if err == nil && rec.PatientID == patientID {
			cp := *p
			result = append(result, &cp)
		}
	}
	total := len(result)
	if offset < len(result) {
		result = result[offset:]
	} else {
		result = nil
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

// -- Helpers --

var patientID = uuid.MustParse("4f3c2b1a-0000-4000-8000-00000000b111")

func newTestService(allowOverpayment bool) (*Service, *mockRecordRepo, *mockPaymentRepo) {
	records := newMockRecordRepo()
	payments := &mockPaymentRepo{records: records}
	svc := NewService(&dbtest.Transactor{}, records, payments, allowOverpayment, nil, zerolog.Nop())
	return svc, records, payments
}

// newBill creates a record whose patient_responsibility is 20% of total.
func newBill(t *testing.T, svc *Service, total string) *BillingRecord {
	t.Helper()
	rec, err := svc.CreateBillingRecord(context.Background(), CreateBillingRequest{
		PatientID: patientID,
		Items:     []ItemInput{item("consultation", "1", total)},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	return rec
}

func pay(svc *Service, id uuid.UUID, amount string) (*Payment, *BillingRecord, error) {
	return svc.ProcessPayment(context.Background(), id, PaymentRequest{Amount: dec(amount), PaymentMethod: "card"})
}

// -- Tests --

func TestCreateBillingRecord(t *testing.T) {
	svc, records, _ := newTestService(false)
	rec, err := svc.CreateBillingRecord(context.Background(), CreateBillingRequest{
		PatientID: patientID,
		Items: []ItemInput{
			item("consultation", "1", "120.00"),
			item("x-ray", "2", "40.00"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusPending || rec.IsFinalized {
		t.Errorf("expected pending, got %s finalized=%v", rec.Status, rec.IsFinalized)
	}
	if rec.TotalAmount.String() != "200" || rec.InsuranceCoverage.String() != "160" || rec.PatientResponsibility.String() != "40" {
		t.Errorf("unexpected split: %s / %s / %s", rec.TotalAmount, rec.InsuranceCoverage, rec.PatientResponsibility)
	}

	quoted, _ := CalculateCharges([]ItemInput{item("consultation", "1", "120.00"), item("x-ray", "2", "40.00")})
	if !quoted.PatientResponsibility.Equal(rec.PatientResponsibility) {
		t.Error("stored split differs from quote")
	}

	stored, _ := records.GetByID(context.Background(), rec.ID)
	if len(stored.Items) != 2 || stored.Items[0].BillingID != rec.ID {
		t.Errorf("expected 2 items linked to record, got %+v", stored.Items)
	}
}

func TestCreateBillingRecord_NothingOwedStartsPaid(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "0")
	if rec.Status != StatusPaid || rec.IsFinalized {
		t.Fatalf("expected paid and open, got %s finalized=%v", rec.Status, rec.IsFinalized)
	}
	if _, _, err := pay(svc, rec.ID, "0.01"); !errors.Is(err, apperr.ErrOverpayment) {
		t.Errorf("expected overpayment, got %v", err)
	}
	fin, err := svc.FinalizeBillingRecord(context.Background(), rec.ID)
	if err != nil || fin.Status != StatusFinalized {
		t.Errorf("expected finalize from paid, got %v %v", fin, err)
	}
}

func TestCreateBillingRecord_Rejections(t *testing.T) {
	svc, records, _ := newTestService(false)
	tests := []struct {
		name string
		req  CreateBillingRequest
		want error
	}{
		{"empty", CreateBillingRequest{PatientID: patientID}, apperr.ErrEmptyBill},
		{"no patient", CreateBillingRequest{Items: []ItemInput{item("x", "1", "1")}}, apperr.ErrMissingField},
		{"negative price", CreateBillingRequest{PatientID: patientID, Items: []ItemInput{item("x", "1", "-1")}}, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBillingRecord(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(records.records) != 0 {
		t.Errorf("expected nothing stored, got %d", len(records.records))
	}
}

func TestProcessPayment_PartialThenFull(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "500.00") // responsibility 100.00

	_, after, err := pay(svc, rec.ID, "40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPending {
		t.Errorf("partial payment should leave pending, got %s", after.Status)
	}

	p, after, err := pay(svc, rec.ID, "60.00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPaid {
		t.Errorf("expected paid, got %s", after.Status)
	}
	if p.Status != PaymentStatusCompleted || p.PaymentMethod != "card" {
		t.Errorf("unexpected payment: %+v", p)
	}
}

func TestProcessPayment_Overpayment(t *testing.T) {
	svc, _, payments := newTestService(false)
	rec := newBill(t, svc, "100.00") // responsibility 20.00

	if _, _, err := pay(svc, rec.ID, "15"); err != nil {
		t.Fatal(err)
	}
	_, _, err := pay(svc, rec.ID, "5.01")
	if !errors.Is(err, apperr.ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	if len(payments.payments) != 1 {
		t.Errorf("rejected payment must not be stored, have %d", len(payments.payments))
	}
}

func TestProcessPayment_OverpaymentAllowed(t *testing.T) {
	svc, _, _ := newTestService(true)
	rec := newBill(t, svc, "100.00")

	_, after, err := pay(svc, rec.ID, "50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPaid {
		t.Errorf("expected paid, got %s", after.Status)
	}
	// Paid records keep accepting payments until finalized.
	if _, after, err = pay(svc, rec.ID, "1"); err != nil || after.Status != StatusPaid {
		t.Errorf("expected accepted payment on paid record, got %v %v", after, err)
	}
}

func TestProcessPayment_Validation(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"no amount", PaymentRequest{PaymentMethod: "cash"}, apperr.ErrMissingField},
		{"no method", PaymentRequest{Amount: dec("1")}, apperr.ErrMissingField},
		{"zero", PaymentRequest{Amount: dec("0"), PaymentMethod: "cash"}, apperr.ErrValidation},
		{"negative", PaymentRequest{Amount: dec("-3"), PaymentMethod: "cash"}, apperr.ErrValidation},
		{"sub-cent", PaymentRequest{Amount: dec("0.004"), PaymentMethod: "cash"}, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.ProcessPayment(context.Background(), rec.ID, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestProcessPayment_NotFound(t *testing.T) {
	svc, _, _ := newTestService(false)
	_, _, err := pay(svc, uuid.New(), "1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProcessPayment_FinalizedRejected(t *testing.T) {
	svc, _, payments := newTestService(false)
	rec := newBill(t, svc, "100.00")
	if _, err := svc.FinalizeBillingRecord(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}

	_, _, err := pay(svc, rec.ID, "1")
	if !errors.Is(err, apperr.ErrFinalizedImmutable) {
		t.Errorf("expected finalized immutable, got %v", err)
	}
	if len(payments.payments) != 0 {
		t.Error("payment stored against finalized record")
	}
}

func TestProcessPayment_CancelledRejected(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")
	svc.CancelBillingRecord(context.Background(), rec.ID)

	_, _, err := pay(svc, rec.ID, "1")
	if !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("expected terminal state, got %v", err)
	}
}

func TestFinalizeBillingRecord(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")

	got, err := svc.FinalizeBillingRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFinalized || !got.IsFinalized {
		t.Errorf("expected finalized, got %+v", got)
	}

	if _, err := svc.FinalizeBillingRecord(context.Background(), rec.ID); !errors.Is(err, apperr.ErrFinalizedImmutable) {
		t.Errorf("second finalize: expected finalized immutable, got %v", err)
	}
	if _, err := svc.CancelBillingRecord(context.Background(), rec.ID); !errors.Is(err, apperr.ErrFinalizedImmutable) {
		t.Errorf("cancel after finalize: expected finalized immutable, got %v", err)
	}
}

func TestFinalizeBillingRecord_FromPaid(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")
	pay(svc, rec.ID, "20")

	got, err := svc.FinalizeBillingRecord(context.Background(), rec.ID)
	if err != nil || got.Status != StatusFinalized {
		t.Errorf("expected finalized, got %v %v", got, err)
	}
}

func TestCancelBillingRecord(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")

	got, err := svc.CancelBillingRecord(context.Background(), rec.ID)
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %v %v", got, err)
	}
	if _, err := svc.CancelBillingRecord(context.Background(), rec.ID); !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("expected terminal state, got %v", err)
	}
	if _, err := svc.FinalizeBillingRecord(context.Background(), rec.ID); !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("finalize cancelled: expected terminal state, got %v", err)
	}

	paid := newBill(t, svc, "100.00")
	pay(svc, paid.ID, "20")
	if _, err := svc.CancelBillingRecord(context.Background(), paid.ID); !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("cancel paid: expected terminal state, got %v", err)
	}
}

func TestGetPatientBalance(t *testing.T) {
	svc, _, _ := newTestService(false)
	open := newBill(t, svc, "100.00")      // 20 due
	settled := newBill(t, svc, "250.00")   // 50, paid below
	cancelled := newBill(t, svc, "999.00") // ignored
	pay(svc, settled.ID, "50")
	svc.CancelBillingRecord(context.Background(), cancelled.ID)
	pay(svc, open.ID, "5")

	b, err := svc.GetPatientBalance(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.TotalDue.String() != "20" || b.TotalPaid.String() != "50" || !b.Balance.Equal(b.TotalDue) {
		t.Errorf("unexpected balance: %+v", b)
	}

	other, _ := svc.GetPatientBalance(context.Background(), uuid.New())
	if !other.TotalDue.IsZero() || !other.TotalPaid.IsZero() {
		t.Errorf("expected zero balance, got %+v", other)
	}
}

func TestGetPatientBalance_FinalizedAfterPaidCountsAsDue(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")
	pay(svc, rec.ID, "20")
	svc.FinalizeBillingRecord(context.Background(), rec.ID)

	b, _ := svc.GetPatientBalance(context.Background(), patientID)
	if b.TotalDue.String() != "20" || !b.TotalPaid.IsZero() {
		t.Errorf("unexpected balance: %+v", b)
	}
}

func TestPaymentHistory(t *testing.T) {
	svc, _, _ := newTestService(false)
	rec := newBill(t, svc, "100.00")
	pay(svc, rec.ID, "5")
	pay(svc, rec.ID, "7.5")

	history, err := svc.PaymentHistory(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[1].Amount.String() != "7.5" {
		t.Errorf("unexpected history: %+v", history)
	}

	if _, err := svc.PaymentHistory(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	byPatient, total, _ := svc.ListPaymentsByPatient(context.Background(), patientID, 10, 0)
	if total != 2 || len(byPatient) != 2 {
		t.Errorf("expected 2 patient payments, got %d", total)
	}
}

func TestListBillingRecordsByPatient(t *testing.T) {
	svc, _, _ := newTestService(false)
	newBill(t, svc, "10")
	newBill(t, svc, "20")
	newBill(t, svc, "30")

	items, total, err := svc.ListBillingRecordsByPatient(context.Background(), patientID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(items), total)
	}
}

func TestParseBillingStatus(t *testing.T) {
	if st, err := ParseBillingStatus(" Paid "); err != nil || st != StatusPaid {
		t.Errorf("got %q %v", st, err)
	}
	if _, err := ParseBillingStatus("refunded"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
