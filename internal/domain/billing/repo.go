package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordRepository persists billing records and their line items.
type RecordRepository interface {
	// Create inserts rec and every item in rec.Items.
	Create(ctx context.Context, rec *BillingRecord) error
	// GetByID returns the record with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*BillingRecord, error)
	// GetForUpdate returns the record without items and holds a row lock
	// until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*BillingRecord, error)
	Update(ctx context.Context, rec *BillingRecord) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*BillingRecord, int, error)
	// BalanceTotals sums patient_responsibility over the patient's
	// non-cancelled records, split into unpaid and paid.
	BalanceTotals(ctx context.Context, patientID uuid.UUID) (due, paid decimal.Decimal, err error)
}

// PaymentRepository is append-only.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	SumByBilling(ctx context.Context, billingID uuid.UUID) (decimal.Decimal, error)
	ListByBilling(ctx context.Context, billingID uuid.UUID) ([]*Payment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Payment, int, error)
}
