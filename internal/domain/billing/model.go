package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
)

type BillingStatus string

const (
	StatusPending   BillingStatus = "pending"
	StatusFinalized BillingStatus = "finalized"
	StatusPaid      BillingStatus = "paid"
	StatusCancelled BillingStatus = "cancelled"
)

func ParseBillingStatus(s string) (BillingStatus, error) {
	switch st := BillingStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusFinalized, StatusPaid, StatusCancelled:
		return st, nil
	}
	return "", apperr.Invalid("invalid billing status %q", s)
}

func (s *BillingStatus) UnmarshalText(b []byte) error {
	st, err := ParseBillingStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// PaymentStatusCompleted is the status of every payment this service
// records; the other values in the payments table are reserved for
// gateway-driven flows.
const PaymentStatusCompleted = "completed"

// BillingRecord maps to the billing_records table. Once IsFinalized is set
// the record accepts no further payments or status changes.
type BillingRecord struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	PatientID             uuid.UUID       `db:"patient_id" json:"patient_id"`
	TotalAmount           decimal.Decimal `db:"total_amount" json:"total_amount"`
	InsuranceCoverage     decimal.Decimal `db:"insurance_coverage" json:"insurance_coverage"`
	PatientResponsibility decimal.Decimal `db:"patient_responsibility" json:"patient_responsibility"`
	Status                BillingStatus   `db:"status" json:"status"`
	IsFinalized           bool            `db:"is_finalized" json:"is_finalized"`
	Items                 []*BillingItem  `json:"items,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// BillingItem maps to the billing_items table.
type BillingItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BillingID   uuid.UUID       `db:"billing_id" json:"billing_id"`
	ServiceType string          `db:"service_type" json:"service_type"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ItemInput is a line item as submitted. TotalPrice defaults to
// Quantity × UnitPrice.
type ItemInput struct {
	ServiceType string           `json:"service_type"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TotalPrice  *decimal.Decimal `json:"total_price"`
}

type CreateBillingRequest struct {
	PatientID uuid.UUID   `json:"patient_id"`
	Items     []ItemInput `json:"items"`
}

// Payment maps to the payments table. Payments are never updated.
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	BillingID     uuid.UUID       `db:"billing_id" json:"billing_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type PaymentRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod string           `json:"payment_method"`
}

// Balance aggregates a patient's non-cancelled records by status.
type Balance struct {
	PatientID uuid.UUID       `json:"patient_id"`
	TotalDue  decimal.Decimal `json:"total_due"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Balance   decimal.Decimal `json:"balance"`
}
