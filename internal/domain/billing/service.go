// Package billing prices encounters, records payments and reports patient
// balances. All money is shopspring/decimal, stored as NUMERIC(12,2).
package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "billing"

type Service struct {
	tx               db.Transactor
	records          RecordRepository
	payments         PaymentRepository
	allowOverpayment bool
	pub              events.Publisher
	logger           zerolog.Logger
}

// NewService builds the engine. With allowOverpayment false a payment that
// would take the cumulative total past patient_responsibility is rejected.
func NewService(tx db.Transactor, records RecordRepository, payments PaymentRepository, allowOverpayment bool, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:               tx,
		records:          records,
		payments:         payments,
		allowOverpayment: allowOverpayment,
		pub:              pub,
		logger:           logger.With().Str("engine", engine).Logger(),
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

func (s *Service) emit(ctx context.Context, typ string, rec *BillingRecord, extra map[string]any) {
	data := map[string]any{
		"patient_id":             rec.PatientID.String(),
		"total_amount":           rec.TotalAmount.StringFixed(2),
		"patient_responsibility": rec.PatientResponsibility.StringFixed(2),
		"status":                 rec.Status,
	}
	for k, v := range extra {
		data[k] = v
	}
	events.Emit(ctx, s.pub, s.logger, events.New(typ, engine, rec.ID.String(), data))
}

// Quote prices items without storing anything.
func (s *Service) Quote(items []ItemInput) (*Charges, error) {
	c, err := CalculateCharges(items)
	return c, s.done("quote", err)
}

// CreateBillingRecord stores a record priced by CalculateCharges. It starts
// pending, or paid when the patient owes nothing.
func (s *Service) CreateBillingRecord(ctx context.Context, req CreateBillingRequest) (*BillingRecord, error) {
	var rec *BillingRecord
	err := func() error {
		if req.PatientID == uuid.Nil {
			return apperr.MissingField("patient_id")
		}
		c, err := CalculateCharges(req.Items)
		if err != nil {
			return err
		}
		rec = &BillingRecord{
			PatientID:             req.PatientID,
			TotalAmount:           c.TotalAmount,
			InsuranceCoverage:     c.InsuranceCoverage,
			PatientResponsibility: c.PatientResponsibility,
			Status:                StatusPending,
			Items:                 c.Items,
		}
		// No payment can be accepted against a zero responsibility.
		if rec.PatientResponsibility.IsZero() {
			rec.Status = StatusPaid
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			return s.records.Create(ctx, rec)
		})
	}()
	if err := s.done("create", err); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("billing_id", rec.ID.String()).
		Str("patient_id", rec.PatientID.String()).
		Stringer("total_amount", rec.TotalAmount).
		Int("items", len(rec.Items)).
		Msg("billing record created")
	s.emit(ctx, "billing.created", rec, nil)
	return rec, nil
}

// ProcessPayment appends a completed payment. The record is locked for the
// duration so concurrent payments see each other's totals. Once cumulative
// payments cover patient_responsibility a pending record becomes paid.
func (s *Service) ProcessPayment(ctx context.Context, billingID uuid.UUID, req PaymentRequest) (*Payment, *BillingRecord, error) {
	var (
		rec     *BillingRecord
		payment *Payment
		paidSum decimal.Decimal
	)
	err := func() error {
		method := strings.TrimSpace(req.PaymentMethod)
		switch {
		case req.Amount == nil:
			return apperr.MissingField("amount")
		case method == "":
			return apperr.MissingField("payment_method")
		case !req.Amount.IsPositive():
			return apperr.Invalid("amount must be greater than zero")
		}
		amount := req.Amount.Round(2)
		if !amount.IsPositive() {
			return apperr.Invalid("amount must be at least 0.01")
		}

		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if rec, err = s.records.GetForUpdate(ctx, billingID); err != nil {
				return err
			}
			switch {
			case rec.IsFinalized:
				return apperr.New(apperr.KindImmutableState, apperr.CodeFinalizedImmutable,
					"billing record %s is finalized", rec.ID)
			case rec.Status == StatusCancelled:
				return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState,
					"billing record %s is cancelled", rec.ID)
			}

			prior, err := s.payments.SumByBilling(ctx, rec.ID)
			if err != nil {
				return err
			}
			paidSum = prior.Add(amount)
			if !s.allowOverpayment && paidSum.GreaterThan(rec.PatientResponsibility) {
				return apperr.New(apperr.KindValidation, apperr.CodeOverpayment,
					"payment of %s exceeds the outstanding %s", amount.StringFixed(2),
					rec.PatientResponsibility.Sub(prior).StringFixed(2))
			}

			payment = &Payment{BillingID: rec.ID, Amount: amount, PaymentMethod: method, Status: PaymentStatusCompleted}
			if err := s.payments.Create(ctx, payment); err != nil {
				return err
			}
			if rec.Status == StatusPending && paidSum.GreaterThanOrEqual(rec.PatientResponsibility) {
				rec.Status = StatusPaid
				return s.records.Update(ctx, rec)
			}
			return nil
		})
	}()
	if err := s.done("payment", err); err != nil {
		return nil, nil, err
	}
	s.logger.Info().
		Str("billing_id", rec.ID.String()).
		Str("payment_id", payment.ID.String()).
		Stringer("amount", payment.Amount).
		Stringer("paid_total", paidSum).
		Str("status", string(rec.Status)).
		Msg("payment processed")
	s.emit(ctx, "billing.payment_processed", rec, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"paid_total": paidSum.StringFixed(2),
	})
	return payment, rec, nil
}

// FinalizeBillingRecord closes a pending or paid record for good.
func (s *Service) FinalizeBillingRecord(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	return s.transition(ctx, "finalize", id, func(rec *BillingRecord) error {
		if rec.Status == StatusCancelled {
			return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState,
				"billing record %s is cancelled", rec.ID)
		}
		rec.Status = StatusFinalized
		rec.IsFinalized = true
		return nil
	}, "billing.finalized")
}

// CancelBillingRecord voids a pending record.
func (s *Service) CancelBillingRecord(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	return s.transition(ctx, "cancel", id, func(rec *BillingRecord) error {
		if rec.Status != StatusPending {
			return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState,
				"billing record %s is %s", rec.ID, rec.Status)
		}
		rec.Status = StatusCancelled
		return nil
	}, "billing.cancelled")
}

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, apply func(*BillingRecord) error, eventType string) (*BillingRecord, error) {
	var rec *BillingRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.records.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if rec.IsFinalized {
			return apperr.New(apperr.KindImmutableState, apperr.CodeFinalizedImmutable,
				"billing record %s is finalized", rec.ID)
		}
		if err := apply(rec); err != nil {
			return err
		}
		return s.records.Update(ctx, rec)
	})
	if err := s.done(op, err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("billing_id", id.String()).Str("status", string(rec.Status)).Msg("billing record " + string(rec.Status))
	s.emit(ctx, eventType, rec, nil)
	return rec, nil
}

func (s *Service) GetBillingRecord(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListBillingRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*BillingRecord, int, error) {
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// PaymentHistory lists a record's payments oldest first.
func (s *Service) PaymentHistory(ctx context.Context, billingID uuid.UUID) ([]*Payment, error) {
	if _, err := s.records.GetByID(ctx, billingID); err != nil {
		return nil, err
	}
	return s.payments.ListByBilling(ctx, billingID)
}

func (s *Service) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return s.payments.ListByPatient(ctx, patientID, limit, offset)
}

// GetPatientBalance reports what the patient still owes. Cancelled records
// are ignored; a record counts as paid only while its status is paid, so a
// paid record that is later finalized moves back into total_due.
func (s *Service) GetPatientBalance(ctx context.Context, patientID uuid.UUID) (*Balance, error) {
	due, paid, err := s.records.BalanceTotals(ctx, patientID)
	if err := s.done("balance", err); err != nil {
		return nil, err
	}
	return &Balance{PatientID: patientID, TotalDue: due, TotalPaid: paid, Balance: due}, nil
}
