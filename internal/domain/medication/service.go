// Package medication manages prescriptions written against inventory
// medications.
package medication

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/domain/inventory"
	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "prescriptions"

// MedicationValidator confirms a medication exists in inventory.
// *inventory.Service satisfies it.
type MedicationValidator interface {
	ValidateMedication(ctx context.Context, medicationID uuid.UUID) (*inventory.Item, error)
}

type Service struct {
	tx            db.Transactor
	prescriptions PrescriptionRepository
	medications   MedicationValidator
	pub           events.Publisher
	logger        zerolog.Logger
}

func NewService(tx db.Transactor, prescriptions PrescriptionRepository, medications MedicationValidator, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:            tx,
		prescriptions: prescriptions,
		medications:   medications,
		pub:           pub,
		logger:        logger.With().Str("engine", engine).Logger(),
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

// CreatePrescription validates the medication and inserts the prescription
// in one transaction, so a medication cannot vanish between the check and
// the insert.
func (s *Service) CreatePrescription(ctx context.Context, req CreatePrescriptionRequest) (*Prescription, error) {
	p := &Prescription{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		MedicationID: req.MedicationID,
		Dosage:       strings.TrimSpace(req.Dosage),
		Frequency:    strings.TrimSpace(req.Frequency),
		Duration:     strings.TrimSpace(req.Duration),
		Status:       StatusActive,
	}
	var medName string
	err := func() error {
		switch {
		case p.PatientID == uuid.Nil:
			return apperr.MissingField("patient_id")
		case p.DoctorID == uuid.Nil:
			return apperr.MissingField("doctor_id")
		case p.MedicationID == uuid.Nil:
			return apperr.MissingField("medication_id")
		case p.Dosage == "":
			return apperr.MissingField("dosage")
		case p.Frequency == "":
			return apperr.MissingField("frequency")
		case p.Duration == "":
			return apperr.MissingField("duration")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			med, err := s.medications.ValidateMedication(ctx, p.MedicationID)
			if err != nil {
				return err
			}
			medName = med.Name
			return s.prescriptions.Create(ctx, p)
		})
	}()
	if err := s.done("create", err); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("patient_id", p.PatientID.String()).
		Str("medication", medName).
		Msg("prescription created")
	events.Emit(ctx, s.pub, s.logger, events.New("prescription.created", engine, p.ID.String(), map[string]any{
		"patient_id":    p.PatientID.String(),
		"doctor_id":     p.DoctorID.String(),
		"medication_id": p.MedicationID.String(),
	}))
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, status *PrescriptionStatus, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, status, limit, offset)
}

// UpdatePrescriptionStatus moves a prescription forward. Cancelled and
// expired are final, and nothing returns to active.
func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id uuid.UUID, to PrescriptionStatus) (*Prescription, error) {
	var (
		p    *Prescription
		from PrescriptionStatus
	)
	err := func() error {
		if _, err := ParsePrescriptionStatus(string(to)); err != nil {
			return err
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
				return err
			}
			from = p.Status
			switch {
			case from == to:
				return nil
			case from.Terminal():
				return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState, "prescription %s is %s", id, from)
			case to == StatusActive:
				return apperr.Invalid("prescription %s cannot return to active", id)
			}
			p.Status = to
			return s.prescriptions.UpdateStatus(ctx, p)
		})
	}()
	if err := s.done("update_status", err); err != nil {
		return nil, err
	}
	if from != to {
		s.logger.Info().Str("prescription_id", id.String()).Str("from", string(from)).Str("to", string(to)).Msg("prescription status changed")
		events.Emit(ctx, s.pub, s.logger, events.New("prescription.status_changed", engine, id.String(), map[string]any{
			"from": from,
			"to":   to,
		}))
	}
	return p, nil
}
