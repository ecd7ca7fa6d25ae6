package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "identity"

type Service struct {
	tx       db.Transactor
	patients PatientRepository
	audit    AuditRepository
	pub      events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(tx db.Transactor, patients PatientRepository, audit AuditRepository, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:       tx,
		patients: patients,
		audit:    audit,
		pub:      pub,
		logger:   logger.With().Str("engine", engine).Logger(),
		now:      time.Now,
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

func (s *Service) appendAudit(ctx context.Context, patientID uuid.UUID, action string) error {
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	return s.audit.Append(ctx, &AuditLog{ActorID: actor, PatientID: patientID, Action: action})
}

func (s *Service) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*Patient, error) {
	p, err := s.registerPatient(ctx, req)
	if err := s.done("register_patient", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	events.Emit(ctx, s.pub, s.logger, events.New("patient.registered", engine, p.ID.String(), nil))
	return p, nil
}

func (s *Service) registerPatient(ctx context.Context, req RegisterPatientRequest) (*Patient, error) {
	p := &Patient{
		Name:        strings.TrimSpace(req.Name),
		ContactInfo: strings.TrimSpace(req.ContactInfo),
		InsuranceID: strings.TrimSpace(req.InsuranceID),
		Status:      PatientActive,
	}
	switch {
	case p.Name == "":
		return nil, apperr.MissingField("name")
	case req.DateOfBirth == nil || req.DateOfBirth.IsZero():
		return nil, apperr.MissingField("date_of_birth")
	case p.ContactInfo == "":
		return nil, apperr.MissingField("contact_info")
	case p.InsuranceID == "":
		return nil, apperr.MissingField("insurance_id")
	}
	p.DateOfBirth = *req.DateOfBirth
	if p.DateOfBirth.After(db.Today(s.now())) {
		return nil, apperr.Invalid("date_of_birth %s is in the future", p.DateOfBirth)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		return s.appendAudit(ctx, p.ID, ActionRegistered)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	f.Name = strings.TrimSpace(f.Name)
	return s.patients.List(ctx, f, limit, offset)
}

// UpdatePatient applies u and records who made the change. Archived patients
// are read-only.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, u PatientUpdate) (*Patient, error) {
	var p *Patient
	err := func() error {
		if u.empty() {
			return apperr.Invalid("no fields to update")
		}
		if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
			return apperr.MissingField("name")
		}
		if u.ContactInfo != nil && strings.TrimSpace(*u.ContactInfo) == "" {
			return apperr.MissingField("contact_info")
		}
		if u.InsuranceID != nil && strings.TrimSpace(*u.InsuranceID) == "" {
			return apperr.MissingField("insurance_id")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			p, err = s.patients.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if p.Status == PatientArchived {
				return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState, "patient %s is archived", id)
			}
			if u.Name != nil {
				p.Name = strings.TrimSpace(*u.Name)
			}
			if u.ContactInfo != nil {
				p.ContactInfo = strings.TrimSpace(*u.ContactInfo)
			}
			if u.InsuranceID != nil {
				p.InsuranceID = strings.TrimSpace(*u.InsuranceID)
			}
			if err := s.patients.Update(ctx, p); err != nil {
				return err
			}
			return s.appendAudit(ctx, p.ID, ActionUpdated)
		})
	}()
	if err := s.done("update_patient", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient updated")
	events.Emit(ctx, s.pub, s.logger, events.New("patient.updated", engine, id.String(), nil))
	return p, nil
}

func (s *Service) DeactivatePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.setStatus(ctx, "deactivate_patient", id, PatientInactive, ActionDeactivated)
}

func (s *Service) ReactivatePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.setStatus(ctx, "reactivate_patient", id, PatientActive, ActionReactivated)
}

func (s *Service) ArchivePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.setStatus(ctx, "archive_patient", id, PatientArchived, ActionArchived)
}

func (s *Service) setStatus(ctx context.Context, op string, id uuid.UUID, to PatientStatus, action string) (*Patient, error) {
	var p *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == PatientArchived {
			return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState, "patient %s is archived", id)
		}
		if p.Status == to {
			return nil
		}
		p.Status = to
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		return s.appendAudit(ctx, p.ID, action)
	})
	if err := s.done(op, err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", id.String()).Str("status", string(to)).Msg("patient status changed")
	events.Emit(ctx, s.pub, s.logger, events.New("patient.status_changed", engine, id.String(),
		map[string]any{"status": to}))
	return p, nil
}

func (s *Service) PatientAuditHistory(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.audit.ListByPatient(ctx, patientID, limit, offset)
}
