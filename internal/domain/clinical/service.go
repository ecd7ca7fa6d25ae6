// Package clinical keeps each patient's medical record: diagnoses,
// treatments and clinical notes, with a version history of every change.
package clinical

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "clinical"

const maxCodeLen = 50

type Service struct {
	tx      db.Transactor
	records RecordRepository
	entries EntryRepository
	pub     events.Publisher
	logger  zerolog.Logger
}

func NewService(tx db.Transactor, records RecordRepository, entries EntryRepository, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:      tx,
		records: records,
		entries: entries,
		pub:     pub,
		logger:  logger.With().Str("engine", engine).Logger(),
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

func actor(ctx context.Context) string {
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		return uid
	}
	return "system"
}

// CreateRecord opens the patient's medical record at version 1. A second
// record for the same patient is a duplicate.
func (s *Service) CreateRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	rec := &MedicalRecord{PatientID: patientID, CreatedBy: actor(ctx), Version: 1}
	err := func() error {
		if patientID == uuid.Nil {
			return apperr.MissingField("patient_id")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.records.Create(ctx, rec); err != nil {
				return err
			}
			return s.records.AppendVersion(ctx, &RecordVersion{
				RecordID:  rec.ID,
				Version:   rec.Version,
				Change:    ChangeCreated,
				ChangedBy: rec.CreatedBy,
			})
		})
	}()
	if err := s.done("create_record", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", rec.ID.String()).Str("patient_id", patientID.String()).Msg("medical record created")
	events.Emit(ctx, s.pub, s.logger, events.New("medical_record.created", engine, rec.ID.String(), map[string]any{
		"patient_id": patientID.String(),
	}))
	return rec, nil
}

// GetRecord returns the patient's record with its diagnoses, treatments and
// notes in the order they were added.
func (s *Service) GetRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	rec, err := func() (*MedicalRecord, error) {
		rec, err := s.records.GetByPatient(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if rec.Diagnoses, err = s.entries.ListDiagnoses(ctx, rec.ID); err != nil {
			return nil, err
		}
		if rec.Treatments, err = s.entries.ListTreatments(ctx, rec.ID); err != nil {
			return nil, err
		}
		if rec.Notes, err = s.entries.ListNotes(ctx, rec.ID); err != nil {
			return nil, err
		}
		return rec, nil
	}()
	if err := s.done("get_record", err); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordHistory lists the record's versions newest first.
func (s *Service) RecordHistory(ctx context.Context, patientID uuid.UUID) ([]*RecordVersion, error) {
	var versions []*RecordVersion
	rec, err := s.records.GetByPatient(ctx, patientID)
	if err == nil {
		versions, err = s.records.ListVersions(ctx, rec.ID)
	}
	if err := s.done("history", err); err != nil {
		return nil, err
	}
	return versions, nil
}

// addEntry locks the record, bumps its version, inserts the entry stamped
// with the new version and appends the matching history row.
func (s *Service) addEntry(ctx context.Context, patientID uuid.UUID, change Change, insert func(ctx context.Context, rec *MedicalRecord, by string) (uuid.UUID, error)) (*MedicalRecord, error) {
	var rec *MedicalRecord
	by := actor(ctx)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.records.GetByPatientForUpdate(ctx, patientID); err != nil {
			return err
		}
		rec.Version++
		entryID, err := insert(ctx, rec, by)
		if err != nil {
			return err
		}
		if err := s.records.SetVersion(ctx, rec); err != nil {
			return err
		}
		return s.records.AppendVersion(ctx, &RecordVersion{
			RecordID:  rec.ID,
			Version:   rec.Version,
			Change:    change,
			EntryID:   &entryID,
			ChangedBy: by,
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) entryAdded(ctx context.Context, change Change, rec *MedicalRecord, entryID uuid.UUID) {
	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("entry_id", entryID.String()).
		Int("version", rec.Version).
		Msg("medical record " + strings.ReplaceAll(string(change), "_", " "))
	events.Emit(ctx, s.pub, s.logger, events.New("medical_record."+string(change), engine, rec.ID.String(), map[string]any{
		"patient_id": rec.PatientID.String(),
		"entry_id":   entryID.String(),
		"version":    rec.Version,
	}))
}

func (s *Service) AddDiagnosis(ctx context.Context, patientID uuid.UUID, req DiagnosisRequest) (*Diagnosis, error) {
	d := &Diagnosis{Code: strings.TrimSpace(req.Code), Description: strings.TrimSpace(req.Description)}
	var rec *MedicalRecord
	err := func() error {
		switch {
		case d.Code == "":
			return apperr.MissingField("diagnosis_code")
		case d.Description == "":
			return apperr.MissingField("description")
		case utf8.RuneCountInString(d.Code) > maxCodeLen:
			return apperr.Invalid("diagnosis_code must be at most %d characters", maxCodeLen)
		}
		var err error
		rec, err = s.addEntry(ctx, patientID, ChangeDiagnosisAdded, func(ctx context.Context, rec *MedicalRecord, by string) (uuid.UUID, error) {
			d.RecordID, d.RecordedBy, d.RecordVersion = rec.ID, by, rec.Version
			if err := s.entries.AddDiagnosis(ctx, d); err != nil {
				return uuid.Nil, err
			}
			return d.ID, nil
		})
		return err
	}()
	if err := s.done("add_diagnosis", err); err != nil {
		return nil, err
	}
	s.entryAdded(ctx, ChangeDiagnosisAdded, rec, d.ID)
	return d, nil
}

func (s *Service) AddTreatment(ctx context.Context, patientID uuid.UUID, req TreatmentRequest) (*Treatment, error) {
	t := &Treatment{Type: strings.TrimSpace(req.Type), Description: strings.TrimSpace(req.Description), EndedAt: req.EndedAt}
	var rec *MedicalRecord
	err := func() error {
		switch {
		case t.Type == "":
			return apperr.MissingField("treatment_type")
		case t.Description == "":
			return apperr.MissingField("description")
		case req.StartedAt == nil || req.StartedAt.IsZero():
			return apperr.MissingField("date_started")
		case req.EndedAt != nil && req.EndedAt.Before(*req.StartedAt):
			return apperr.Invalid("date_ended must not be before date_started")
		}
		t.StartedAt = *req.StartedAt
		var err error
		rec, err = s.addEntry(ctx, patientID, ChangeTreatmentAdded, func(ctx context.Context, rec *MedicalRecord, by string) (uuid.UUID, error) {
			t.RecordID, t.RecordedBy, t.RecordVersion = rec.ID, by, rec.Version
			if err := s.entries.AddTreatment(ctx, t); err != nil {
				return uuid.Nil, err
			}
			return t.ID, nil
		})
		return err
	}()
	if err := s.done("add_treatment", err); err != nil {
		return nil, err
	}
	s.entryAdded(ctx, ChangeTreatmentAdded, rec, t.ID)
	return t, nil
}

// AddClinicalNote records a note authored by the calling user.
func (s *Service) AddClinicalNote(ctx context.Context, patientID uuid.UUID, req NoteRequest) (*ClinicalNote, error) {
	n := &ClinicalNote{Text: strings.TrimSpace(req.Text)}
	var rec *MedicalRecord
	err := func() error {
		if n.Text == "" {
			return apperr.MissingField("note_text")
		}
		var err error
		rec, err = s.addEntry(ctx, patientID, ChangeNoteAdded, func(ctx context.Context, rec *MedicalRecord, by string) (uuid.UUID, error) {
			n.RecordID, n.CreatedBy, n.RecordVersion = rec.ID, by, rec.Version
			if err := s.entries.AddNote(ctx, n); err != nil {
				return uuid.Nil, err
			}
			return n.ID, nil
		})
		return err
	}()
	if err := s.done("add_note", err); err != nil {
		return nil, err
	}
	s.entryAdded(ctx, ChangeNoteAdded, rec, n.ID)
	return n, nil
}
