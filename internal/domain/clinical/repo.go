package clinical

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, rec *MedicalRecord) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error)
	GetByPatientForUpdate(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error)
	SetVersion(ctx context.Context, rec *MedicalRecord) error
	AppendVersion(ctx context.Context, v *RecordVersion) error
	// ListVersions returns a record's versions newest first.
	ListVersions(ctx context.Context, recordID uuid.UUID) ([]*RecordVersion, error)
}

type EntryRepository interface {
	AddDiagnosis(ctx context.Context, d *Diagnosis) error
	AddTreatment(ctx context.Context, t *Treatment) error
	AddNote(ctx context.Context, n *ClinicalNote) error
	ListDiagnoses(ctx context.Context, recordID uuid.UUID) ([]*Diagnosis, error)
	ListTreatments(ctx context.Context, recordID uuid.UUID) ([]*Treatment, error)
	ListNotes(ctx context.Context, recordID uuid.UUID) ([]*ClinicalNote, error)
}
