package clinical

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord maps to the medical_records table. A patient has at most one
// record; Version counts every change made to it, starting at 1.
type MedicalRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Diagnoses  []*Diagnosis    `db:"-" json:"diagnoses,omitempty"`
	Treatments []*Treatment    `db:"-" json:"treatments,omitempty"`
	Notes      []*ClinicalNote `db:"-" json:"notes,omitempty"`
}

// Diagnosis codes are stored as given. No code system is enforced.
type Diagnosis struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RecordID      uuid.UUID `db:"record_id" json:"record_id"`
	Code          string    `db:"diagnosis_code" json:"diagnosis_code"`
	Description   string    `db:"description" json:"description"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	RecordVersion int       `db:"record_version" json:"record_version"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}

type Treatment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RecordID      uuid.UUID  `db:"record_id" json:"record_id"`
	Type          string     `db:"treatment_type" json:"treatment_type"`
	Description   string     `db:"description" json:"description"`
	StartedAt     time.Time  `db:"started_at" json:"date_started"`
	EndedAt       *time.Time `db:"ended_at" json:"date_ended,omitempty"`
	RecordedBy    string     `db:"recorded_by" json:"recorded_by"`
	RecordVersion int        `db:"record_version" json:"record_version"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type ClinicalNote struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RecordID      uuid.UUID `db:"record_id" json:"record_id"`
	Text          string    `db:"note_text" json:"note_text"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	RecordVersion int       `db:"record_version" json:"record_version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Change names what produced a record version.
type Change string

const (
	ChangeCreated        Change = "created"
	ChangeDiagnosisAdded Change = "diagnosis_added"
	ChangeTreatmentAdded Change = "treatment_added"
	ChangeNoteAdded      Change = "note_added"
)

// RecordVersion maps to medical_record_versions.
type RecordVersion struct {
	RecordID  uuid.UUID  `db:"record_id" json:"record_id"`
	Version   int        `db:"version" json:"version"`
	Change    Change     `db:"change" json:"change"`
	EntryID   *uuid.UUID `db:"entry_id" json:"entry_id,omitempty"`
	ChangedBy string     `db:"changed_by" json:"changed_by"`
	ChangedAt time.Time  `db:"changed_at" json:"changed_at"`
}

type DiagnosisRequest struct {
	Code        string `json:"diagnosis_code"`
	Description string `json:"description"`
}

type TreatmentRequest struct {
	Type        string     `json:"treatment_type"`
	Description string     `json:"description"`
	StartedAt   *time.Time `json:"date_started"`
	EndedAt     *time.Time `json:"date_ended"`
}

type NoteRequest struct {
	Text string `json:"note_text"`
}
