package medication

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/platform/apperr"
)

type PrescriptionStatus string

const (
	StatusActive    PrescriptionStatus = "active"
	StatusFilled    PrescriptionStatus = "filled"
	StatusExpired   PrescriptionStatus = "expired"
	StatusCancelled PrescriptionStatus = "cancelled"
)

func ParsePrescriptionStatus(s string) (PrescriptionStatus, error) {
	switch st := PrescriptionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusFilled, StatusExpired, StatusCancelled:
		return st, nil
	}
	return "", apperr.Invalid("invalid prescription status %q", s)
}

func (s *PrescriptionStatus) UnmarshalText(b []byte) error {
	st, err := ParsePrescriptionStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Terminal reports whether no further status change is allowed.
func (s PrescriptionStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Prescription maps to the prescriptions table. MedicationID references an
// inventory item.
type Prescription struct {
	ID           uuid.UUID          `db:"id" json:"id"`
	PatientID    uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	MedicationID uuid.UUID          `db:"medication_id" json:"medication_id"`
	Dosage       string             `db:"dosage" json:"dosage"`
	Frequency    string             `db:"frequency" json:"frequency"`
	Duration     string             `db:"duration" json:"duration"`
	Status       PrescriptionStatus `db:"status" json:"status"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}

type CreatePrescriptionRequest struct {
	PatientID    uuid.UUID `json:"patient_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Duration     string    `json:"duration"`
}

type StatusRequest struct {
	Status PrescriptionStatus `json:"status"`
}
