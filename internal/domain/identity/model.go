package identity

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hospital/hms/internal/platform/apperr"
)

// PatientStatus is a logical-deletion flag. Archived is terminal.
type PatientStatus string

const (
	PatientActive   PatientStatus = "active"
	PatientInactive PatientStatus = "inactive"
	PatientArchived PatientStatus = "archived"
)

func ParsePatientStatus(s string) (PatientStatus, error) {
	switch st := PatientStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case PatientActive, PatientInactive, PatientArchived:
		return st, nil
	}
	return "", apperr.Invalid("invalid patient status %q", s)
}

func (s *PatientStatus) UnmarshalText(b []byte) error {
	st, err := ParsePatientStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	DateOfBirth civil.Date    `db:"date_of_birth" json:"date_of_birth"`
	ContactInfo string        `db:"contact_info" json:"contact_info"`
	InsuranceID string        `db:"insurance_id" json:"insurance_id"`
	Status      PatientStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// RegisterPatientRequest is the registration payload. Pointer fields tell
// an absent value from an empty one.
type RegisterPatientRequest struct {
	Name        string      `json:"name"`
	DateOfBirth *civil.Date `json:"date_of_birth"`
	ContactInfo string      `json:"contact_info"`
	InsuranceID string      `json:"insurance_id"`
}

// PatientUpdate changes demographic fields; nil leaves a field as is.
type PatientUpdate struct {
	Name        *string `json:"name"`
	ContactInfo *string `json:"contact_info"`
	InsuranceID *string `json:"insurance_id"`
}

func (u PatientUpdate) empty() bool {
	return u.Name == nil && u.ContactInfo == nil && u.InsuranceID == nil
}

// PatientFilter narrows ListPatients. Name matches case-insensitively
// anywhere in the patient's name.
type PatientFilter struct {
	Status *PatientStatus
	Name   string
}

// AuditLog is an append-only record of a change to a patient.
type AuditLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Action    string    `db:"action" json:"action"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

const (
	ActionRegistered  = "registered"
	ActionUpdated     = "updated"
	ActionDeactivated = "deactivated"
	ActionReactivated = "reactivated"
	ActionArchived    = "archived"
)
