package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/platform/apperr"
)

// SlotInterval is the spacing of bookable slots. Slots start on the hour
// and half hour, UTC.
const SlotInterval = 30 * time.Minute

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", apperr.Invalid("invalid appointment status %q", s)
}

func (s *AppointmentStatus) UnmarshalText(b []byte) error {
	st, err := ParseAppointmentStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Appointment maps to the appointments table. Two appointments conflict only
// when both are scheduled for the same doctor at the identical instant.
type Appointment struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	ScheduledTime time.Time         `db:"scheduled_time" json:"scheduled_time"`
	Status        AppointmentStatus `db:"status" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

type ScheduleRequest struct {
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

type RescheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

// AppointmentFilter narrows a doctor's appointment list. Bounds are inclusive.
type AppointmentFilter struct {
	Status *AppointmentStatus
	From   *time.Time
	To     *time.Time
}

// normalizeTime maps t to the form stored by Postgres TIMESTAMPTZ, so that
// equality checks agree with the unique index.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
