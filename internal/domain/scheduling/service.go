// Package scheduling books doctor appointments and enumerates free slots.
//
// Conflict detection is exact-instant: two scheduled appointments for the
// same doctor conflict only when their scheduled_time values are equal.
// Appointments have no duration, so 09:00 and 09:15 never conflict.
package scheduling

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "scheduling"

type Service struct {
	tx           db.Transactor
	appointments AppointmentRepository
	maxRange     time.Duration
	pub          events.Publisher
	logger       zerolog.Logger
}

// NewService builds the engine. Slot enumeration requests spanning more than
// maxRangeDays are rejected.
func NewService(tx db.Transactor, appointments AppointmentRepository, maxRangeDays int, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:           tx,
		appointments: appointments,
		maxRange:     time.Duration(maxRangeDays) * 24 * time.Hour,
		pub:          pub,
		logger:       logger.With().Str("engine", engine).Logger(),
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

func (s *Service) emit(ctx context.Context, typ string, a *Appointment) {
	events.Emit(ctx, s.pub, s.logger, events.New(typ, engine, a.ID.String(), map[string]any{
		"patient_id":     a.PatientID.String(),
		"doctor_id":      a.DoctorID.String(),
		"scheduled_time": a.ScheduledTime,
		"status":         a.Status,
	}))
}

func slotConflict(doctorID uuid.UUID, at time.Time) error {
	return apperr.New(apperr.KindConflict, apperr.CodeSlotConflict,
		"doctor %s already has an appointment at %s", doctorID, at.Format(time.RFC3339))
}

func notScheduled(a *Appointment) error {
	return apperr.New(apperr.KindImmutableState, apperr.CodeTerminalState,
		"appointment %s is %s", a.ID, a.Status)
}

// ScheduleAppointment books the doctor's slot at req.ScheduledTime. The
// doctor's advisory lock is held from the conflict check through the insert.
func (s *Service) ScheduleAppointment(ctx context.Context, req ScheduleRequest) (*Appointment, error) {
	a := &Appointment{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		ScheduledTime: normalizeTime(req.ScheduledTime),
		Status:        StatusScheduled,
	}
	err := func() error {
		switch {
		case a.PatientID == uuid.Nil:
			return apperr.MissingField("patient_id")
		case a.DoctorID == uuid.Nil:
			return apperr.MissingField("doctor_id")
		case req.ScheduledTime.IsZero():
			return apperr.MissingField("scheduled_time")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.appointments.LockDoctor(ctx, a.DoctorID); err != nil {
				return err
			}
			taken, err := s.appointments.ExistsScheduled(ctx, a.DoctorID, a.ScheduledTime, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				return slotConflict(a.DoctorID, a.ScheduledTime)
			}
			return s.appointments.Create(ctx, a)
		})
	}()
	if err := s.done("schedule", err); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_time", a.ScheduledTime).
		Msg("appointment scheduled")
	s.emit(ctx, "appointment.scheduled", a)
	return a, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "cancel", id, StatusCancelled, "appointment.cancelled")
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "complete", id, StatusCompleted, "appointment.completed")
}

// transition moves a scheduled appointment to a final status. Leaving
// scheduled releases the slot.
func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, to AppointmentStatus, eventType string) (*Appointment, error) {
	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.appointments.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return notScheduled(a)
		}
		a.Status = to
		return s.appointments.Update(ctx, a)
	})
	if err := s.done(op, err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(to)).Msg("appointment " + string(to))
	s.emit(ctx, eventType, a)
	return a, nil
}

// RescheduleAppointment moves a scheduled appointment to newTime. On a
// conflict the appointment is left as it was.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	var (
		a    *Appointment
		from time.Time
	)
	err := func() error {
		if newTime.IsZero() {
			return apperr.MissingField("scheduled_time")
		}
		at := normalizeTime(newTime)
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if a, err = s.appointments.GetForUpdate(ctx, id); err != nil {
				return err
			}
			if a.Status != StatusScheduled {
				return notScheduled(a)
			}
			from = a.ScheduledTime
			if at.Equal(a.ScheduledTime) {
				return nil
			}
			if err := s.appointments.LockDoctor(ctx, a.DoctorID); err != nil {
				return err
			}
			taken, err := s.appointments.ExistsScheduled(ctx, a.DoctorID, at, a.ID)
			if err != nil {
				return err
			}
			if taken {
				return slotConflict(a.DoctorID, at)
			}
			a.ScheduledTime = at
			return s.appointments.Update(ctx, a)
		})
	}()
	if err := s.done("reschedule", err); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Time("from", from).
		Time("to", a.ScheduledTime).
		Msg("appointment rescheduled")
	s.emit(ctx, "appointment.rescheduled", a)
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.From != nil {
		t := normalizeTime(*f.From)
		f.From = &t
	}
	if f.To != nil {
		t := normalizeTime(*f.To)
		f.To = &t
	}
	return s.appointments.ListByDoctor(ctx, doctorID, f, limit, offset)
}

// ListAvailableSlots returns the doctor's free slots in [start, end]: every
// SlotInterval-aligned instant in range that no scheduled appointment holds.
//
// Bookings are read once, when ListAvailableSlots is called. The returned
// sequence can be ranged over any number of times and yields the same slots
// each time; call again to observe later bookings.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (iter.Seq[time.Time], error) {
	start, end = normalizeTime(start), normalizeTime(end)
	switch {
	case doctorID == uuid.Nil:
		return nil, apperr.MissingField("doctor_id")
	case start.IsZero() || end.IsZero():
		return nil, apperr.MissingField("start and end")
	case end.Before(start):
		return nil, apperr.Invalid("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	case s.maxRange > 0 && end.Sub(start) > s.maxRange:
		return nil, apperr.Invalid("slot range may not exceed %d days", int(s.maxRange/(24*time.Hour)))
	}

	booked, err := s.appointments.BookedTimes(ctx, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	taken := make(map[int64]struct{}, len(booked))
	for _, t := range booked {
		taken[t.UnixMicro()] = struct{}{}
	}

	first := start.Truncate(SlotInterval)
	if first.Before(start) {
		first = first.Add(SlotInterval)
	}
	return func(yield func(time.Time) bool) {
		for t := first; !t.After(end); t = t.Add(SlotInterval) {
			if _, ok := taken[t.UnixMicro()]; ok {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}, nil
}
