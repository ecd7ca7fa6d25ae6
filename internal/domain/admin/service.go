package admin

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "admin"

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

type Service struct {
	tx           db.Transactor
	staff        StaffRepository
	credentials  CredentialRepository
	availability AvailabilityRepository
	departments  DepartmentRepository
	assignments  AssignmentRepository
	pub          events.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	tx db.Transactor,
	staff StaffRepository,
	credentials CredentialRepository,
	availability AvailabilityRepository,
	departments DepartmentRepository,
	assignments AssignmentRepository,
	pub events.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tx:           tx,
		staff:        staff,
		credentials:  credentials,
		availability: availability,
		departments:  departments,
		assignments:  assignments,
		pub:          pub,
		logger:       logger.With().Str("engine", engine).Logger(),
		now:          time.Now,
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

// optional trims p and maps blank values to nil.
func optional(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// -- Staff --

func (s *Service) CreateStaff(ctx context.Context, req CreateStaffRequest) (*Staff, error) {
	st := &Staff{
		Name:           strings.TrimSpace(req.Name),
		Role:           req.Role,
		Specialization: optional(req.Specialization),
		LicenseNumber:  optional(req.LicenseNumber),
		Status:         StaffActive,
	}
	err := func() error {
		if st.Name == "" {
			return apperr.MissingField("name")
		}
		if st.Role == "" {
			return apperr.MissingField("role")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.staff.Create(ctx, st); err != nil {
				return err
			}
			if req.DepartmentID == nil {
				return nil
			}
			_, err := s.assign(ctx, *req.DepartmentID, st)
			return err
		})
	}()
	if err := s.done("create_staff", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", st.ID.String()).Str("role", string(st.Role)).Msg("staff member created")
	events.Emit(ctx, s.pub, s.logger, events.New("staff.created", engine, st.ID.String(),
		map[string]any{"role": st.Role}))
	return st, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, f StaffFilter, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, f, limit, offset)
}

func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, u StaffUpdate) (*Staff, error) {
	var st *Staff
	err := func() error {
		if u.empty() {
			return apperr.Invalid("no fields to update")
		}
		if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
			return apperr.MissingField("name")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if st, err = s.staff.GetForUpdate(ctx, id); err != nil {
				return err
			}
			if u.Name != nil {
				st.Name = strings.TrimSpace(*u.Name)
			}
			if u.Specialization != nil {
				st.Specialization = optional(u.Specialization)
			}
			if u.LicenseNumber != nil {
				st.LicenseNumber = optional(u.LicenseNumber)
			}
			return s.staff.Update(ctx, st)
		})
	}()
	if err := s.done("update_staff", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", id.String()).Msg("staff member updated")
	return st, nil
}

func (s *Service) SetStaffStatus(ctx context.Context, id uuid.UUID, status StaffStatus) (*Staff, error) {
	var st *Staff
	err := func() error {
		if status == "" {
			return apperr.MissingField("status")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if st, err = s.staff.GetForUpdate(ctx, id); err != nil {
				return err
			}
			if st.Status == status {
				return nil
			}
			st.Status = status
			return s.staff.Update(ctx, st)
		})
	}()
	if err := s.done("set_staff_status", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", id.String()).Str("status", string(status)).Msg("staff status changed")
	return st, nil
}

// -- Credentials and availability --

func (s *Service) AddCredential(ctx context.Context, staffID uuid.UUID, req AddCredentialRequest) (*Credential, error) {
	c := &Credential{
		StaffID:    staffID,
		Type:       strings.TrimSpace(req.Type),
		Number:     strings.TrimSpace(req.Number),
		ExpiryDate: req.ExpiryDate,
	}
	err := func() error {
		switch {
		case c.Type == "":
			return apperr.MissingField("type")
		case c.Number == "":
			return apperr.MissingField("number")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if _, err := s.staff.GetByID(ctx, staffID); err != nil {
				return err
			}
			return s.credentials.Create(ctx, c)
		})
	}()
	if err := s.done("add_credential", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", staffID.String()).Str("credential_type", c.Type).Msg("credential added")
	return c, nil
}

func (s *Service) ListCredentials(ctx context.Context, staffID uuid.UUID) ([]*Credential, error) {
	if _, err := s.staff.GetByID(ctx, staffID); err != nil {
		return nil, err
	}
	return s.credentials.ListByStaff(ctx, staffID)
}

// VerifyCredentials reports which of a staff member's credentials have
// lapsed as of today.
func (s *Service) VerifyCredentials(ctx context.Context, staffID uuid.UUID) (*CredentialReport, error) {
	st, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	today := db.Today(s.now())
	report := &CredentialReport{
		StaffID:       st.ID,
		Name:          st.Name,
		LicenseNumber: st.LicenseNumber,
		Credentials:   make([]CredentialStatus, 0, len(creds)),
	}
	for _, c := range creds {
		expired := c.ExpiryDate != nil && c.ExpiryDate.Before(today)
		if expired {
			report.ExpiredCount++
		}
		report.Credentials = append(report.Credentials, CredentialStatus{Credential: c, Expired: expired})
	}
	return report, nil
}

func (s *Service) SetAvailability(ctx context.Context, staffID uuid.UUID, req SetAvailabilityRequest) (*Availability, error) {
	a := &Availability{
		StaffID:   staffID,
		DayOfWeek: strings.ToLower(strings.TrimSpace(req.DayOfWeek)),
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
	}
	err := func() error {
		if err := validateWindow(a); err != nil {
			return err
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if _, err := s.staff.GetByID(ctx, staffID); err != nil {
				return err
			}
			return s.availability.Create(ctx, a)
		})
	}()
	if err := s.done("set_availability", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", staffID.String()).Str("day", a.DayOfWeek).Msg("availability set")
	return a, nil
}

func validateWindow(a *Availability) error {
	switch {
	case a.DayOfWeek == "":
		return apperr.MissingField("day_of_week")
	case a.StartTime == "":
		return apperr.MissingField("start_time")
	case a.EndTime == "":
		return apperr.MissingField("end_time")
	}
	if !weekdays[a.DayOfWeek] {
		return apperr.Invalid("invalid day_of_week %q", a.DayOfWeek)
	}
	start, err := time.Parse("15:04", a.StartTime)
	if err != nil {
		return apperr.Invalid("start_time must be HH:MM")
	}
	end, err := time.Parse("15:04", a.EndTime)
	if err != nil {
		return apperr.Invalid("end_time must be HH:MM")
	}
	if !end.After(start) {
		return apperr.Invalid("end_time must be after start_time")
	}
	return nil
}

func (s *Service) ListAvailability(ctx context.Context, staffID uuid.UUID) ([]*Availability, error) {
	if _, err := s.staff.GetByID(ctx, staffID); err != nil {
		return nil, err
	}
	return s.availability.ListByStaff(ctx, staffID)
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, req CreateDepartmentRequest) (*Department, error) {
	d := &Department{Name: strings.TrimSpace(req.Name), HeadOfDeptID: req.HeadOfDeptID}
	err := func() error {
		switch {
		case d.Name == "":
			return apperr.MissingField("name")
		case req.BudgetAllocation == nil:
			return apperr.MissingField("budget_allocation")
		case req.BudgetAllocation.IsNegative():
			return apperr.Invalid("budget_allocation must not be negative")
		}
		d.BudgetAllocation = req.BudgetAllocation.Round(2)
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if d.HeadOfDeptID != nil {
				if _, err := s.staff.GetByID(ctx, *d.HeadOfDeptID); err != nil {
					return err
				}
			}
			return s.departments.Create(ctx, d)
		})
	}()
	if err := s.done("create_department", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("department_id", d.ID.String()).Str("name", d.Name).Msg("department created")
	events.Emit(ctx, s.pub, s.logger, events.New("department.created", engine, d.ID.String(), nil))
	return d, nil
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.departments.GetByID(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.departments.List(ctx, limit, offset)
}

func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, u DepartmentUpdate) (*Department, error) {
	var d *Department
	err := func() error {
		if u.empty() {
			return apperr.Invalid("no fields to update")
		}
		if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
			return apperr.MissingField("name")
		}
		if u.BudgetAllocation != nil && u.BudgetAllocation.IsNegative() {
			return apperr.Invalid("budget_allocation must not be negative")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if d, err = s.departments.GetByID(ctx, id); err != nil {
				return err
			}
			if u.Name != nil {
				d.Name = strings.TrimSpace(*u.Name)
			}
			if u.HeadOfDeptID != nil {
				if _, err := s.staff.GetByID(ctx, *u.HeadOfDeptID); err != nil {
					return err
				}
				d.HeadOfDeptID = u.HeadOfDeptID
			}
			if u.BudgetAllocation != nil {
				d.BudgetAllocation = u.BudgetAllocation.Round(2)
			}
			return s.departments.Update(ctx, d)
		})
	}()
	if err := s.done("update_department", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("department_id", id.String()).Msg("department updated")
	return d, nil
}

// AssignStaffToDepartment moves a staff member into deptID. The previous open
// assignment is closed and the new one opened in the same transaction, with
// the staff row locked so concurrent moves serialize.
func (s *Service) AssignStaffToDepartment(ctx context.Context, deptID, staffID uuid.UUID) (*Assignment, error) {
	var a *Assignment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		st, err := s.staff.GetForUpdate(ctx, staffID)
		if err != nil {
			return err
		}
		a, err = s.assign(ctx, deptID, st)
		return err
	})
	if err := s.done("assign_staff", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", staffID.String()).Str("department_id", deptID.String()).Msg("staff assigned to department")
	events.Emit(ctx, s.pub, s.logger, events.New("staff.department_assigned", engine, staffID.String(),
		map[string]any{"department_id": deptID.String()}))
	return a, nil
}

// assign must run inside a transaction holding st's row.
func (s *Service) assign(ctx context.Context, deptID uuid.UUID, st *Staff) (*Assignment, error) {
	if _, err := s.departments.GetByID(ctx, deptID); err != nil {
		return nil, err
	}
	if err := s.assignments.CloseOpen(ctx, st.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	a := &Assignment{DepartmentID: deptID, StaffID: st.ID}
	if err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	st.DepartmentID = &deptID
	if err := s.staff.Update(ctx, st); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) AssignmentHistory(ctx context.Context, staffID uuid.UUID) ([]*Assignment, error) {
	if _, err := s.staff.GetByID(ctx, staffID); err != nil {
		return nil, err
	}
	return s.assignments.ListByStaff(ctx, staffID)
}

func (s *Service) DepartmentStaff(ctx context.Context, deptID uuid.UUID) ([]*Staff, error) {
	if _, err := s.departments.GetByID(ctx, deptID); err != nil {
		return nil, err
	}
	return s.staff.ListByDepartment(ctx, deptID)
}

func (s *Service) DepartmentMetrics(ctx context.Context, deptID uuid.UUID) (*DepartmentMetrics, error) {
	d, err := s.departments.GetByID(ctx, deptID)
	if err != nil {
		return nil, err
	}
	members, err := s.staff.ListByDepartment(ctx, deptID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []*Staff{}
	}
	return &DepartmentMetrics{
		DepartmentID:     d.ID,
		Name:             d.Name,
		StaffCount:       len(members),
		BudgetAllocation: d.BudgetAllocation,
		HeadOfDeptID:     d.HeadOfDeptID,
		Staff:            members,
	}, nil
}
