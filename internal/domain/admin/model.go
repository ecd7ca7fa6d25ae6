package admin

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
)

type StaffRole string

const (
	RoleDoctor     StaffRole = "doctor"
	RoleNurse      StaffRole = "nurse"
	RoleTechnician StaffRole = "technician"
	RoleAdmin      StaffRole = "admin"
)

func ParseStaffRole(s string) (StaffRole, error) {
	switch r := StaffRole(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleDoctor, RoleNurse, RoleTechnician, RoleAdmin:
		return r, nil
	}
	return "", apperr.Invalid("invalid staff role %q", s)
}

func (r *StaffRole) UnmarshalText(b []byte) error {
	v, err := ParseStaffRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

type StaffStatus string

const (
	StaffActive   StaffStatus = "active"
	StaffInactive StaffStatus = "inactive"
	StaffOnLeave  StaffStatus = "on_leave"
)

func ParseStaffStatus(s string) (StaffStatus, error) {
	switch st := StaffStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StaffActive, StaffInactive, StaffOnLeave:
		return st, nil
	}
	return "", apperr.Invalid("invalid staff status %q", s)
}

func (s *StaffStatus) UnmarshalText(b []byte) error {
	v, err := ParseStaffStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Staff maps to the staff table. DepartmentID mirrors the open department
// assignment, if any.
type Staff struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	Role           StaffRole   `db:"role" json:"role"`
	Specialization *string     `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber  *string     `db:"license_number" json:"license_number,omitempty"`
	DepartmentID   *uuid.UUID  `db:"department_id" json:"department_id,omitempty"`
	Status         StaffStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

type CreateStaffRequest struct {
	Name           string     `json:"name"`
	Role           StaffRole  `json:"role"`
	Specialization *string    `json:"specialization"`
	LicenseNumber  *string    `json:"license_number"`
	DepartmentID   *uuid.UUID `json:"department_id"`
}

type StaffUpdate struct {
	Name           *string `json:"name"`
	Specialization *string `json:"specialization"`
	LicenseNumber  *string `json:"license_number"`
}

func (u StaffUpdate) empty() bool {
	return u.Name == nil && u.Specialization == nil && u.LicenseNumber == nil
}

type StaffFilter struct {
	Role   *StaffRole
	Status *StaffStatus
}

// Credential maps to the staff_credentials table.
type Credential struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	StaffID    uuid.UUID   `db:"staff_id" json:"staff_id"`
	Type       string      `db:"credential_type" json:"type"`
	Number     string      `db:"credential_number" json:"number"`
	ExpiryDate *civil.Date `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

type AddCredentialRequest struct {
	Type       string      `json:"type"`
	Number     string      `json:"number"`
	ExpiryDate *civil.Date `json:"expiry_date"`
}

// CredentialStatus is a credential as seen on a given day.
type CredentialStatus struct {
	*Credential
	Expired bool `json:"expired"`
}

// CredentialReport summarizes a staff member's credentials.
type CredentialReport struct {
	StaffID       uuid.UUID          `json:"staff_id"`
	Name          string             `json:"name"`
	LicenseNumber *string            `json:"license_number,omitempty"`
	Credentials   []CredentialStatus `json:"credentials"`
	ExpiredCount  int                `json:"expired_count"`
}

// Availability is a weekly working window, times in HH:MM.
type Availability struct {
	ID        uuid.UUID `db:"id" json:"id"`
	StaffID   uuid.UUID `db:"staff_id" json:"staff_id"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type SetAvailabilityRequest struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Department maps to the departments table.
type Department struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	HeadOfDeptID     *uuid.UUID      `db:"head_of_dept_id" json:"head_of_dept_id,omitempty"`
	BudgetAllocation decimal.Decimal `db:"budget_allocation" json:"budget_allocation"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

type CreateDepartmentRequest struct {
	Name             string           `json:"name"`
	HeadOfDeptID     *uuid.UUID       `json:"head_of_dept_id"`
	BudgetAllocation *decimal.Decimal `json:"budget_allocation"`
}

type DepartmentUpdate struct {
	Name             *string          `json:"name"`
	HeadOfDeptID     *uuid.UUID       `json:"head_of_dept_id"`
	BudgetAllocation *decimal.Decimal `json:"budget_allocation"`
}

func (u DepartmentUpdate) empty() bool {
	return u.Name == nil && u.HeadOfDeptID == nil && u.BudgetAllocation == nil
}

// Assignment maps to department_staff. EndDate is nil while open.
type Assignment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	DepartmentID   uuid.UUID  `db:"department_id" json:"department_id"`
	StaffID        uuid.UUID  `db:"staff_id" json:"staff_id"`
	AssignmentDate time.Time  `db:"assignment_date" json:"assignment_date"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
}

type DepartmentMetrics struct {
	DepartmentID     uuid.UUID       `json:"department_id"`
	Name             string          `json:"department_name"`
	StaffCount       int             `json:"staff_count"`
	BudgetAllocation decimal.Decimal `json:"budget_allocation"`
	HeadOfDeptID     *uuid.UUID      `json:"head_of_dept_id,omitempty"`
	Staff            []*Staff        `json:"staff"`
}
