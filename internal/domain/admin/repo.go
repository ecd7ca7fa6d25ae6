package admin

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	List(ctx context.Context, f StaffFilter, limit, offset int) ([]*Staff, int, error)
	ListByDepartment(ctx context.Context, deptID uuid.UUID) ([]*Staff, error)
}

type CredentialRepository interface {
	Create(ctx context.Context, c *Credential) error
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Credential, error)
}

type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Availability, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	Update(ctx context.Context, d *Department) error
	List(ctx context.Context, limit, offset int) ([]*Department, int, error)
}

type AssignmentRepository interface {
	// CloseOpen ends the staff member's open assignment, if there is one.
	CloseOpen(ctx context.Context, staffID uuid.UUID, at time.Time) error
	Create(ctx context.Context, a *Assignment) error
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Assignment, error)
}
