package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *AuditLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AuditLog, int, error)
}
