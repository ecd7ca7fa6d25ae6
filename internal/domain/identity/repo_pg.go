package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, name, date_of_birth, contact_info, insurance_id, status, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p   Patient
		dob time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &dob, &p.ContactInfo, &p.InsuranceID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DateOfBirth = civil.DateOf(dob)
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, name, date_of_birth, contact_info, insurance_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, db.DateArg(p.DateOfBirth), p.ContactInfo, p.InsuranceID, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.ConstraintName(err) == "patients_identity_key" {
			return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey,
				"a patient with this name, date of birth and contact info already exists")
		}
		return db.Classify("insert patient", err)
	}
	return nil
}

func (r *patientRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Patient, error) {
	p, err := scanPatient(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id)
	}
	if err != nil {
		return nil, db.Classify("get patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, id, "")
}

func (r *patientRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET name = $2, contact_info = $3, insurance_id = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.ContactInfo, p.InsuranceID, p.Status,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient", p.ID)
	}
	if db.ConstraintName(err) == "patients_identity_key" {
		return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey,
			"another patient already has this name, date of birth and contact info")
	}
	return db.Classify("update patient", err)
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.Name != "" {
		where += fmt.Sprintf(` AND name ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Name)
		idx++
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify("count patients", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+patientCols+` FROM patients`+where+
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, db.Classify("list patients", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, db.Classify("scan patient", err)
		}
		items = append(items, p)
	}
	return items, total, db.Classify("list patients", rows.Err())
}

// =========== Audit Repository ===========

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

func (r *auditRepoPG) Append(ctx context.Context, entry *AuditLog) error {
	entry.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_audit_logs (id, actor_id, patient_id, action)
		VALUES ($1, $2, $3, $4)
		RETURNING timestamp`,
		entry.ID, entry.ActorID, entry.PatientID, entry.Action,
	).Scan(&entry.Timestamp)
	return db.Classify("append patient audit log", err)
}

func (r *auditRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient_audit_logs WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, db.Classify("count patient audit logs", err)
	}
	rows, err := q.Query(ctx, `
		SELECT id, actor_id, patient_id, action, timestamp
		FROM patient_audit_logs WHERE patient_id = $1
		ORDER BY timestamp DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list patient audit logs", err)
	}
	defer rows.Close()

	var items []*AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.ActorID, &a.PatientID, &a.Action, &a.Timestamp); err != nil {
			return nil, 0, db.Classify("scan patient audit log", err)
		}
		items = append(items, &a)
	}
	return items, total, db.Classify("list patient audit logs", rows.Err())
}
