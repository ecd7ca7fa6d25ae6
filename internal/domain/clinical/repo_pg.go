package clinical

import (
	"context"
	"errors"
	"fmt"

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, op string, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, db.Classify(op, err)
		}
		out = append(out, v)
	}
	return out, db.Classify(op, rows.Err())
}

// -- Medical records --

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const recordCols = `id, patient_id, created_by, version, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	if err := row.Scan(&rec.ID, &rec.PatientID, &rec.CreatedBy, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_id, created_by, version)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.CreatedBy, rec.Version,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return db.Classify("insert medical record", fmt.Errorf("medical record for patient %s: %w", rec.PatientID, err))
	}
	return nil
}

func (r *recordRepoPG) get(ctx context.Context, patientID uuid.UUID, lock string) (*MedicalRecord, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE patient_id = $1`+lock, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("medical record for patient", patientID)
	}
	if err != nil {
		return nil, db.Classify("get medical record", err)
	}
	return rec, nil
}

func (r *recordRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	return r.get(ctx, patientID, "")
}

func (r *recordRepoPG) GetByPatientForUpdate(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	return r.get(ctx, patientID, " FOR UPDATE")
}

func (r *recordRepoPG) SetVersion(ctx context.Context, rec *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE medical_records SET version = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		rec.ID, rec.Version).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("medical record", rec.ID)
	}
	return db.Classify("update medical record", err)
}

func (r *recordRepoPG) AppendVersion(ctx context.Context, v *RecordVersion) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record_versions (record_id, version, change, entry_id, changed_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING changed_at`,
		v.RecordID, v.Version, v.Change, v.EntryID, v.ChangedBy,
	).Scan(&v.ChangedAt)
	return db.Classify("insert record version", err)
}

func (r *recordRepoPG) ListVersions(ctx context.Context, recordID uuid.UUID) ([]*RecordVersion, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT record_id, version, change, entry_id, changed_by, changed_at
		FROM medical_record_versions WHERE record_id = $1 ORDER BY version DESC`, recordID)
	if err != nil {
		return nil, db.Classify("list record versions", err)
	}
	return collect(rows, "scan record version", func(row pgx.Row) (*RecordVersion, error) {
		var v RecordVersion
		err := row.Scan(&v.RecordID, &v.Version, &v.Change, &v.EntryID, &v.ChangedBy, &v.ChangedAt)
		return &v, err
	})
}

// -- Diagnoses, treatments and notes --

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *entryRepoPG) AddDiagnosis(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnoses (id, record_id, diagnosis_code, description, recorded_by, record_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING recorded_at`,
		d.ID, d.RecordID, d.Code, d.Description, d.RecordedBy, d.RecordVersion,
	).Scan(&d.RecordedAt)
	return db.Classify("insert diagnosis", err)
}

func (r *entryRepoPG) AddTreatment(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, record_id, treatment_type, description, started_at, ended_at, recorded_by, record_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		t.ID, t.RecordID, t.Type, t.Description, t.StartedAt, t.EndedAt, t.RecordedBy, t.RecordVersion,
	).Scan(&t.CreatedAt)
	return db.Classify("insert treatment", err)
}

func (r *entryRepoPG) AddNote(ctx context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (id, record_id, note_text, created_by, record_version)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		n.ID, n.RecordID, n.Text, n.CreatedBy, n.RecordVersion,
	).Scan(&n.CreatedAt)
	return db.Classify("insert clinical note", err)
}

func (r *entryRepoPG) ListDiagnoses(ctx context.Context, recordID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_id, diagnosis_code, description, recorded_by, record_version, recorded_at
		FROM diagnoses WHERE record_id = $1 ORDER BY record_version`, recordID)
	if err != nil {
		return nil, db.Classify("list diagnoses", err)
	}
	return collect(rows, "scan diagnosis", func(row pgx.Row) (*Diagnosis, error) {
		var d Diagnosis
		err := row.Scan(&d.ID, &d.RecordID, &d.Code, &d.Description, &d.RecordedBy, &d.RecordVersion, &d.RecordedAt)
		return &d, err
	})
}

func (r *entryRepoPG) ListTreatments(ctx context.Context, recordID uuid.UUID) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_id, treatment_type, description, started_at, ended_at, recorded_by, record_version, created_at
		FROM treatments WHERE record_id = $1 ORDER BY record_version`, recordID)
	if err != nil {
		return nil, db.Classify("list treatments", err)
	}
	return collect(rows, "scan treatment", func(row pgx.Row) (*Treatment, error) {
		var t Treatment
		err := row.Scan(&t.ID, &t.RecordID, &t.Type, &t.Description, &t.StartedAt, &t.EndedAt,
			&t.RecordedBy, &t.RecordVersion, &t.CreatedAt)
		return &t, err
	})
}

func (r *entryRepoPG) ListNotes(ctx context.Context, recordID uuid.UUID) ([]*ClinicalNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_id, note_text, created_by, record_version, created_at
		FROM clinical_notes WHERE record_id = $1 ORDER BY record_version`, recordID)
	if err != nil {
		return nil, db.Classify("list clinical notes", err)
	}
	return collect(rows, "scan clinical note", func(row pgx.Row) (*ClinicalNote, error) {
		var n ClinicalNote
		err := row.Scan(&n.ID, &n.RecordID, &n.Text, &n.CreatedBy, &n.RecordVersion, &n.CreatedAt)
		return &n, err
	})
}
