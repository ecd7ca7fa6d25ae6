package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
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

// =========== Billing Record Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

const recordCols = `id, patient_id, total_amount, insurance_coverage, patient_responsibility, status, is_finalized, created_at, updated_at`

func scanRecord(row pgx.Row) (*BillingRecord, error) {
	var r BillingRecord
	if err := row.Scan(&r.ID, &r.PatientID, &r.TotalAmount, &r.InsuranceCoverage, &r.PatientResponsibility,
		&r.Status, &r.IsFinalized, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create writes the record and its items in one batch. Callers run it inside
// a transaction so a failed item insert leaves no orphan record.
func (r *recordRepoPG) Create(ctx context.Context, rec *BillingRecord) error {
	rec.ID = uuid.New()
	q := conn(ctx, r.pool)

	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO billing_records (id, patient_id, total_amount, insurance_coverage, patient_responsibility, status, is_finalized)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.TotalAmount, rec.InsuranceCoverage, rec.PatientResponsibility, rec.Status, rec.IsFinalized,
	).QueryRow(func(row pgx.Row) error {
		return row.Scan(&rec.CreatedAt, &rec.UpdatedAt)
	})
	for _, it := range rec.Items {
		it.ID = uuid.New()
		it.BillingID = rec.ID
		b.Queue(`
			INSERT INTO billing_items (id, billing_id, service_type, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`,
			it.ID, it.BillingID, it.ServiceType, it.Quantity, it.UnitPrice, it.TotalPrice,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&it.CreatedAt)
		})
	}
	return db.Classify("insert billing record", q.SendBatch(ctx, b).Close())
}

func (r *recordRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*BillingRecord, error) {
	rec, err := scanRecord(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM billing_records WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("billing record", id)
	}
	if err != nil {
		return nil, db.Classify("get billing record", err)
	}
	return rec, nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	rec, err := r.get(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if rec.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *recordRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*BillingRecord, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *recordRepoPG) items(ctx context.Context, billingID uuid.UUID) ([]*BillingItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, billing_id, service_type, quantity, unit_price, total_price, created_at
		FROM billing_items WHERE billing_id = $1 ORDER BY created_at, id`, billingID)
	if err != nil {
		return nil, db.Classify("list billing items", err)
	}
	defer rows.Close()

	var items []*BillingItem
	for rows.Next() {
		var it BillingItem
		if err := rows.Scan(&it.ID, &it.BillingID, &it.ServiceType, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, db.Classify("scan billing item", err)
		}
		items = append(items, &it)
	}
	return items, db.Classify("list billing items", rows.Err())
}

func (r *recordRepoPG) Update(ctx context.Context, rec *BillingRecord) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE billing_records SET status = $2, is_finalized = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rec.ID, rec.Status, rec.IsFinalized,
	).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("billing record", rec.ID)
	}
	return db.Classify("update billing record", err)
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*BillingRecord, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM billing_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, db.Classify("count billing records", err)
	}

	rows, err := q.Query(ctx, `SELECT `+recordCols+` FROM billing_records
		WHERE patient_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list billing records", err)
	}
	defer rows.Close()

	var items []*BillingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, db.Classify("scan billing record", err)
		}
		items = append(items, rec)
	}
	return items, total, db.Classify("list billing records", rows.Err())
}

func (r *recordRepoPG) BalanceTotals(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var due, paid decimal.Decimal
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(patient_responsibility) FILTER (WHERE status <> 'paid'), 0),
			COALESCE(SUM(patient_responsibility) FILTER (WHERE status = 'paid'), 0)
		FROM billing_records
		WHERE patient_id = $1 AND status <> 'cancelled'`, patientID,
	).Scan(&due, &paid)
	if err != nil {
		return decimal.Zero, decimal.Zero, db.Classify("sum patient balance", err)
	}
	return due, paid, nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

const paymentCols = `id, billing_id, amount, payment_method, status, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.BillingID, &p.Amount, &p.PaymentMethod, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments (id, billing_id, amount, payment_method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.BillingID, p.Amount, p.PaymentMethod, p.Status,
	).Scan(&p.CreatedAt)
	return db.Classify("insert payment", err)
}

func (r *paymentRepoPG) SumByBilling(ctx context.Context, billingID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE billing_id = $1 AND status = 'completed'`, billingID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, db.Classify("sum payments", err)
	}
	return sum, nil
}

func (r *paymentRepoPG) collect(rows pgx.Rows) ([]*Payment, error) {
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, db.Classify("scan payment", err)
		}
		items = append(items, p)
	}
	return items, db.Classify("list payments", rows.Err())
}

func (r *paymentRepoPG) ListByBilling(ctx context.Context, billingID uuid.UUID) ([]*Payment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE billing_id = $1 ORDER BY created_at, id`, billingID)
	if err != nil {
		return nil, db.Classify("list payments", err)
	}
	return r.collect(rows)
}

func (r *paymentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	q := conn(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM payments p
		JOIN billing_records b ON b.id = p.billing_id
		WHERE b.patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, db.Classify("count payments", err)
	}

	rows, err := q.Query(ctx, `
		SELECT p.id, p.billing_id, p.amount, p.payment_method, p.status, p.created_at
		FROM payments p
		JOIN billing_records b ON b.id = p.billing_id
		WHERE b.patient_id = $1
		ORDER BY p.created_at DESC, p.id
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list payments", err)
	}
	items, err := r.collect(rows)
	return items, total, err
}
