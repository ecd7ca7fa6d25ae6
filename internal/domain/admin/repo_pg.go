package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// =========== Staff Repository ===========

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) StaffRepository { return &staffRepoPG{pool: pool} }

const staffCols = `id, name, role, specialization, license_number, department_id, status, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.Name, &s.Role, &s.Specialization, &s.LicenseNumber,
		&s.DepartmentID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func licenseConflict(err error) error {
	if db.ConstraintName(err) == "staff_license_number_key" {
		return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey, "license number is already registered")
	}
	return nil
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff (id, name, role, specialization, license_number, department_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Role, s.Specialization, s.LicenseNumber, s.DepartmentID, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if cerr := licenseConflict(err); cerr != nil {
			return cerr
		}
		return db.Classify("insert staff", err)
	}
	return nil
}

func (r *staffRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Staff, error) {
	s, err := scanStaff(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffCols+` FROM staff WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff", id)
	}
	if err != nil {
		return nil, db.Classify("get staff", err)
	}
	return s, nil
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.get(ctx, id, "")
}

func (r *staffRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE staff SET name = $2, specialization = $3, license_number = $4,
			department_id = $5, status = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.Specialization, s.LicenseNumber, s.DepartmentID, s.Status,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("staff", s.ID)
	}
	if cerr := licenseConflict(err); cerr != nil {
		return cerr
	}
	return db.Classify("update staff", err)
}

func (r *staffRepoPG) List(ctx context.Context, f StaffFilter, limit, offset int) ([]*Staff, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != nil {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, *f.Role)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM staff`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify("count staff", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+staffCols+` FROM staff`+where+
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, db.Classify("list staff", err)
	}
	items, err := collectStaff(rows)
	return items, total, err
}

func (r *staffRepoPG) ListByDepartment(ctx context.Context, deptID uuid.UUID) ([]*Staff, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+staffCols+` FROM staff WHERE department_id = $1 ORDER BY name, id`, deptID)
	if err != nil {
		return nil, db.Classify("list department staff", err)
	}
	return collectStaff(rows)
}

func collectStaff(rows pgx.Rows) ([]*Staff, error) {
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, db.Classify("scan staff", err)
		}
		items = append(items, s)
	}
	return items, db.Classify("list staff", rows.Err())
}

// =========== Credential Repository ===========

type credentialRepoPG struct{ pool *pgxpool.Pool }

func NewCredentialRepoPG(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

func (r *credentialRepoPG) Create(ctx context.Context, c *Credential) error {
	c.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff_credentials (id, staff_id, credential_type, credential_number, expiry_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.StaffID, c.Type, c.Number, db.NullDateArg(c.ExpiryDate),
	).Scan(&c.CreatedAt)
	return db.Classify("insert staff credential", err)
}

func (r *credentialRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Credential, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, staff_id, credential_type, credential_number, expiry_date, created_at
		FROM staff_credentials WHERE staff_id = $1 ORDER BY created_at, id`, staffID)
	if err != nil {
		return nil, db.Classify("list staff credentials", err)
	}
	defer rows.Close()

	var items []*Credential
	for rows.Next() {
		var (
			c      Credential
			expiry *time.Time
		)
		if err := rows.Scan(&c.ID, &c.StaffID, &c.Type, &c.Number, &expiry, &c.CreatedAt); err != nil {
			return nil, db.Classify("scan staff credential", err)
		}
		c.ExpiryDate = db.ScanDate(expiry)
		items = append(items, &c)
	}
	return items, db.Classify("list staff credentials", rows.Err())
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff_availability (id, staff_id, day_of_week, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.StaffID, a.DayOfWeek, a.StartTime, a.EndTime,
	).Scan(&a.CreatedAt)
	return db.Classify("insert staff availability", err)
}

func (r *availabilityRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Availability, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, staff_id, day_of_week, start_time, end_time, created_at
		FROM staff_availability WHERE staff_id = $1 ORDER BY created_at, id`, staffID)
	if err != nil {
		return nil, db.Classify("list staff availability", err)
	}
	defer rows.Close()

	var items []*Availability
	for rows.Next() {
		var a Availability
		if err := rows.Scan(&a.ID, &a.StaffID, &a.DayOfWeek, &a.StartTime, &a.EndTime, &a.CreatedAt); err != nil {
			return nil, db.Classify("scan staff availability", err)
		}
		items = append(items, &a)
	}
	return items, db.Classify("list staff availability", rows.Err())
}

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

const deptCols = `id, name, head_of_dept_id, budget_allocation, created_at, updated_at`

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	if err := row.Scan(&d.ID, &d.Name, &d.HeadOfDeptID, &d.BudgetAllocation, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func deptNameConflict(err error, name string) error {
	if db.ConstraintName(err) == "departments_name_key" {
		return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey, "department %q already exists", name)
	}
	return nil
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO departments (id, name, head_of_dept_id, budget_allocation)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.HeadOfDeptID, d.BudgetAllocation,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if cerr := deptNameConflict(err, d.Name); cerr != nil {
			return cerr
		}
		return db.Classify("insert department", err)
	}
	return nil
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := scanDepartment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deptCols+` FROM departments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("department", id)
	}
	if err != nil {
		return nil, db.Classify("get department", err)
	}
	return d, nil
}

func (r *departmentRepoPG) Update(ctx context.Context, d *Department) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE departments SET name = $2, head_of_dept_id = $3, budget_allocation = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.HeadOfDeptID, d.BudgetAllocation,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("department", d.ID)
	}
	if cerr := deptNameConflict(err, d.Name); cerr != nil {
		return cerr
	}
	return db.Classify("update department", err)
}

func (r *departmentRepoPG) List(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM departments`).Scan(&total); err != nil {
		return nil, 0, db.Classify("count departments", err)
	}
	rows, err := q.Query(ctx, `SELECT `+deptCols+` FROM departments ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list departments", err)
	}
	defer rows.Close()

	var items []*Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, 0, db.Classify("scan department", err)
		}
		items = append(items, d)
	}
	return items, total, db.Classify("list departments", rows.Err())
}

// =========== Assignment Repository ===========

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssignmentRepoPG(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) CloseOpen(ctx context.Context, staffID uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE department_staff SET end_date = $2 WHERE staff_id = $1 AND end_date IS NULL`, staffID, at)
	return db.Classify("close department assignment", err)
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO department_staff (id, department_id, staff_id)
		VALUES ($1, $2, $3)
		RETURNING assignment_date`,
		a.ID, a.DepartmentID, a.StaffID,
	).Scan(&a.AssignmentDate)
	if db.ConstraintName(err) == "department_staff_open_key" {
		return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey,
			"staff %s already has an open department assignment", a.StaffID)
	}
	return db.Classify("insert department assignment", err)
}

func (r *assignmentRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Assignment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, department_id, staff_id, assignment_date, end_date
		FROM department_staff WHERE staff_id = $1 ORDER BY assignment_date DESC, id`, staffID)
	if err != nil {
		return nil, db.Classify("list department assignments", err)
	}
	defer rows.Close()

	var items []*Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.DepartmentID, &a.StaffID, &a.AssignmentDate, &a.EndDate); err != nil {
			return nil, db.Classify("scan department assignment", err)
		}
		items = append(items, &a)
	}
	return items, db.Classify("list department assignments", rows.Err())
}
