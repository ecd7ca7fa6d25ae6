package inventory

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

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository { return &itemRepoPG{pool: pool} }

const itemCols = `id, name, quantity, unit_cost, expiration_date, storage_location, min_threshold, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var (
		i   Item
		exp *time.Time
	)
	if err := row.Scan(&i.ID, &i.Name, &i.Quantity, &i.UnitCost, &exp, &i.StorageLocation,
		&i.MinThreshold, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.ExpirationDate = db.ScanDate(exp)
	return &i, nil
}

func (r *itemRepoPG) Create(ctx context.Context, i *Item) error {
	i.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO inventory_items (id, name, quantity, unit_cost, expiration_date, storage_location, min_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		i.ID, i.Name, i.Quantity, i.UnitCost, db.NullDateArg(i.ExpirationDate), i.StorageLocation, i.MinThreshold,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	return db.Classify("insert inventory item", err)
}

func (r *itemRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Item, error) {
	i, err := scanItem(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inventory item", id)
	}
	if err != nil {
		return nil, db.Classify("get inventory item", err)
	}
	return i, nil
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.get(ctx, id, "")
}

func (r *itemRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *itemRepoPG) SetQuantity(ctx context.Context, i *Item) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE inventory_items SET quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, i.ID, i.Quantity,
	).Scan(&i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("inventory item", i.ID)
	}
	return db.Classify("update inventory quantity", err)
}

func (r *itemRepoPG) collect(rows pgx.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, db.Classify("scan inventory item", err)
		}
		items = append(items, i)
	}
	return items, db.Classify("list inventory items", rows.Err())
}

func (r *itemRepoPG) List(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error) {
	q := conn(ctx, r.pool)
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Name != nil {
		where += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+*f.Name+"%")
		idx++
	}
	if f.StorageLocation != nil {
		where += fmt.Sprintf(` AND storage_location = $%d`, idx)
		args = append(args, *f.StorageLocation)
		idx++
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify("count inventory items", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+itemCols+` FROM inventory_items`+where+
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, db.Classify("list inventory items", err)
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *itemRepoPG) ListLowStock(ctx context.Context, threshold *int) ([]*Item, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if threshold != nil {
		rows, err = conn(ctx, r.pool).Query(ctx, `SELECT `+itemCols+` FROM inventory_items
			WHERE quantity <= $1 ORDER BY quantity, name`, *threshold)
	} else {
		rows, err = conn(ctx, r.pool).Query(ctx, `SELECT `+itemCols+` FROM inventory_items
			WHERE quantity <= min_threshold ORDER BY quantity, name`)
	}
	if err != nil {
		return nil, db.Classify("list low stock", err)
	}
	return r.collect(rows)
}

func (r *itemRepoPG) ListExpired(ctx context.Context, today civil.Date) ([]*Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+itemCols+` FROM inventory_items
		WHERE expiration_date < $1 ORDER BY expiration_date, name`, db.DateArg(today))
	if err != nil {
		return nil, db.Classify("list expired items", err)
	}
	return r.collect(rows)
}

func (r *itemRepoPG) Report(ctx context.Context, today civil.Date) (*Report, error) {
	var rep Report
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(quantity * unit_cost), 0),
			COUNT(*) FILTER (WHERE quantity <= min_threshold),
			COUNT(*) FILTER (WHERE expiration_date < $1)
		FROM inventory_items`, db.DateArg(today),
	).Scan(&rep.TotalItems, &rep.TotalValue, &rep.LowStockCount, &rep.ExpiredCount)
	if err != nil {
		return nil, db.Classify("inventory report", err)
	}
	return &rep, nil
}

// =========== Transaction Repository ===========

type transactionRepoPG struct{ pool *pgxpool.Pool }

func NewTransactionRepoPG(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepoPG{pool: pool}
}

func (r *transactionRepoPG) Create(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO inventory_transactions (id, item_id, transaction_type, quantity, user_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING timestamp`,
		t.ID, t.ItemID, t.Type, t.Quantity, t.UserID, t.Notes,
	).Scan(&t.Timestamp)
	return db.Classify("insert inventory transaction", err)
}

func (r *transactionRepoPG) ListByItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transactions WHERE item_id = $1`, itemID).Scan(&total); err != nil {
		return nil, 0, db.Classify("count inventory transactions", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, item_id, transaction_type, quantity, timestamp, user_id, notes
		FROM inventory_transactions WHERE item_id = $1
		ORDER BY timestamp, id LIMIT $2 OFFSET $3`, itemID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list inventory transactions", err)
	}
	defer rows.Close()

	var items []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Type, &t.Quantity, &t.Timestamp, &t.UserID, &t.Notes); err != nil {
			return nil, 0, db.Classify("scan inventory transaction", err)
		}
		items = append(items, &t)
	}
	return items, total, db.Classify("list inventory transactions", rows.Err())
}
