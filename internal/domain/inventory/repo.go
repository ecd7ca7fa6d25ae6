package inventory

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// GetForUpdate holds a row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	SetQuantity(ctx context.Context, item *Item) error
	List(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error)
	// ListLowStock returns items with quantity <= threshold, or <= their own
	// min_threshold when threshold is nil.
	ListLowStock(ctx context.Context, threshold *int) ([]*Item, error)
	ListExpired(ctx context.Context, today civil.Date) ([]*Item, error)
	Report(ctx context.Context, today civil.Date) (*Report, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, t *Transaction) error
	ListByItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Transaction, int, error)
}
