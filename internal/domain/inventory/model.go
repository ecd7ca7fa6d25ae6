package inventory

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
)

// DefaultMinThreshold applies when an item is added without one.
const DefaultMinThreshold = 10

type TransactionType string

const (
	TxAdd     TransactionType = "add"
	TxConsume TransactionType = "consume"
	TxAdjust  TransactionType = "adjust"
	TxReturn  TransactionType = "return"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TxAdd, TxConsume, TxAdjust, TxReturn:
		return t, nil
	}
	return "", apperr.Invalid("invalid transaction type %q", s)
}

func (t *TransactionType) UnmarshalText(b []byte) error {
	v, err := ParseTransactionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Item maps to the inventory_items table.
type Item struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	ExpirationDate  *civil.Date     `db:"expiration_date" json:"expiration_date,omitempty"`
	StorageLocation string          `db:"storage_location" json:"storage_location"`
	MinThreshold    int             `db:"min_threshold" json:"min_threshold"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ExpiredOn reports whether the item's expiration date is strictly before
// today. Items without a date never expire.
func (i *Item) ExpiredOn(today civil.Date) bool {
	return i.ExpirationDate != nil && i.ExpirationDate.Before(today)
}

func (i *Item) LowStock() bool {
	return i.Quantity <= i.MinThreshold
}

// Transaction maps to the inventory_transactions table. Rows are never
// updated or deleted.
type Transaction struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ItemID    uuid.UUID       `db:"item_id" json:"item_id"`
	Type      TransactionType `db:"transaction_type" json:"transaction_type"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Timestamp time.Time       `db:"timestamp" json:"timestamp"`
	UserID    *string         `db:"user_id" json:"user_id,omitempty"`
	Notes     *string         `db:"notes" json:"notes,omitempty"`
}

// AddItemRequest uses pointers so an omitted quantity or cost is
// distinguishable from zero.
type AddItemRequest struct {
	Name            string           `json:"name"`
	Quantity        *int             `json:"quantity"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
	ExpirationDate  *civil.Date      `json:"expiration_date"`
	StorageLocation string           `json:"storage_location"`
	MinThreshold    *int             `json:"min_threshold"`
	Notes           string           `json:"notes"`
}

// StockRequest carries a quantity for consume, return, restock and level
// updates.
type StockRequest struct {
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type ItemFilter struct {
	Name            *string
	StorageLocation *string
}

// Report summarizes stock on hand.
type Report struct {
	TotalItems    int             `json:"total_items"`
	TotalValue    decimal.Decimal `json:"total_value"`
	LowStockCount int             `json:"low_stock_count"`
	ExpiredCount  int             `json:"expired_count"`
}
