// Package inventory tracks stock levels of supplies and medications. Every
// change to an item's quantity is recorded as an append-only transaction in
// the same database transaction as the change itself.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/events"
	"github.com/hospital/hms/internal/platform/metrics"
)

const engine = "inventory"

type Service struct {
	tx           db.Transactor
	items        ItemRepository
	transactions TransactionRepository
	pub          events.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(tx db.Transactor, items ItemRepository, transactions TransactionRepository, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:           tx,
		items:        items,
		transactions: transactions,
		pub:          pub,
		logger:       logger.With().Str("engine", engine).Logger(),
		now:          time.Now,
	}
}

func (s *Service) done(op string, err error) error {
	metrics.ObserveOperation(engine, op, err)
	if err != nil {
		apperr.LogEvent(s.logger, err).Str("op", op).Msg("operation rejected")
	}
	return err
}

func (s *Service) today() civil.Date {
	return db.Today(s.now())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// record appends a transaction attributed to the authenticated caller.
func (s *Service) record(ctx context.Context, itemID uuid.UUID, typ TransactionType, qty int, notes string) error {
	return s.transactions.Create(ctx, &Transaction{
		ItemID:   itemID,
		Type:     typ,
		Quantity: qty,
		UserID:   optional(auth.UserIDFromContext(ctx)),
		Notes:    optional(notes),
	})
}

func (s *Service) emit(ctx context.Context, typ string, item *Item, qty int) {
	events.Emit(ctx, s.pub, s.logger, events.New(typ, engine, item.ID.String(), map[string]any{
		"name":     item.Name,
		"change":   qty,
		"quantity": item.Quantity,
	}))
	if typ == "inventory.consumed" && item.LowStock() {
		events.Emit(ctx, s.pub, s.logger, events.New("inventory.low_stock", engine, item.ID.String(), map[string]any{
			"name":          item.Name,
			"quantity":      item.Quantity,
			"min_threshold": item.MinThreshold,
		}))
	}
}

// AddInventoryItem stores a new item and logs its initial quantity as an
// add transaction.
func (s *Service) AddInventoryItem(ctx context.Context, req AddItemRequest) (*Item, error) {
	item := &Item{
		Name:            strings.TrimSpace(req.Name),
		StorageLocation: strings.TrimSpace(req.StorageLocation),
		ExpirationDate:  req.ExpirationDate,
		MinThreshold:    DefaultMinThreshold,
	}
	err := func() error {
		switch {
		case item.Name == "":
			return apperr.MissingField("name")
		case req.Quantity == nil:
			return apperr.MissingField("quantity")
		case req.UnitCost == nil:
			return apperr.MissingField("unit_cost")
		case item.StorageLocation == "":
			return apperr.MissingField("storage_location")
		case *req.Quantity < 0:
			return apperr.Invalid("quantity must not be negative")
		case req.UnitCost.IsNegative():
			return apperr.Invalid("unit_cost must not be negative")
		case req.MinThreshold != nil && *req.MinThreshold < 0:
			return apperr.Invalid("min_threshold must not be negative")
		}
		item.Quantity = *req.Quantity
		item.UnitCost = req.UnitCost.Round(2)
		if req.MinThreshold != nil {
			item.MinThreshold = *req.MinThreshold
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.items.Create(ctx, item); err != nil {
				return err
			}
			return s.record(ctx, item.ID, TxAdd, item.Quantity, req.Notes)
		})
	}()
	if err := s.done("add_item", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("item_id", item.ID.String()).Str("name", item.Name).Int("quantity", item.Quantity).Msg("inventory item added")
	s.emit(ctx, "inventory.item_added", item, item.Quantity)
	return item, nil
}

// ConsumeInventory removes qty units. Expired stock is refused before the
// quantity is considered, so an expired item reports Expired even when it
// is also short.
func (s *Service) ConsumeInventory(ctx context.Context, itemID uuid.UUID, qty int, notes string) (*Item, error) {
	var item *Item
	err := func() error {
		if qty <= 0 {
			return apperr.Invalid("quantity must be greater than zero")
		}
		today := s.today()
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if item, err = s.items.GetForUpdate(ctx, itemID); err != nil {
				return err
			}
			if item.ExpiredOn(today) {
				return apperr.New(apperr.KindInsufficientResource, apperr.CodeExpired,
					"inventory item %s expired on %s", item.ID, item.ExpirationDate)
			}
			if qty > item.Quantity {
				return apperr.New(apperr.KindInsufficientResource, apperr.CodeInsufficientStock,
					"inventory item %s has %d units, %d requested", item.ID, item.Quantity, qty)
			}
			item.Quantity -= qty
			if err := s.items.SetQuantity(ctx, item); err != nil {
				return err
			}
			return s.record(ctx, item.ID, TxConsume, qty, notes)
		})
	}()
	if err := s.done("consume", err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("item_id", itemID.String()).Int("consumed", qty).Int("remaining", item.Quantity).Msg("inventory consumed")
	s.emit(ctx, "inventory.consumed", item, -qty)
	return item, nil
}

// ReturnStock puts previously consumed units back on the shelf.
func (s *Service) ReturnStock(ctx context.Context, itemID uuid.UUID, qty int, notes string) (*Item, error) {
	return s.increase(ctx, "return", itemID, qty, TxReturn, notes, "inventory.returned")
}

// Restock records a delivery against an existing item.
func (s *Service) Restock(ctx context.Context, itemID uuid.UUID, qty int, notes string) (*Item, error) {
	return s.increase(ctx, "restock", itemID, qty, TxAdd, notes, "inventory.restocked")
}

func (s *Service) increase(ctx context.Context, op string, itemID uuid.UUID, qty int, typ TransactionType, notes, eventType string) (*Item, error) {
	var item *Item
	err := func() error {
		if qty <= 0 {
			return apperr.Invalid("quantity must be greater than zero")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if item, err = s.items.GetForUpdate(ctx, itemID); err != nil {
				return err
			}
			item.Quantity += qty
			if err := s.items.SetQuantity(ctx, item); err != nil {
				return err
			}
			return s.record(ctx, item.ID, typ, qty, notes)
		})
	}()
	if err := s.done(op, err); err != nil {
		return nil, err
	}
	s.logger.Info().Str("item_id", itemID.String()).Str("type", string(typ)).Int("quantity", item.Quantity).Msg("inventory increased")
	s.emit(ctx, eventType, item, qty)
	return item, nil
}

// UpdateStockLevel sets an absolute quantity, typically after a physical
// count, and logs the signed difference as an adjust transaction. Setting
// the current level again changes nothing and logs nothing.
func (s *Service) UpdateStockLevel(ctx context.Context, itemID uuid.UUID, newQty int, notes string) (*Item, error) {
	var (
		item  *Item
		delta int
	)
	err := func() error {
		if newQty < 0 {
			return apperr.Invalid("quantity must not be negative")
		}
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if item, err = s.items.GetForUpdate(ctx, itemID); err != nil {
				return err
			}
			delta = newQty - item.Quantity
			if delta == 0 {
				return nil
			}
			item.Quantity = newQty
			if err := s.items.SetQuantity(ctx, item); err != nil {
				return err
			}
			return s.record(ctx, item.ID, TxAdjust, delta, notes)
		})
	}()
	if err := s.done("adjust", err); err != nil {
		return nil, err
	}
	if delta != 0 {
		s.logger.Info().Str("item_id", itemID.String()).Int("delta", delta).Int("quantity", newQty).Msg("stock level updated")
		s.emit(ctx, "inventory.adjusted", item, delta)
	}
	return item, nil
}

// GetLowStockItems returns items at or below threshold, or at or below their
// own min_threshold when threshold is nil.
func (s *Service) GetLowStockItems(ctx context.Context, threshold *int) ([]*Item, error) {
	if threshold != nil && *threshold < 0 {
		return nil, s.done("low_stock", apperr.Invalid("threshold must not be negative"))
	}
	items, err := s.items.ListLowStock(ctx, threshold)
	if err := s.done("low_stock", err); err != nil {
		return nil, err
	}
	return items, nil
}

// GetExpiredItems returns items whose expiration date is before today (UTC).
func (s *Service) GetExpiredItems(ctx context.Context) ([]*Item, error) {
	items, err := s.items.ListExpired(ctx, s.today())
	if err := s.done("expired", err); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) InventoryReport(ctx context.Context) (*Report, error) {
	report, err := s.items.Report(ctx, s.today())
	if err := s.done("report", err); err != nil {
		return nil, err
	}
	return report, nil
}

// ValidateMedication confirms that medicationID names an inventory item.
// It participates in the caller's transaction when ctx carries one.
func (s *Service) ValidateMedication(ctx context.Context, medicationID uuid.UUID) (*Item, error) {
	item, err := s.items.GetByID(ctx, medicationID)
	if errors.Is(err, apperr.ErrNotFound) {
		err = apperr.New(apperr.KindNotFound, apperr.CodeMedicationNotFound, "medication %s not found", medicationID)
	}
	if err := s.done("validate_medication", err); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter, limit, offset int) ([]*Item, int, error) {
	return s.items.List(ctx, f, limit, offset)
}

// ListTransactions returns the item's ledger oldest first.
func (s *Service) ListTransactions(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, 0, err
	}
	return s.transactions.ListByItem(ctx, itemID, limit, offset)
}
