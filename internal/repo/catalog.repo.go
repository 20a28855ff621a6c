package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"studio-checkout/internal/domain"
)

type CatalogItem struct {
	ID     uuid.UUID
	Type   domain.ItemType
	Name   string
	Price  decimal.Decimal
	Active bool
}

// CatalogRepo reads the current name and price of sellable items.
type CatalogRepo interface {
	FindItems(ctx context.Context, itemType domain.ItemType, ids []uuid.UUID) (map[uuid.UUID]CatalogItem, error)
	UpsertItem(ctx context.Context, item CatalogItem) error
}

type catalogRepo struct {
	store
}

func NewCatalogRepo(db *sql.DB, opts ...Option) CatalogRepo {
	return &catalogRepo{store: newStore(db, opts)}
}

var catalogTables = map[domain.ItemType]string{
	domain.ItemProduct:  "products",
	domain.ItemWorkshop: "workshops",
}

func (r *catalogRepo) FindItems(ctx context.Context, itemType domain.ItemType, ids []uuid.UUID) (map[uuid.UUID]CatalogItem, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	table, ok := catalogTables[itemType]
	if !ok {
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}
	found := make(map[uuid.UUID]CatalogItem, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, price, active FROM "+table+" WHERE id::text = ANY($1::text[])", keys)
	if err != nil {
		return nil, fmt.Errorf("find %s items: %w", itemType, err)
	}
	defer rows.Close()

	for rows.Next() {
		item := CatalogItem{Type: itemType}
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.Active); err != nil {
			return nil, err
		}
		found[item.ID] = item
	}
	return found, rows.Err()
}

func (r *catalogRepo) UpsertItem(ctx context.Context, item CatalogItem) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	table, ok := catalogTables[item.Type]
	if !ok {
		return fmt.Errorf("unknown item type %q", item.Type)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, name, price, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, active = EXCLUDED.active`,
		item.ID, item.Name, item.Price, item.Active,
	)
	return err
}
