package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/poflow/internal/core"
)

// OrderStore is a core.OrderStore over purchase_orders and
// purchase_order_items.
type OrderStore struct {
	db TxBeginner
}

// NewOrderStore returns an OrderStore using db.
func NewOrderStore(db TxBeginner) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrders inserts every draft with its items in one transaction.
// A duplicate order number fails the whole batch.
func (s *OrderStore) CreateOrders(ctx context.Context, drafts []core.OrderDraft) ([]core.CreatedOrder, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	created := make([]core.CreatedOrder, 0, len(drafts))
	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO purchase_orders (order_number, order_date, due_date, site_name,
				vendor_name, delivery_name, supply_total, tax_total, grand_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric)
			RETURNING id`,
			d.OrderNumber, d.OrderDate, d.DueDate, d.SiteName, d.VendorName, d.DeliveryName,
			d.SupplyTotal.String(), d.TaxTotal.String(), d.GrandTotal.String(),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert order %s: %w", d.OrderNumber, err)
		}

		for i, it := range d.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO purchase_order_items (order_id, line_no, source_row, item_name, spec,
					major_category, middle_category, minor_category, quantity, unit_price,
					supply_amount, tax_amount, total_amount, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric,
					$11::numeric, $12::numeric, $13::numeric, $14)`,
				id, i+1, it.Row, it.ItemName, it.Spec,
				it.MajorCategory, it.MiddleCategory, it.MinorCategory,
				it.Quantity.String(), it.UnitPrice.String(),
				it.SupplyAmount.String(), it.TaxAmount.String(), it.TotalAmount.String(), it.Notes,
			)
			if err != nil {
				return nil, fmt.Errorf("insert order %s line %d: %w", d.OrderNumber, i+1, err)
			}
		}

		created = append(created, core.CreatedOrder{
			ID:          id,
			OrderNumber: d.OrderNumber,
			ItemCount:   len(d.Items),
			GrandTotal:  d.GrandTotal,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}
