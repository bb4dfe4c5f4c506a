package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is one line of a purchase order.
type OrderItem struct {
	Row            int             `json:"row"`
	ItemName       string          `json:"itemName"`
	Spec           string          `json:"spec,omitempty"`
	MajorCategory  string          `json:"majorCategory,omitempty"`
	MiddleCategory string          `json:"middleCategory,omitempty"`
	MinorCategory  string          `json:"minorCategory,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	SupplyAmount   decimal.Decimal `json:"supplyAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Notes          string          `json:"notes,omitempty"`
}

// OrderDraft is a purchase order assembled from spreadsheet rows that share
// an order number. Header fields come from the group's first row.
type OrderDraft struct {
	OrderNumber  string          `json:"orderNumber"`
	OrderDate    time.Time       `json:"orderDate"`
	DueDate      time.Time       `json:"dueDate"`
	SiteName     string          `json:"siteName"`
	VendorName   string          `json:"vendorName"`
	DeliveryName string          `json:"deliveryName,omitempty"`
	Items        []OrderItem     `json:"items"`
	SupplyTotal  decimal.Decimal `json:"supplyTotal"`
	TaxTotal     decimal.Decimal `json:"taxTotal"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
}

// CreatedOrder is returned by an OrderStore for each stored draft.
type CreatedOrder struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	ItemCount   int             `json:"itemCount"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
}

// OrderStore persists finalized orders. CreateOrders stores all drafts or
// none.
type OrderStore interface {
	CreateOrders(ctx context.Context, drafts []OrderDraft) ([]CreatedOrder, error)
}

// BuildOrderDrafts groups rows by order number, in first-seen order. Only
// rows whose status is valid or warning are used; the Excel row numbers of
// the others (empty rows excluded) are returned as skipped.
func BuildOrderDrafts(headers []string, rows [][]string, statuses []RowStatus) ([]OrderDraft, []int) {
	idx := MakeHeaderIndex(headers)
	get := func(row []string, col string) string {
		return CleanCell(cellAt(row, idx.Lookup(col)))
	}
	num := func(row []string, col string) decimal.Decimal {
		d, _ := ParseNumber(get(row, col))
		return d
	}
	date := func(row []string, col string) time.Time {
		t, _ := ParseDate(get(row, col))
		return t
	}

	var (
		drafts  []OrderDraft
		skipped []int
		byOrder = make(map[string]int)
	)
	for i, row := range rows {
		rowNumber := i + 2
		status := RowEmpty
		if i < len(statuses) {
			status = statuses[i]
		}
		switch status {
		case RowEmpty:
			continue
		case RowError:
			skipped = append(skipped, rowNumber)
			continue
		}

		orderNumber := get(row, ColOrderNumber)
		pos, ok := byOrder[orderNumber]
		if !ok {
			drafts = append(drafts, OrderDraft{
				OrderNumber:  orderNumber,
				OrderDate:    date(row, ColOrderDate),
				DueDate:      date(row, ColDueDate),
				SiteName:     get(row, ColSiteName),
				VendorName:   normalizeName(get(row, ColVendorName)),
				DeliveryName: normalizeName(get(row, ColDeliveryName)),
			})
			pos = len(drafts) - 1
			byOrder[orderNumber] = pos
		}

		item := OrderItem{
			Row:            rowNumber,
			ItemName:       get(row, ColItemName),
			Spec:           get(row, ColSpec),
			MajorCategory:  get(row, ColMajorCategory),
			MiddleCategory: get(row, ColMiddleCategory),
			MinorCategory:  get(row, ColMinorCategory),
			Quantity:       num(row, ColQuantity),
			UnitPrice:      num(row, ColUnitPrice),
			SupplyAmount:   num(row, ColSupplyAmt),
			TaxAmount:      num(row, ColTaxAmt),
			TotalAmount:    num(row, ColTotalAmt),
			Notes:          get(row, ColNotes),
		}
		d := &drafts[pos]
		d.Items = append(d.Items, item)
		d.SupplyTotal = d.SupplyTotal.Add(item.SupplyAmount)
		d.TaxTotal = d.TaxTotal.Add(item.TaxAmount)
		d.GrandTotal = d.GrandTotal.Add(item.TotalAmount)
	}
	return drafts, skipped
}

// MemoryOrderStore keeps orders in process memory. Order numbers are
// unique across calls.
type MemoryOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[string]OrderDraft
}

// NewMemoryOrderStore returns an empty store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]OrderDraft)}
}

func (s *MemoryOrderStore) CreateOrders(ctx context.Context, drafts []OrderDraft) ([]CreatedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range drafts {
		if _, ok := s.orders[d.OrderNumber]; ok {
			return nil, fmt.Errorf("create order %s: duplicate key", d.OrderNumber)
		}
	}
	out := make([]CreatedOrder, 0, len(drafts))
	for _, d := range drafts {
		s.nextID++
		s.orders[d.OrderNumber] = d
		out = append(out, CreatedOrder{
			ID:          s.nextID,
			OrderNumber: d.OrderNumber,
			ItemCount:   len(d.Items),
			GrandTotal:  d.GrandTotal,
		})
	}
	return out, nil
}

// Order returns a stored draft by order number.
func (s *MemoryOrderStore) Order(orderNumber string) (OrderDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.orders[orderNumber]
	return d, ok
}
