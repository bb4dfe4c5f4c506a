package core

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildOrderDrafts(t *testing.T) {
	headers := append(slices.Clone(testHeaders), ColSpec, ColDeliveryName)
	rows := [][]string{
		append(testRow(nil), "D13", "서울물류센터"),
		append(testRow(map[string]string{ColItemName: "시멘트"}), "40kg", ""),
		{},
		append(testRow(map[string]string{ColOrderNumber: "PO-002", ColVendorName: " 대한  건설 "}), "", ""),
		append(testRow(map[string]string{ColOrderNumber: "PO-003", ColQuantity: "x"}), "", ""),
	}
	statuses := []RowStatus{RowValid, RowWarning, RowEmpty, RowValid, RowError}

	drafts, skipped := BuildOrderDrafts(headers, rows, statuses)

	if !slices.Equal(skipped, []int{6}) {
		t.Errorf("skipped = %v, want [6]", skipped)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}

	po1 := drafts[0]
	if po1.OrderNumber != "PO-001" || len(po1.Items) != 2 {
		t.Fatalf("first draft = %+v", po1)
	}
	if po1.Items[0].Row != 2 || po1.Items[1].Row != 3 || po1.Items[1].ItemName != "시멘트" || po1.Items[1].Spec != "40kg" {
		t.Errorf("items = %+v", po1.Items)
	}
	if !po1.GrandTotal.Equal(decimal.NewFromInt(2200)) || !po1.SupplyTotal.Equal(decimal.NewFromInt(2000)) || !po1.TaxTotal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("totals = %s / %s / %s", po1.SupplyTotal, po1.TaxTotal, po1.GrandTotal)
	}
	if !po1.DueDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) || po1.DeliveryName != "서울물류센터" {
		t.Errorf("header fields = %+v", po1)
	}

	if drafts[1].VendorName != "대한 건설" {
		t.Errorf("vendor name = %q, want normalized", drafts[1].VendorName)
	}
}

func TestBuildOrderDrafts_ShortStatuses(t *testing.T) {
	drafts, skipped := BuildOrderDrafts(testHeaders, [][]string{testRow(nil), testRow(nil)}, []RowStatus{RowValid})
	if len(drafts) != 1 || len(drafts[0].Items) != 1 || len(skipped) != 0 {
		t.Errorf("rows without a status should be ignored: %+v %v", drafts, skipped)
	}
}

func TestMemoryOrderStore(t *testing.T) {
	s := NewMemoryOrderStore()
	ctx := context.Background()

	drafts, _ := BuildOrderDrafts(testHeaders, [][]string{
		testRow(nil),
		testRow(map[string]string{ColOrderNumber: "PO-002"}),
	}, []RowStatus{RowValid, RowValid})

	created, err := s.CreateOrders(ctx, drafts)
	if err != nil {
		t.Fatalf("CreateOrders() error = %v", err)
	}
	if len(created) != 2 || created[0].ID != 1 || created[1].ID != 2 || created[1].ItemCount != 1 {
		t.Errorf("created = %+v", created)
	}
	if _, ok := s.Order("PO-002"); !ok {
		t.Error("stored order not found")
	}

	again, _ := BuildOrderDrafts(testHeaders, [][]string{
		testRow(map[string]string{ColOrderNumber: "PO-003"}),
		testRow(nil),
	}, []RowStatus{RowValid, RowValid})
	if _, err := s.CreateOrders(ctx, again); MapError(err).Code != "DB001" {
		t.Errorf("duplicate order error = %v", err)
	}
	if _, ok := s.Order("PO-003"); ok {
		t.Error("a failed batch must not store any order")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.CreateOrders(cancelled, nil); err == nil {
		t.Error("cancelled context should fail")
	}
}
