package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/poflow/internal/core"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. Tests that
// need it are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return pool
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"unique", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key", &pgconn.PgError{Code: "23503"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := testPool(t)
	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestVendorStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewVendorStore(pool)

	name := uniqueName("대한건설")
	v, err := s.Insert(ctx, core.Vendor{
		Name:           name,
		Type:           core.VendorTypeBuyer,
		Representative: "홍길동",
		Email:          "a@example.com",
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if v.ID == 0 || v.CreatedAt.IsZero() {
		t.Errorf("Insert() should assign id and created_at, got %+v", v)
	}

	if _, err := s.Insert(ctx, core.Vendor{Name: name, Type: core.VendorTypeBuyer, IsActive: true}); !errors.Is(err, core.ErrVendorExists) {
		t.Errorf("duplicate Insert() error = %v, want ErrVendorExists", err)
	}
	// Same name as a delivery place is a different registry entry.
	if _, err := s.Insert(ctx, core.Vendor{Name: name, Type: core.VendorTypeDelivery, IsActive: true}); err != nil {
		t.Errorf("Insert() other type error = %v", err)
	}

	found, err := s.FindByName(ctx, name)
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if found == nil || found.ID != v.ID {
		t.Errorf("FindByName() = %+v, want id %d", found, v.ID)
	}

	missing, err := s.FindByName(ctx, uniqueName("없는업체"))
	if err != nil || missing != nil {
		t.Errorf("FindByName(missing) = %v, %v; want nil, nil", missing, err)
	}

	list, err := s.ListActive(ctx, core.VendorTypeBuyer)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	var seen bool
	for _, lv := range list {
		if lv.Type != core.VendorTypeBuyer {
			t.Errorf("ListActive returned type %q", lv.Type)
		}
		if lv.ID == v.ID {
			seen = true
		}
	}
	if !seen {
		t.Error("ListActive() should include the inserted vendor")
	}
}

func TestWorkflowStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewWorkflowStore(pool)

	id := uuid.NewString()
	if _, err := s.LoadWorkflow(ctx, id); !errors.Is(err, core.ErrWorkflowNotFound) {
		t.Fatalf("LoadWorkflow(missing) error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SaveWorkflow(ctx, id, now, []byte(`{"currentStep":"select"}`)); err != nil {
		t.Fatalf("SaveWorkflow() error = %v", err)
	}
	if err := s.SaveWorkflow(ctx, id, now.Add(time.Hour), []byte(`{"currentStep":"create"}`)); err != nil {
		t.Fatalf("SaveWorkflow() update error = %v", err)
	}

	blob, err := s.LoadWorkflow(ctx, id)
	if err != nil {
		t.Fatalf("LoadWorkflow() error = %v", err)
	}
	if got := string(blob); got != `{"currentStep": "create"}` && got != `{"currentStep":"create"}` {
		t.Errorf("LoadWorkflow() = %s", got)
	}

	refs, err := s.RecentWorkflows(ctx, core.RecentWorkflowLimit)
	if err != nil {
		t.Fatalf("RecentWorkflows() error = %v", err)
	}
	if len(refs) == 0 || len(refs) > core.RecentWorkflowLimit {
		t.Fatalf("RecentWorkflows() returned %d refs", len(refs))
	}

	if err := s.DeleteWorkflow(ctx, id); err != nil {
		t.Fatalf("DeleteWorkflow() error = %v", err)
	}
	if err := s.DeleteWorkflow(ctx, id); !errors.Is(err, core.ErrWorkflowNotFound) {
		t.Errorf("second DeleteWorkflow() error = %v", err)
	}
}

func TestOrderStore_AllOrNothing(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewOrderStore(pool)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	draft := func(num string) core.OrderDraft {
		return core.OrderDraft{
			OrderNumber: num,
			OrderDate:   day,
			DueDate:     day.AddDate(0, 0, 14),
			SiteName:    "본사",
			VendorName:  "대한건설",
			Items: []core.OrderItem{{
				Row: 2, ItemName: "철근",
				Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100),
				SupplyAmount: decimal.NewFromInt(1000), TaxAmount: decimal.NewFromInt(100),
				TotalAmount: decimal.NewFromInt(1100),
			}},
			SupplyTotal: decimal.NewFromInt(1000),
			TaxTotal:    decimal.NewFromInt(100),
			GrandTotal:  decimal.NewFromInt(1100),
		}
	}

	first := uniqueName("PO")
	created, err := s.CreateOrders(ctx, []core.OrderDraft{draft(first)})
	if err != nil {
		t.Fatalf("CreateOrders() error = %v", err)
	}
	if len(created) != 1 || created[0].ItemCount != 1 || !created[0].GrandTotal.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("CreateOrders() = %+v", created)
	}

	second := uniqueName("PO")
	_, err = s.CreateOrders(ctx, []core.OrderDraft{draft(second), draft(first)})
	if err == nil {
		t.Fatal("CreateOrders() with duplicate number should fail")
	}
	if core.MapError(err).Code != "DB001" {
		t.Errorf("duplicate maps to %s, want DB001", core.MapError(err).Code)
	}

	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM purchase_orders WHERE order_number = $1`, second).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("failed batch left %d rows for %s", n, second)
	}
}
