package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/poflow/internal/core"
)

const vendorColumns = `id, name, type, business_number, representative, contact_person,
	main_contact, email, phone, address, memo, is_active, created_at`

// VendorStore is a core.VendorRegistry over the vendors table.
type VendorStore struct {
	db DBTX
}

// NewVendorStore returns a VendorStore using db.
func NewVendorStore(db DBTX) *VendorStore {
	return &VendorStore{db: db}
}

func (s *VendorStore) ListActive(ctx context.Context, t core.VendorType) ([]core.Vendor, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE is_active AND type = $1 ORDER BY id`,
		string(t))
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var out []core.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return out, nil
}

func (s *VendorStore) FindByName(ctx context.Context, name string) (*core.Vendor, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE name = $1 ORDER BY id LIMIT 1`, name)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	return &v, nil
}

func (s *VendorStore) Insert(ctx context.Context, v core.Vendor) (core.Vendor, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO vendors (name, type, business_number, representative, contact_person,
			main_contact, email, phone, address, memo, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		v.Name, string(v.Type), v.BusinessNumber, v.Representative, v.ContactPerson,
		v.MainContact, v.Email, v.Phone, v.Address, v.Memo, v.IsActive,
	).Scan(&v.ID, &v.CreatedAt)
	if isUniqueViolation(err) {
		return core.Vendor{}, fmt.Errorf("%w: %s", core.ErrVendorExists, v.Name)
	}
	if err != nil {
		return core.Vendor{}, fmt.Errorf("insert vendor: %w", err)
	}
	return v, nil
}

func scanVendor(row pgx.Row) (core.Vendor, error) {
	var (
		v     core.Vendor
		vtype string
	)
	err := row.Scan(&v.ID, &v.Name, &vtype, &v.BusinessNumber, &v.Representative,
		&v.ContactPerson, &v.MainContact, &v.Email, &v.Phone, &v.Address, &v.Memo,
		&v.IsActive, &v.CreatedAt)
	v.Type = core.VendorType(vtype)
	return v, err
}
