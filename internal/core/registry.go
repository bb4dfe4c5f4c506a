package core

// registry.go defines the vendor registry contract used by matching and
// registration, plus an in-memory implementation for tests and local runs.
//
// The registry is an explicit dependency. When it fails, callers get
// ErrRegistryUnavailable instead of fabricated data.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrRegistryUnavailable is wrapped by every error returned when the vendor
// registry cannot be read or written.
var ErrRegistryUnavailable = errors.New("vendor registry unavailable")

// ErrVendorExists is returned by Insert when a vendor with the same name
// and type is already registered.
var ErrVendorExists = errors.New("vendor already exists")

// VendorRegistry is the datastore behind vendor matching.
type VendorRegistry interface {
	// ListActive returns active vendors of the given type.
	ListActive(ctx context.Context, t VendorType) ([]Vendor, error)
	// FindByName returns the first vendor with exactly this name, any type.
	FindByName(ctx context.Context, name string) (*Vendor, error)
	// Insert stores v and returns it with ID and CreatedAt assigned. A
	// duplicate name and type fails with ErrVendorExists.
	Insert(ctx context.Context, v Vendor) (Vendor, error)
}

// RegistryError records which registry operation failed.
type RegistryError struct {
	Op  string
	Err error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRegistryUnavailable, e.Op, e.Err)
}

// Is makes errors.Is(err, ErrRegistryUnavailable) hold for every RegistryError.
func (e *RegistryError) Is(target error) bool {
	return target == ErrRegistryUnavailable
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func registryErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RegistryError
	if errors.As(err, &re) || errors.Is(err, ErrVendorExists) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RegistryError{Op: op, Err: err}
}

// MemoryRegistry is a VendorRegistry backed by a slice.
type MemoryRegistry struct {
	mu      sync.RWMutex
	vendors []Vendor
	nextID  int64
	now     func() time.Time
}

// NewMemoryRegistry returns a registry seeded with vendors. Seed entries
// without an ID are assigned one.
func NewMemoryRegistry(seed ...Vendor) *MemoryRegistry {
	r := &MemoryRegistry{now: time.Now}
	for _, v := range seed {
		if v.ID == 0 {
			r.nextID++
			v.ID = r.nextID
		} else if v.ID > r.nextID {
			r.nextID = v.ID
		}
		r.vendors = append(r.vendors, v)
	}
	return r
}

func (r *MemoryRegistry) ListActive(ctx context.Context, t VendorType) ([]Vendor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Vendor
	for _, v := range r.vendors {
		if v.IsActive && v.Type == t {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) FindByName(ctx context.Context, name string) (*Vendor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.vendors {
		if v.Name == name {
			found := v
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MemoryRegistry) Insert(ctx context.Context, v Vendor) (Vendor, error) {
	if err := ctx.Err(); err != nil {
		return Vendor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.vendors {
		if existing.Name == v.Name && existing.Type == v.Type {
			return Vendor{}, fmt.Errorf("%w: %s", ErrVendorExists, v.Name)
		}
	}
	r.nextID++
	v.ID = r.nextID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	r.vendors = append(r.vendors, v)
	return v, nil
}

// All returns a snapshot ordered by ID.
func (r *MemoryRegistry) All() []Vendor {
	r.mu.RLock()
	out := make([]Vendor, len(r.vendors))
	copy(out, r.vendors)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
