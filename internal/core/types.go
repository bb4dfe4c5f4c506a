package core

import (
	"fmt"
	"strings"
	"time"
)

// VendorType classifies a registry entry. The two values are fixed by the
// purchase-order template: the ordering party column (거래처명) and the
// delivery destination column (납품처).
type VendorType string

const (
	VendorTypeBuyer    VendorType = "거래처"
	VendorTypeDelivery VendorType = "납품처"
)

// Valid reports whether t is one of the known vendor types.
func (t VendorType) Valid() bool {
	return t == VendorTypeBuyer || t == VendorTypeDelivery
}

// ParseVendorType converts user input into a VendorType.
func ParseVendorType(s string) (VendorType, error) {
	t := VendorType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVendorType, s)
	}
	return t, nil
}

// Vendor is a registry entry for a counterparty.
type Vendor struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Type           VendorType `json:"type"`
	BusinessNumber string     `json:"businessNumber,omitempty"`
	Representative string     `json:"representative"`
	ContactPerson  string     `json:"contactPerson"`
	MainContact    string     `json:"mainContact"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	Memo           string     `json:"memo,omitempty"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// VendorSuggestion is a near-match returned when no exact match exists.
// Similarity is a whole percentage in [0, 100].
type VendorSuggestion struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Type       VendorType `json:"type"`
	Similarity int        `json:"similarity"`
	Email      string     `json:"email,omitempty"`
	Phone      string     `json:"phone,omitempty"`
}

// VendorMatch is the outcome of validating one vendor name.
type VendorMatch struct {
	VendorName        string             `json:"vendorName"`
	Type              VendorType         `json:"vendorType"`
	Exists            bool               `json:"exists"`
	ExactMatch        *Vendor            `json:"exactMatch,omitempty"`
	Suggestions       []VendorSuggestion `json:"suggestions"`
	NeedsRegistration bool               `json:"needsRegistration"`
}

// TopSuggestion returns the best-ranked suggestion, if any.
func (m VendorMatch) TopSuggestion() (VendorSuggestion, bool) {
	if len(m.Suggestions) == 0 {
		return VendorSuggestion{}, false
	}
	return m.Suggestions[0], true
}

// VendorInput is the payload for registering a new vendor.
type VendorInput struct {
	Name           string     `json:"name" validate:"required,max=200"`
	Type           VendorType `json:"type" validate:"required,oneof=거래처 납품처"`
	BusinessNumber string     `json:"businessNumber" validate:"omitempty,max=20"`
	Representative string     `json:"representative" validate:"omitempty,max=100"`
	ContactPerson  string     `json:"contactPerson" validate:"omitempty,max=100"`
	Email          string     `json:"email" validate:"omitempty,email"`
	Phone          string     `json:"phone" validate:"omitempty,max=30"`
	Address        string     `json:"address" validate:"omitempty,max=300"`
}
