package core

// vendor.go matches vendor names from uploaded spreadsheets against the
// registry. An exact (case-sensitive) name match wins outright; otherwise
// active vendors of the same type are ranked by edit-distance similarity
// on lower-cased names and the best few above the threshold are returned.

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/JonMunkholm/poflow/internal/logging"
)

const (
	DefaultSimilarityThreshold = 0.8
	DefaultSuggestionLimit     = 5
)

// Matcher validates vendor names against a VendorRegistry.
type Matcher struct {
	registry  VendorRegistry
	threshold float64
	limit     int
}

// NewMatcher creates a matcher. Zero or out-of-range threshold and limit
// fall back to the defaults.
func NewMatcher(registry VendorRegistry, threshold float64, limit int) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	return &Matcher{registry: registry, threshold: threshold, limit: limit}
}

// Threshold returns the minimum similarity for a suggestion.
func (m *Matcher) Threshold() float64 { return m.threshold }

type scoredVendor struct {
	vendor     Vendor
	similarity float64
	distance   int
}

// Validate looks up name among active vendors of type t.
func (m *Matcher) Validate(ctx context.Context, name string, t VendorType) (VendorMatch, error) {
	return m.ValidateWithThreshold(ctx, name, t, m.threshold)
}

// ValidateWithThreshold is Validate with a per-call minimum similarity. A
// threshold outside (0, 1] falls back to the matcher's own.
func (m *Matcher) ValidateWithThreshold(ctx context.Context, name string, t VendorType, threshold float64) (VendorMatch, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = m.threshold
	}
	name = normalizeName(name)
	result := VendorMatch{
		VendorName:  name,
		Type:        t,
		Suggestions: []VendorSuggestion{},
	}

	vendors, err := m.registry.ListActive(ctx, t)
	if err != nil {
		return VendorMatch{}, registryErr("list active vendors", err)
	}

	for i := range vendors {
		if vendors[i].Name == name {
			exact := vendors[i]
			result.Exists = true
			result.ExactMatch = &exact
			return result, nil
		}
	}

	lower := strings.ToLower(name)
	scored := make([]scoredVendor, 0, len(vendors))
	for _, v := range vendors {
		candidate := strings.ToLower(v.Name)
		sim := Similarity(lower, candidate)
		if sim < threshold {
			continue
		}
		scored = append(scored, scoredVendor{
			vendor:     v,
			similarity: sim,
			distance:   EditDistance(lower, candidate),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].distance < scored[j].distance
	})
	if len(scored) > m.limit {
		scored = scored[:m.limit]
	}

	for _, s := range scored {
		result.Suggestions = append(result.Suggestions, VendorSuggestion{
			ID:         s.vendor.ID,
			Name:       s.vendor.Name,
			Type:       s.vendor.Type,
			Similarity: int(math.Round(s.similarity * 100)),
			Email:      s.vendor.Email,
			Phone:      s.vendor.Phone,
		})
	}
	result.NeedsRegistration = len(result.Suggestions) == 0

	logging.FromContext(ctx).Debug("vendor validated",
		"vendor", name,
		"type", string(t),
		"suggestions", len(result.Suggestions),
	)
	return result, nil
}

// Action kinds returned by ValidateFromExcel.
const (
	ActionConfirmVendorSuggestion   = "confirm_vendor_suggestion"
	ActionRegisterNewVendor         = "register_new_vendor"
	ActionConfirmDeliverySuggestion = "confirm_supplier_suggestion"
	ActionRegisterNewDelivery       = "register_new_supplier"
)

// VendorAction tells the user what to do about an unmatched name.
type VendorAction struct {
	Type        string             `json:"type"`
	Message     string             `json:"message"`
	VendorName  string             `json:"vendorName"`
	VendorType  VendorType         `json:"vendorType"`
	Suggestions []VendorSuggestion `json:"suggestions,omitempty"`
}

// SheetVendorCheck validates the ordering vendor and optional delivery
// destination of one spreadsheet row or order.
type SheetVendorCheck struct {
	Vendor   VendorMatch    `json:"vendorValidation"`
	Delivery *VendorMatch   `json:"supplierValidation,omitempty"`
	AllValid bool           `json:"allValid"`
	Actions  []VendorAction `json:"actions"`
}

// ValidateFromExcel validates a buyer name and, when present, a delivery
// destination name, producing follow-up actions for anything unmatched.
func (m *Matcher) ValidateFromExcel(ctx context.Context, vendorName, deliveryName string) (SheetVendorCheck, error) {
	check := SheetVendorCheck{AllValid: true, Actions: []VendorAction{}}

	vm, err := m.Validate(ctx, vendorName, VendorTypeBuyer)
	if err != nil {
		return SheetVendorCheck{}, err
	}
	check.Vendor = vm
	if !vm.Exists {
		check.AllValid = false
		check.Actions = append(check.Actions, actionFor(vm,
			ActionConfirmVendorSuggestion, ActionRegisterNewVendor, "거래처"))
	}

	deliveryName = normalizeName(deliveryName)
	if deliveryName != "" {
		dm, err := m.Validate(ctx, deliveryName, VendorTypeDelivery)
		if err != nil {
			return SheetVendorCheck{}, err
		}
		check.Delivery = &dm
		if !dm.Exists {
			check.AllValid = false
			check.Actions = append(check.Actions, actionFor(dm,
				ActionConfirmDeliverySuggestion, ActionRegisterNewDelivery, "납품처"))
		}
	}

	return check, nil
}

func actionFor(m VendorMatch, confirm, register, label string) VendorAction {
	if len(m.Suggestions) > 0 {
		return VendorAction{
			Type:        confirm,
			Message:     "'" + m.VendorName + "' " + label + "와 유사한 업체가 있습니다. 선택하시거나 새로 등록하세요.",
			VendorName:  m.VendorName,
			VendorType:  m.Type,
			Suggestions: m.Suggestions,
		}
	}
	return VendorAction{
		Type:       register,
		Message:    "'" + m.VendorName + "' " + label + "가 등록되지 않았습니다. 새로 등록하시겠습니까?",
		VendorName: m.VendorName,
		VendorType: m.Type,
	}
}

// EmailConflict compares a registry email with the one in the spreadsheet.
type EmailConflict struct {
	Conflict      bool   `json:"hasConflict"`
	VendorFound   bool   `json:"vendorFound"`
	VendorID      int64  `json:"vendorId,omitempty"`
	RegistryEmail string `json:"dbEmail,omitempty"`
	ExcelEmail    string `json:"excelEmail"`
}

// CheckEmailConflict reports whether vendorName is registered with an email
// different from excelEmail. Comparison ignores case and surrounding space.
func (m *Matcher) CheckEmailConflict(ctx context.Context, vendorName, excelEmail string) (EmailConflict, error) {
	out := EmailConflict{ExcelEmail: strings.TrimSpace(excelEmail)}

	v, err := m.registry.FindByName(ctx, normalizeName(vendorName))
	if err != nil {
		return EmailConflict{}, registryErr("find vendor by name", err)
	}
	if v == nil {
		return out, nil
	}

	out.VendorFound = true
	out.VendorID = v.ID
	out.RegistryEmail = v.Email
	if out.ExcelEmail != "" && v.Email != "" &&
		!strings.EqualFold(strings.TrimSpace(v.Email), out.ExcelEmail) {
		out.Conflict = true
	}
	return out, nil
}
