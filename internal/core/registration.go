package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"github.com/JonMunkholm/poflow/internal/logging"
)

var (
	ErrVendorNameRequired = errors.New("vendor name is required")
	ErrInvalidVendorType  = errors.New("invalid vendor type")
	ErrInvalidVendorInput = errors.New("invalid vendor input")
)

// Placeholders written when a vendor is created from a spreadsheet row
// that carries nothing but a name.
const (
	placeholderContact = "미입력"
	autoCreatedMemo    = "Excel 업로드 시 자동 생성"
	defaultPhoneRegion = "KR"
)

// Registrar creates vendors in the registry.
type Registrar struct {
	registry VendorRegistry
	validate *validator.Validate
	now      func() time.Time
}

// NewRegistrar creates a registrar writing to registry.
func NewRegistrar(registry VendorRegistry) *Registrar {
	return &Registrar{
		registry: registry,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Register validates in, fills placeholders for missing contact data and
// inserts the vendor as active.
func (r *Registrar) Register(ctx context.Context, in VendorInput) (Vendor, error) {
	in.Name = normalizeName(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" {
		return Vendor{}, ErrVendorNameRequired
	}
	if !in.Type.Valid() {
		return Vendor{}, fmt.Errorf("%w: %q", ErrInvalidVendorType, in.Type)
	}
	if err := r.validate.Struct(in); err != nil {
		return Vendor{}, describeValidation(err)
	}

	now := r.now()
	v := Vendor{
		Name:           in.Name,
		Type:           in.Type,
		BusinessNumber: strings.TrimSpace(in.BusinessNumber),
		Representative: orDefault(in.Representative, placeholderContact),
		ContactPerson:  orDefault(in.ContactPerson, placeholderContact),
		MainContact:    orDefault(in.ContactPerson, placeholderContact),
		Email:          orDefault(in.Email, fmt.Sprintf("auto-%d@example.com", now.UnixMilli())),
		Phone:          normalizePhone(in.Phone),
		Address:        strings.TrimSpace(in.Address),
		Memo:           autoCreatedMemo,
		IsActive:       true,
		CreatedAt:      now,
	}

	created, err := r.registry.Insert(ctx, v)
	if err != nil {
		return Vendor{}, registryErr("insert vendor", err)
	}

	logging.FromContext(ctx).Info("vendor registered",
		"vendor_id", created.ID,
		"vendor", created.Name,
		"type", string(created.Type),
	)
	return created, nil
}

// RegistrationFailure records why one entry of a batch was rejected.
type RegistrationFailure struct {
	Input VendorInput `json:"vendorData"`
	Error string      `json:"error"`
}

// RegistrationSummary counts batch outcomes.
type RegistrationSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchRegistration is the result of RegisterMany.
type BatchRegistration struct {
	Success    bool                  `json:"success"`
	Registered []Vendor              `json:"registered"`
	Failed     []RegistrationFailure `json:"failed"`
	Summary    RegistrationSummary   `json:"summary"`
}

// RegisterMany registers each input independently. Earlier successes are
// kept when a later entry fails.
func (r *Registrar) RegisterMany(ctx context.Context, inputs []VendorInput) BatchRegistration {
	out := BatchRegistration{
		Registered: []Vendor{},
		Failed:     []RegistrationFailure{},
	}
	for _, in := range inputs {
		v, err := r.Register(ctx, in)
		if err != nil {
			out.Failed = append(out.Failed, RegistrationFailure{Input: in, Error: err.Error()})
			continue
		}
		out.Registered = append(out.Registered, v)
	}
	out.Summary = RegistrationSummary{
		Total:     len(inputs),
		Succeeded: len(out.Registered),
		Failed:    len(out.Failed),
	}
	out.Success = out.Summary.Failed == 0
	return out
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// normalizePhone formats Korean numbers as E.164. Anything the parser
// rejects is stored as typed.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, err := libphonenumber.Parse(raw, defaultPhoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return raw
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidVendorInput, strings.Join(parts, ", "))
}
