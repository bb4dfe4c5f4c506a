package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/poflow/internal/logging"
)

var (
	ErrSessionNotFound = errors.New("upload session not found")
	ErrSessionInvalid  = errors.New("upload session has validation errors")
	ErrNoFile          = errors.New("no file provided")
)

// DefaultSessionTTL is how long an upload session stays available after
// its last change.
const DefaultSessionTTL = 30 * time.Minute

// Observer receives domain events. The metrics package implements it; a
// nil Observer is allowed.
type Observer interface {
	UploadValidated(valid bool, rows int, d time.Duration)
	SuggestionsApplied(applied, failed int)
	OrdersCreated(n int)
	VendorRegistered(ok bool)
	WorkflowTransition(action string, step Step)
	PDFCleaned(files int, bytes int64)
}

type nopObserver struct{}

func (nopObserver) UploadValidated(bool, int, time.Duration) {}
func (nopObserver) SuggestionsApplied(int, int)              {}
func (nopObserver) OrdersCreated(int)                        {}
func (nopObserver) VendorRegistered(bool)                    {}
func (nopObserver) WorkflowTransition(string, Step)          {}
func (nopObserver) PDFCleaned(int, int64)                    {}

// Deps are the collaborators a Service is built from. Registry is
// required; missing stores fall back to in-memory ones.
type Deps struct {
	Registry  VendorRegistry
	Orders    OrderStore
	Workflows WorkflowStore
	PDF       *PDFStore
	Observer  Observer
}

// Options tune a Service. Zero values take the package defaults.
type Options struct {
	SimilarityThreshold  float64
	SuggestionLimit      int
	ConfidenceThreshold  int
	AmountTolerance      decimal.Decimal
	MaxConcurrentUploads int
	UploadWait           time.Duration
	SessionTTL           time.Duration
	ChunkSize            int
	MaxFileSize          int64
}

// Service is the entry point for uploads, vendor checks, workflows and PDF
// housekeeping. It is safe for concurrent use.
type Service struct {
	registry  VendorRegistry
	orders    OrderStore
	workflows WorkflowStore
	pdf       *PDFStore
	observer  Observer

	matcher     *Matcher
	registrar   *Registrar
	validator   *TemplateValidator
	suggester   *Suggester
	limiter     *UploadLimiter
	suggestOpts SuggestOptions
	sessionTTL  time.Duration
	chunkSize   int
	maxFileSize int64

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*uploadSession

	// wfMu serialises workflow load-modify-save cycles.
	wfMu sync.Mutex
}

// uploadSession is a validated workbook waiting for corrections or
// finalization.
type uploadSession struct {
	ID          string
	FileName    string
	Sheets      []string
	Headers     []string
	Rows        [][]string
	Result      ValidationResult
	Vendors     []SheetVendorCheck
	Suggestions []Suggestion
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NewService builds a Service from deps.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Registry == nil {
		return nil, errors.New("core: vendor registry is required")
	}
	if deps.Orders == nil {
		deps.Orders = NewMemoryOrderStore()
	}
	if deps.Workflows == nil {
		deps.Workflows = NewMemoryWorkflowStore()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if opts.AmountTolerance.IsZero() {
		opts.AmountTolerance = DefaultAmountTolerance
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	suggestOpts := DefaultSuggestOptions()
	if opts.ConfidenceThreshold > 0 {
		suggestOpts.ConfidenceThreshold = opts.ConfidenceThreshold
	}

	matcher := NewMatcher(deps.Registry, opts.SimilarityThreshold, opts.SuggestionLimit)
	return &Service{
		registry:    deps.Registry,
		orders:      deps.Orders,
		workflows:   deps.Workflows,
		pdf:         deps.PDF,
		observer:    deps.Observer,
		matcher:     matcher,
		registrar:   NewRegistrar(deps.Registry),
		validator:   NewTemplateValidator(opts.AmountTolerance),
		suggester:   NewSuggester(matcher),
		limiter:     NewUploadLimiter(opts.MaxConcurrentUploads, opts.UploadWait),
		suggestOpts: suggestOpts,
		sessionTTL:  opts.SessionTTL,
		chunkSize:   opts.ChunkSize,
		maxFileSize: opts.MaxFileSize,
		now:         time.Now,
		newID:       uuid.NewString,
		sessions:    make(map[string]*uploadSession),
	}, nil
}

// Matcher exposes the vendor matcher.
func (s *Service) Matcher() *Matcher { return s.matcher }

// UploadStatus reports limiter occupancy.
func (s *Service) UploadStatus() UploadLimiterStatus { return s.limiter.Status() }

// WaitForUploads blocks until in-flight validations finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) putSession(sess *uploadSession) {
	sess.ExpiresAt = s.now().Add(s.sessionTTL)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

func (s *Service) getSession(id string) (*uploadSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.now().After(sess.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *Service) dropSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// PurgeExpiredSessions drops sessions past their TTL and returns how many
// were removed.
func (s *Service) PurgeExpiredSessions() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// StartSessionJanitor purges expired sessions every interval until ctx is
// cancelled.
func (s *Service) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PurgeExpiredSessions(); n > 0 {
				slog.Debug("expired upload sessions purged", "count", n)
			}
		}
	}
}

// ValidateVendor matches one vendor name.
func (s *Service) ValidateVendor(ctx context.Context, name string, t VendorType, threshold float64) (VendorMatch, error) {
	if !t.Valid() {
		return VendorMatch{}, fmt.Errorf("%w: %q", ErrInvalidVendorType, t)
	}
	return s.matcher.ValidateWithThreshold(ctx, name, t, threshold)
}

// ValidateVendors checks a buyer and delivery pair as read from a sheet.
func (s *Service) ValidateVendors(ctx context.Context, vendorName, deliveryName string) (SheetVendorCheck, error) {
	return s.matcher.ValidateFromExcel(ctx, vendorName, deliveryName)
}

// RegisterVendor creates a single vendor.
func (s *Service) RegisterVendor(ctx context.Context, in VendorInput) (Vendor, error) {
	v, err := s.registrar.Register(ctx, in)
	s.observer.VendorRegistered(err == nil)
	return v, err
}

// RegisterVendors creates each vendor independently; failures do not undo
// earlier successes.
func (s *Service) RegisterVendors(ctx context.Context, inputs []VendorInput) BatchRegistration {
	res := s.registrar.RegisterMany(ctx, inputs)
	for range res.Registered {
		s.observer.VendorRegistered(true)
	}
	for range res.Failed {
		s.observer.VendorRegistered(false)
	}
	logging.FromContext(ctx).Info("vendor batch registered",
		slog.Int("total", res.Summary.Total),
		slog.Int("succeeded", res.Summary.Succeeded),
		slog.Int("failed", res.Summary.Failed),
	)
	return res
}

// CheckEmailConflict compares a sheet email with the registered one.
func (s *Service) CheckEmailConflict(ctx context.Context, vendorName, email string) (EmailConflict, error) {
	return s.matcher.CheckEmailConflict(ctx, vendorName, email)
}
