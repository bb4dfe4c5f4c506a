package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/poflow/internal/logging"
)

// SessionReport is what a client sees of an upload session.
type SessionReport struct {
	SessionID   string             `json:"sessionId,omitempty"`
	FileName    string             `json:"fileName"`
	Validation  ValidationResult   `json:"validation"`
	Vendors     []SheetVendorCheck `json:"vendorValidation"`
	Suggestions []Suggestion       `json:"suggestions"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
}

func (sess *uploadSession) report() *SessionReport {
	expires := sess.ExpiresAt
	return &SessionReport{
		SessionID:   sess.ID,
		FileName:    sess.FileName,
		Validation:  sess.Result,
		Vendors:     sess.Vendors,
		Suggestions: sess.Suggestions,
		ExpiresAt:   &expires,
	}
}

// ValidateUpload parses and validates an uploaded workbook, checks every
// distinct vendor pair against the registry and computes suggestions. A
// session is kept whenever the Input sheet could be read, even if rows
// failed; a file that cannot be parsed yields a report without a session.
// The upload is spooled to disk and read in chunks, so MaxFileSize holds
// for every upload; CSV files are converted to a workbook first.
func (s *Service) ValidateUpload(ctx context.Context, fileName string, r io.Reader) (*SessionReport, error) {
	if r == nil || fileName == "" {
		return nil, ErrNoFile
	}
	isCSV := strings.EqualFold(filepath.Ext(fileName), ".csv")
	if !isCSV {
		if err := CheckExtension(fileName); err != nil {
			return nil, err
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx = logging.ContextWith(ctx, "file", fileName)
	log := logging.FromContext(ctx)
	start := s.now()

	dir, err := os.MkdirTemp("", "poflow-upload-*")
	if err != nil {
		return nil, fmt.Errorf("upload temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	proc := s.streamProcessor(ctx)
	path, err := s.spoolUpload(ctx, proc, dir, fileName, isCSV, r)
	if err != nil {
		return nil, err
	}

	var (
		result ValidationResult
		wb     *Workbook
	)
	sheets, err := proc.ParseWorkbook(ctx, path)
	switch {
	case err == nil:
		result, wb = s.validator.ValidateSheets(fileName, sheets)
	case errors.Is(err, ErrFileTooLarge), ctx.Err() != nil:
		return nil, err
	default:
		result = unreadableResult(err)
	}

	if wb == nil || !wb.HasSheet(InputSheet) {
		s.observer.UploadValidated(false, 0, time.Since(start))
		log.Info("upload rejected", slog.Any("errors", result.Errors))
		return &SessionReport{
			FileName:    fileName,
			Validation:  result,
			Vendors:     []SheetVendorCheck{},
			Suggestions: []Suggestion{},
		}, nil
	}

	sess := &uploadSession{
		ID:        s.newID(),
		FileName:  fileName,
		Sheets:    wb.Sheets,
		Headers:   wb.Headers,
		Rows:      wb.Rows,
		Result:    result,
		CreatedAt: s.now(),
	}
	if err := s.analyse(ctx, sess); err != nil {
		return nil, err
	}
	s.putSession(sess)

	s.observer.UploadValidated(result.IsValid, result.Summary.TotalRows, time.Since(start))
	log.Info("upload validated",
		slog.String("session_id", sess.ID),
		slog.Bool("valid", result.IsValid),
		slog.Int("rows", result.Summary.TotalRows),
		slog.Int("valid_rows", result.Summary.ValidRows),
		slog.Int("suggestions", len(sess.Suggestions)),
	)
	return sess.report(), nil
}

// streamProcessor returns a processor sized from the service options that
// reports progress to the request logger.
func (s *Service) streamProcessor(ctx context.Context) *StreamProcessor {
	log := logging.FromContext(ctx)
	return &StreamProcessor{
		ChunkSize:   s.chunkSize,
		MaxFileSize: s.maxFileSize,
		OnProgress: func(p StreamProgress) {
			log.Debug("file progress", slog.Float64("percent", p.Percent), slog.String("message", p.Message))
		},
	}
}

// spoolUpload copies r into dir and returns the path of a workbook ready
// for ParseWorkbook. At most MaxFileSize+1 bytes are copied so the
// processor's size check sees oversized uploads.
func (s *Service) spoolUpload(ctx context.Context, proc *StreamProcessor, dir, fileName string, isCSV bool, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	src := filepath.Join(dir, "upload"+ext)
	f, err := os.Create(src)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	_, err = io.Copy(f, io.LimitReader(r, s.maxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if !isCSV {
		return src, nil
	}

	dst := filepath.Join(dir, "upload.xlsx")
	if _, err := proc.ConvertCSV(ctx, src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// analyse fills the vendor checks and suggestions of sess from its
// current rows and result.
func (s *Service) analyse(ctx context.Context, sess *uploadSession) error {
	vendors, err := s.vendorChecks(ctx, sess.Headers, sess.Rows, sess.Result.Rows)
	if err != nil {
		return err
	}
	sess.Vendors = vendors

	suggestions, err := s.suggester.Suggest(ctx, sess.Headers, sess.Rows, sess.Result, s.suggestOpts)
	if err != nil {
		return err
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	sess.Suggestions = suggestions
	return nil
}

// vendorChecks runs ValidateFromExcel once per distinct buyer and delivery
// pair among non-empty rows.
func (s *Service) vendorChecks(ctx context.Context, headers []string, rows [][]string, statuses []RowStatus) ([]SheetVendorCheck, error) {
	idx := MakeHeaderIndex(headers)
	vendorCol, deliveryCol := idx.Lookup(ColVendorName), idx.Lookup(ColDeliveryName)
	if vendorCol < 0 {
		return []SheetVendorCheck{}, nil
	}

	type pair struct{ vendor, delivery string }
	seen := make(map[pair]bool)
	out := []SheetVendorCheck{}
	for i, row := range rows {
		if i < len(statuses) && statuses[i] == RowEmpty {
			continue
		}
		p := pair{
			vendor:   normalizeName(CleanCell(cellAt(row, vendorCol))),
			delivery: normalizeName(CleanCell(cellAt(row, deliveryCol))),
		}
		if p.vendor == "" || seen[p] {
			continue
		}
		seen[p] = true
		check, err := s.matcher.ValidateFromExcel(ctx, p.vendor, p.delivery)
		if err != nil {
			return nil, err
		}
		out = append(out, check)
	}
	return out, nil
}

// QuickValidate checks workbook structure without validating cells.
func (s *Service) QuickValidate(ctx context.Context, fileName string, r io.Reader) (QuickCheck, error) {
	if r == nil || fileName == "" {
		return QuickCheck{}, ErrNoFile
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return QuickCheck{}, err
	}
	defer s.limiter.Release()
	return QuickValidate(r, fileName), nil
}

// Session returns the current report of an upload session.
func (s *Service) Session(ctx context.Context, id string) (*SessionReport, error) {
	sess, err := s.getSession(id)
	if err != nil {
		return nil, err
	}
	return sess.report(), nil
}

// ExportSession writes the session's Input sheet, including applied
// suggestions, to w as an xlsx workbook.
func (s *Service) ExportSession(ctx context.Context, id string, w io.Writer) error {
	sess, err := s.getSession(id)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "poflow-export-*")
	if err != nil {
		return fmt.Errorf("export temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	rows := make([][]string, 0, len(sess.Rows)+1)
	rows = append(rows, sess.Headers)
	rows = append(rows, sess.Rows...)
	path := filepath.Join(dir, "export.xlsx")
	if err := s.streamProcessor(ctx).WriteWorkbook(ctx, []SheetData{{Name: InputSheet, Rows: rows}}, path); err != nil {
		return fmt.Errorf("export session %s: %w", id, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("export session %s: %w", id, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("export session %s: %w", id, err)
	}
	logging.FromContext(ctx).Info("session exported", slog.String("session_id", id), slog.Int("rows", len(sess.Rows)))
	return nil
}

// ApplyReport is the outcome of applying suggestions to a session.
type ApplyReport struct {
	Applied ApplyResult    `json:"applied"`
	Session *SessionReport `json:"session"`
}

// ApplySuggestions writes the chosen suggestions into the session's rows
// and re-validates. Suggestions are recomputed against the new rows.
func (s *Service) ApplySuggestions(ctx context.Context, sessionID string, ids []string) (*ApplyReport, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	rows, applied := ApplySuggestions(sess.Headers, sess.Rows, sess.Suggestions, ids)
	result := s.validator.ValidateRows(sess.Headers, rows)
	wb := &Workbook{Sheets: sess.Sheets}
	if missing := wb.MissingSupplementary(); len(missing) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("필수 시트가 누락되었습니다: %s", strings.Join(missing, ", ")))
	}

	next := &uploadSession{
		ID:        sess.ID,
		FileName:  sess.FileName,
		Sheets:    sess.Sheets,
		Headers:   sess.Headers,
		Rows:      rows,
		Result:    result,
		CreatedAt: sess.CreatedAt,
	}
	if err := s.analyse(ctx, next); err != nil {
		return nil, err
	}
	s.putSession(next)

	s.observer.SuggestionsApplied(applied.Applied, applied.Failed)
	logging.FromContext(ctx).Info("suggestions applied",
		slog.String("session_id", sessionID),
		slog.Int("applied", applied.Applied),
		slog.Int("failed", applied.Failed),
		slog.Bool("valid", result.IsValid),
	)
	return &ApplyReport{Applied: applied, Session: next.report()}, nil
}

// FinalizeResult reports the orders created from a session.
type FinalizeResult struct {
	SessionID   string         `json:"sessionId"`
	Orders      []CreatedOrder `json:"orders"`
	SkippedRows []int          `json:"skippedRows"`
	Warnings    []string       `json:"warnings"`
}

// Finalize turns a valid session into orders. Rows sharing an order
// number become one order with several items; rows with errors are
// skipped and reported. The session is discarded once the orders are
// stored.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Result.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrSessionInvalid, strings.Join(sess.Result.Errors, "; "))
	}

	drafts, skipped := BuildOrderDrafts(sess.Headers, sess.Rows, sess.Result.Rows)
	created, err := s.orders.CreateOrders(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("create orders: %w", err)
	}
	s.dropSession(sessionID)
	s.observer.OrdersCreated(len(created))

	if skipped == nil {
		skipped = []int{}
	}
	logging.FromContext(ctx).Info("upload finalized",
		slog.String("session_id", sessionID),
		slog.Int("orders", len(created)),
		slog.Int("skipped_rows", len(skipped)),
	)
	return &FinalizeResult{
		SessionID:   sessionID,
		Orders:      created,
		SkippedRows: skipped,
		Warnings:    sess.Result.Warnings,
	}, nil
}
