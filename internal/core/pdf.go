package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/poflow/internal/logging"
)

// PDFKind selects one of the managed PDF directories.
type PDFKind string

const (
	PDFTemp    PDFKind = "temp"
	PDFArchive PDFKind = "archive"
	PDFOrders  PDFKind = "orders"
)

// ParsePDFKind validates a directory name from a request path.
func ParsePDFKind(s string) (PDFKind, error) {
	switch k := PDFKind(s); k {
	case PDFTemp, PDFArchive, PDFOrders:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPDFKind, s)
}

const (
	minPDFSize     = 1024
	pdfCleanupLock = "poflow:pdf:cleanup"
	pdfLockTTL     = 5 * time.Minute
)

var (
	ErrUnknownPDFKind = errors.New("unknown pdf directory")
	ErrSourceMissing  = errors.New("source pdf does not exist")
	// ErrLockHeld is returned by a Locker when another holder owns the key.
	ErrLockHeld = errors.New("lock held elsewhere")
)

// Locker provides mutual exclusion for maintenance jobs. The returned
// release func must be called once the work is done.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// LocalLocker is an in-process Locker. It never waits: a held key fails
// with ErrLockHeld.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLockHeld
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, nil
}

// PDFDirs are the managed directories.
type PDFDirs struct {
	Temp    string
	Archive string
	Orders  string
}

// DefaultPDFDirs roots the managed directories under base.
func DefaultPDFDirs(base string) PDFDirs {
	return PDFDirs{
		Temp:    filepath.Join(base, "temp-pdf"),
		Archive: filepath.Join(base, "pdf-archive"),
		Orders:  filepath.Join(base, "order-pdfs"),
	}
}

func (d PDFDirs) path(kind PDFKind) (string, error) {
	switch kind {
	case PDFTemp:
		return d.Temp, nil
	case PDFArchive:
		return d.Archive, nil
	case PDFOrders:
		return d.Orders, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPDFKind, kind)
}

// PDFFileInfo describes a stored PDF. OrderNumber and VendorName come from
// the file name when it follows the archive naming scheme.
type PDFFileInfo struct {
	Path        string    `json:"path"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	IsValid     bool      `json:"isValid"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	VendorName  string    `json:"vendorName,omitempty"`
}

// CleanupOptions tune CleanupTemp. Zero values take the defaults.
type CleanupOptions struct {
	MaxAge     time.Duration
	MaxSize    int64
	KeepRecent int
	DryRun     bool
}

// DefaultCleanupOptions is the on-demand cleanup policy.
var DefaultCleanupOptions = CleanupOptions{
	MaxAge:     24 * time.Hour,
	MaxSize:    500 * 1024 * 1024,
	KeepRecent: 10,
}

// MaintenanceCleanupOptions is the stricter policy used by the scheduled job.
var MaintenanceCleanupOptions = CleanupOptions{
	MaxAge:     2 * time.Hour,
	MaxSize:    200 * 1024 * 1024,
	KeepRecent: 20,
}

func (o CleanupOptions) withDefaults() CleanupOptions {
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultCleanupOptions.MaxAge
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultCleanupOptions.MaxSize
	}
	if o.KeepRecent <= 0 {
		o.KeepRecent = DefaultCleanupOptions.KeepRecent
	}
	return o
}

// CleanupResult reports a CleanupTemp run. TotalSize is the temp
// directory size before the run.
type CleanupResult struct {
	Cleaned   int      `json:"cleaned"`
	Freed     int64    `json:"freed"`
	TotalSize int64    `json:"totalSize"`
	Errors    []string `json:"errors"`
	DryRun    bool     `json:"dryRun"`
}

// DirStats is a file count and byte total.
type DirStats struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// StorageStats covers every managed directory.
type StorageStats struct {
	Temp    DirStats `json:"temp"`
	Archive DirStats `json:"archive"`
	Orders  DirStats `json:"orders"`
	Total   DirStats `json:"total"`
}

// PDFStore manages the PDF directories.
type PDFStore struct {
	dirs   PDFDirs
	locker Locker
	now    func() time.Time
}

// NewPDFStore returns a store over dirs. A nil locker uses a LocalLocker.
func NewPDFStore(dirs PDFDirs, locker Locker) *PDFStore {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &PDFStore{dirs: dirs, locker: locker, now: time.Now}
}

// Dirs returns the managed directories.
func (s *PDFStore) Dirs() PDFDirs { return s.dirs }

// Init creates every managed directory.
func (s *PDFStore) Init() error {
	for _, dir := range []string{s.dirs.Temp, s.dirs.Archive, s.dirs.Orders} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pdf dir %s: %w", dir, err)
		}
	}
	return nil
}

// ArchiveName builds the archive file name for an order PDF.
func ArchiveName(orderNumber, vendorName string, at time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))
	if orderNumber == "" {
		return fmt.Sprintf("pdf_%s.pdf", ts)
	}
	if vendorName == "" {
		vendorName = "unknown"
	}
	return fmt.Sprintf("%s_%s_%s.pdf", sanitizeFileSegment(orderNumber), sanitizeFileSegment(vendorName), ts)
}

// sanitizeFileSegment keeps a name segment from introducing separators.
func sanitizeFileSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '_', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
}

// Archive copies src into the archive directory and returns the new path.
// The source is left in place.
func (s *PDFStore) Archive(ctx context.Context, src, orderNumber, vendorName string) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	dst := filepath.Join(s.dirs.Archive, ArchiveName(orderNumber, vendorName, s.now()))
	if err := NewStreamProcessor().CopyFile(ctx, src, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", src, err)
	}
	logging.FromContext(ctx).Info("pdf archived", slog.String("src", src), slog.String("dst", dst))
	return dst, nil
}

type pdfEntry struct {
	path string
	info os.FileInfo
}

// readPDFs lists *.pdf files in dir. A missing directory is empty.
func readPDFs(dir string) ([]pdfEntry, []string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var (
		out  []pdfEntry
		errs []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = append(errs, fmt.Sprintf("파일 정보 조회 실패: %s - %v", e.Name(), err))
			continue
		}
		out = append(out, pdfEntry{path: filepath.Join(dir, e.Name()), info: info})
	}
	return out, errs, nil
}

// CleanupTemp evicts temp PDFs, newest first. A file goes when it is
// older than MaxAge, falls outside the KeepRecent newest, or would push
// the retained total past MaxSize. Runs are serialised through the
// store's Locker; a concurrent run fails with ErrLockHeld.
func (s *PDFStore) CleanupTemp(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	opts = opts.withDefaults()
	log := logging.FromContext(ctx)

	release, err := s.locker.Obtain(ctx, pdfCleanupLock, pdfLockTTL)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("pdf cleanup: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("pdf cleanup lock release failed", slog.String("error", err.Error()))
		}
	}()

	res := CleanupResult{DryRun: opts.DryRun, Errors: []string{}}
	files, errs, err := readPDFs(s.dirs.Temp)
	if err != nil {
		return res, err
	}
	res.Errors = append(res.Errors, errs...)

	for _, f := range files {
		res.TotalSize += f.info.Size()
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].info.ModTime().After(files[j].info.ModTime())
	})

	now := s.now()
	var kept int64
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		size := f.info.Size()
		age := now.Sub(f.info.ModTime())
		evict := age > opts.MaxAge || i >= opts.KeepRecent || kept+size > opts.MaxSize
		if !evict {
			kept += size
			continue
		}
		if !opts.DryRun {
			if err := os.Remove(f.path); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("파일 삭제 실패: %s - %v", filepath.Base(f.path), err))
				kept += size
				continue
			}
		}
		res.Cleaned++
		res.Freed += size
		log.Debug("pdf evicted",
			slog.String("file", filepath.Base(f.path)),
			slog.Int64("size", size),
			slog.Duration("age", age),
			slog.Bool("dry_run", opts.DryRun),
		)
	}

	log.Info("pdf cleanup complete",
		slog.Int("cleaned", res.Cleaned),
		slog.Int64("freed", res.Freed),
		slog.Int("errors", len(res.Errors)),
		slog.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}

// List returns the PDFs of one directory, newest first.
func (s *PDFStore) List(kind PDFKind) ([]PDFFileInfo, error) {
	dir, err := s.dirs.path(kind)
	if err != nil {
		return nil, err
	}
	files, _, err := readPDFs(dir)
	if err != nil {
		return nil, err
	}
	out := make([]PDFFileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, describe(f.path, f.info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.After(out[j].ModifiedAt) })
	return out, nil
}

// Describe returns the info of one file, which must live in the kind
// directory.
func (s *PDFStore) Describe(kind PDFKind, path string) (PDFFileInfo, error) {
	dir, err := s.dirs.path(kind)
	if err != nil {
		return PDFFileInfo{}, err
	}
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(dir) {
		return PDFFileInfo{}, fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PDFFileInfo{}, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return PDFFileInfo{}, err
	}
	return describe(path, info), nil
}

func describe(path string, info os.FileInfo) PDFFileInfo {
	name := filepath.Base(path)
	order, vendor := parseArchiveName(name)
	return PDFFileInfo{
		Path:        path,
		FileName:    name,
		Size:        info.Size(),
		ModifiedAt:  info.ModTime(),
		IsValid:     IsValidPDF(path),
		OrderNumber: order,
		VendorName:  vendor,
	}
}

// parseArchiveName extracts the order number and vendor from
// "{order}_{vendor}_{timestamp}.pdf".
func parseArchiveName(name string) (order, vendor string) {
	parts := strings.Split(strings.TrimSuffix(name, ".pdf"), "_")
	if len(parts) >= 2 {
		order = parts[0]
	}
	if len(parts) >= 3 {
		vendor = parts[1]
	}
	return order, vendor
}

// IsValidPDF reports whether path is at least 1KiB and starts with %PDF.
func IsValidPDF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() < minPDFSize {
		return false
	}
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return string(head) == "%PDF"
}

// Stats sums file counts and sizes per directory.
func (s *PDFStore) Stats() (StorageStats, error) {
	var st StorageStats
	for _, d := range []struct {
		kind PDFKind
		dst  *DirStats
	}{
		{PDFTemp, &st.Temp},
		{PDFArchive, &st.Archive},
		{PDFOrders, &st.Orders},
	} {
		dir, _ := s.dirs.path(d.kind)
		files, _, err := readPDFs(dir)
		if err != nil {
			return st, err
		}
		for _, f := range files {
			d.dst.Count++
			d.dst.Size += f.info.Size()
		}
		st.Total.Count += d.dst.Count
		st.Total.Size += d.dst.Size
	}
	return st, nil
}

// RunMaintenance logs storage usage and runs the scheduled cleanup
// policy.
func (s *PDFStore) RunMaintenance(ctx context.Context) (CleanupResult, error) {
	log := logging.FromContext(ctx)

	before, err := s.Stats()
	if err != nil {
		return CleanupResult{}, err
	}
	log.Info("pdf storage usage",
		slog.Int("temp_files", before.Temp.Count),
		slog.Int("archive_files", before.Archive.Count),
		slog.Int("order_files", before.Orders.Count),
		slog.Int64("total_bytes", before.Total.Size),
	)

	res, err := s.CleanupTemp(ctx, MaintenanceCleanupOptions)
	if err != nil {
		return res, err
	}

	if after, err := s.Stats(); err == nil {
		log.Info("pdf maintenance complete",
			slog.Int("cleaned", res.Cleaned),
			slog.Int64("total_bytes", after.Total.Size),
		)
	}
	return res, nil
}
