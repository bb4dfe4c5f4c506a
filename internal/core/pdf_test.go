package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type pdfFixture struct {
	store *PDFStore
	now   time.Time
}

func newPDFFixture(t *testing.T, locker Locker) *pdfFixture {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	s := NewPDFStore(DefaultPDFDirs(t.TempDir()), locker)
	s.now = func() time.Time { return now }
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return &pdfFixture{store: s, now: now}
}

// put writes a PDF of size bytes into dir, last modified age ago.
func (f *pdfFixture) put(t *testing.T, dir, name string, size int, age time.Duration) string {
	t.Helper()
	data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), max(size-9, 0))...)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data[:size], 0o644); err != nil {
		t.Fatal(err)
	}
	mod := f.now.Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCleanupTemp(t *testing.T) {
	const kb2 = 2048

	t.Run("age", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		fresh := f.put(t, f.store.Dirs().Temp, "fresh.pdf", kb2, time.Hour)
		stale := f.put(t, f.store.Dirs().Temp, "stale.pdf", kb2, 30*time.Hour)

		res, err := f.store.CleanupTemp(context.Background(), DefaultCleanupOptions)
		if err != nil {
			t.Fatal(err)
		}
		if res.Cleaned != 1 || res.Freed != kb2 || res.TotalSize != 2*kb2 {
			t.Errorf("result = %+v", res)
		}
		if !exists(fresh) || exists(stale) {
			t.Error("only the stale file should be removed")
		}
	})

	t.Run("keep recent", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		var paths []string
		for i, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"} {
			paths = append(paths, f.put(t, f.store.Dirs().Temp, name, kb2, time.Duration(i+1)*time.Minute))
		}
		res, err := f.store.CleanupTemp(context.Background(), CleanupOptions{MaxAge: time.Hour, MaxSize: 1 << 30, KeepRecent: 2})
		if err != nil {
			t.Fatal(err)
		}
		if res.Cleaned != 2 {
			t.Errorf("Cleaned = %d, want 2", res.Cleaned)
		}
		if !exists(paths[0]) || !exists(paths[1]) || exists(paths[2]) || exists(paths[3]) {
			t.Error("the two newest files should survive")
		}
	})

	t.Run("size budget", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		newest := f.put(t, f.store.Dirs().Temp, "n.pdf", kb2, time.Minute)
		middle := f.put(t, f.store.Dirs().Temp, "m.pdf", kb2, 2*time.Minute)
		oldest := f.put(t, f.store.Dirs().Temp, "o.pdf", kb2, 3*time.Minute)

		res, err := f.store.CleanupTemp(context.Background(), CleanupOptions{MaxAge: time.Hour, MaxSize: 5000, KeepRecent: 10})
		if err != nil {
			t.Fatal(err)
		}
		if res.Cleaned != 1 || !exists(newest) || !exists(middle) || exists(oldest) {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("dry run", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		stale := f.put(t, f.store.Dirs().Temp, "stale.pdf", kb2, 48*time.Hour)

		res, err := f.store.CleanupTemp(context.Background(), CleanupOptions{DryRun: true})
		if err != nil {
			t.Fatal(err)
		}
		if !res.DryRun || res.Cleaned != 1 || res.Freed != kb2 {
			t.Errorf("result = %+v", res)
		}
		if !exists(stale) {
			t.Error("dry run must not delete")
		}
	})

	t.Run("ignores other files", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		other := filepath.Join(f.store.Dirs().Temp, "notes.txt")
		os.WriteFile(other, []byte("x"), 0o644)
		os.Chtimes(other, f.now.Add(-72*time.Hour), f.now.Add(-72*time.Hour))

		res, err := f.store.CleanupTemp(context.Background(), DefaultCleanupOptions)
		if err != nil || res.Cleaned != 0 || !exists(other) {
			t.Errorf("result = %+v, %v", res, err)
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		s := NewPDFStore(DefaultPDFDirs(filepath.Join(t.TempDir(), "absent")), nil)
		res, err := s.CleanupTemp(context.Background(), DefaultCleanupOptions)
		if err != nil || res.Cleaned != 0 || res.Errors == nil {
			t.Errorf("result = %+v, %v", res, err)
		}
	})
}

func TestCleanupTemp_LockHeld(t *testing.T) {
	locker := NewLocalLocker()
	f := newPDFFixture(t, locker)

	release, err := locker.Obtain(context.Background(), pdfCleanupLock, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.CleanupTemp(context.Background(), DefaultCleanupOptions); !errors.Is(err, ErrLockHeld) {
		t.Errorf("error = %v, want ErrLockHeld", err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.CleanupTemp(context.Background(), DefaultCleanupOptions); err != nil {
		t.Errorf("cleanup after release = %v", err)
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	relA, err := l.Obtain(ctx, "a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Obtain(ctx, "a", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Errorf("second obtain = %v", err)
	}
	if _, err := l.Obtain(ctx, "b", time.Minute); err != nil {
		t.Errorf("other key = %v", err)
	}
	relA(ctx)
	if _, err := l.Obtain(ctx, "a", time.Minute); err != nil {
		t.Errorf("obtain after release = %v", err)
	}
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 15, 120_000_000, time.UTC)
	tests := []struct {
		order, vendor string
		want          string
	}{
		{"PO-001", "대한건설", "PO-001_대한건설_2024-03-01T09-30-15-120Z.pdf"},
		{"PO/001", "대한_건설", "PO-001_대한-건설_2024-03-01T09-30-15-120Z.pdf"},
		{"PO-001", "", "PO-001_unknown_2024-03-01T09-30-15-120Z.pdf"},
		{"", "대한건설", "pdf_2024-03-01T09-30-15-120Z.pdf"},
	}
	for _, tt := range tests {
		if got := ArchiveName(tt.order, tt.vendor, at); got != tt.want {
			t.Errorf("ArchiveName(%q, %q) = %q, want %q", tt.order, tt.vendor, got, tt.want)
		}
	}
}

func TestArchive(t *testing.T) {
	f := newPDFFixture(t, nil)
	src := f.put(t, f.store.Dirs().Temp, "draft.pdf", 2048, 0)

	dst, err := f.store.Archive(context.Background(), src, "PO-001", "대한건설")
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if filepath.Dir(dst) != f.store.Dirs().Archive {
		t.Errorf("archived to %s", dst)
	}
	if !exists(src) {
		t.Error("source should be kept")
	}

	info, err := f.store.Describe(PDFArchive, dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.OrderNumber != "PO-001" || info.VendorName != "대한건설" || !info.IsValid || info.Size != 2048 {
		t.Errorf("Describe() = %+v", info)
	}

	if _, err := f.store.Archive(context.Background(), filepath.Join(f.store.Dirs().Temp, "missing.pdf"), "PO-1", "x"); !errors.Is(err, ErrSourceMissing) {
		t.Errorf("missing source = %v, want ErrSourceMissing", err)
	}
}

func TestArchive_Cancelled(t *testing.T) {
	f := newPDFFixture(t, nil)
	src := f.put(t, f.store.Dirs().Temp, "draft.pdf", 2048, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.store.Archive(ctx, src, "PO-001", "대한건설"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Archive() = %v, want context.Canceled", err)
	}
	files, err := f.store.List(PDFArchive)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("cancelled archive left %d files behind", len(files))
	}
}

func TestDescribe_OutsideDirectory(t *testing.T) {
	f := newPDFFixture(t, nil)
	src := f.put(t, f.store.Dirs().Temp, "a.pdf", 2048, 0)

	if _, err := f.store.Describe(PDFArchive, src); !errors.Is(err, ErrSourceMissing) {
		t.Errorf("file from another dir = %v", err)
	}
	escape := filepath.Join(f.store.Dirs().Temp, "..", "secret.pdf")
	if _, err := f.store.Describe(PDFTemp, escape); !errors.Is(err, ErrSourceMissing) {
		t.Errorf("traversal = %v", err)
	}
	if _, err := f.store.Describe("bogus", src); !errors.Is(err, ErrUnknownPDFKind) {
		t.Errorf("bogus kind = %v", err)
	}
}

func TestListAndStats(t *testing.T) {
	f := newPDFFixture(t, nil)
	dirs := f.store.Dirs()
	f.put(t, dirs.Temp, "old.pdf", 2048, time.Hour)
	f.put(t, dirs.Temp, "new.pdf", 1500, time.Minute)
	f.put(t, dirs.Orders, "PO-9_대한건설_x.pdf", 3000, 0)
	os.WriteFile(filepath.Join(dirs.Temp, "readme.txt"), []byte("x"), 0o644)

	list, err := f.store.List(PDFTemp)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].FileName != "new.pdf" || list[1].FileName != "old.pdf" {
		t.Errorf("List() = %+v", list)
	}

	st, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	want := StorageStats{
		Temp:   DirStats{Count: 2, Size: 3548},
		Orders: DirStats{Count: 1, Size: 3000},
		Total:  DirStats{Count: 3, Size: 6548},
	}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}

	if _, err := f.store.List("bogus"); !errors.Is(err, ErrUnknownPDFKind) {
		t.Errorf("List(bogus) = %v", err)
	}
}

func TestIsValidPDF(t *testing.T) {
	f := newPDFFixture(t, nil)
	dir := f.store.Dirs().Temp

	big := f.put(t, dir, "ok.pdf", 1024, 0)
	small := f.put(t, dir, "small.pdf", 1023, 0)
	fake := filepath.Join(dir, "fake.pdf")
	os.WriteFile(fake, bytes.Repeat([]byte("y"), 2048), 0o644)

	tests := []struct {
		path string
		want bool
	}{
		{big, true},
		{small, false},
		{fake, false},
		{filepath.Join(dir, "missing.pdf"), false},
	}
	for _, tt := range tests {
		if got := IsValidPDF(tt.path); got != tt.want {
			t.Errorf("IsValidPDF(%s) = %v, want %v", filepath.Base(tt.path), got, tt.want)
		}
	}
}

func TestParsePDFKind(t *testing.T) {
	for _, s := range []string{"temp", "archive", "orders"} {
		if k, err := ParsePDFKind(s); err != nil || string(k) != s {
			t.Errorf("ParsePDFKind(%q) = %q, %v", s, k, err)
		}
	}
	for _, s := range []string{"", "TEMP", "../temp"} {
		if _, err := ParsePDFKind(s); !errors.Is(err, ErrUnknownPDFKind) {
			t.Errorf("ParsePDFKind(%q) = %v", s, err)
		}
	}
}

func TestRunMaintenance(t *testing.T) {
	f := newPDFFixture(t, nil)
	stale := f.put(t, f.store.Dirs().Temp, "stale.pdf", 2048, 3*time.Hour)
	fresh := f.put(t, f.store.Dirs().Temp, "fresh.pdf", 2048, time.Hour)

	res, err := f.store.RunMaintenance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Cleaned != 1 || exists(stale) || !exists(fresh) {
		t.Errorf("maintenance policy should drop files older than 2h: %+v", res)
	}
}

func TestStartPDFMaintenance(t *testing.T) {
	t.Run("runs once then stops", func(t *testing.T) {
		f := newPDFFixture(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cycles := 0
		StartPDFMaintenance(ctx, f.store, time.Hour, func(CleanupResult) { cycles++ })
		if cycles != 1 {
			t.Errorf("cycles = %d, want the immediate run only", cycles)
		}
	})

	t.Run("skips when locked", func(t *testing.T) {
		locker := NewLocalLocker()
		f := newPDFFixture(t, locker)
		if _, err := locker.Obtain(context.Background(), pdfCleanupLock, time.Minute); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cycles := 0
		StartPDFMaintenance(ctx, f.store, time.Hour, func(CleanupResult) { cycles++ })
		if cycles != 0 {
			t.Errorf("cycles = %d, want 0 while the lock is held", cycles)
		}
	})
}
