package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessInChunks(t *testing.T) {
	path := writeTemp(t, "data.bin", []byte("0123456789"))

	var events []StreamProgress
	p := &StreamProcessor{ChunkSize: 4, OnProgress: func(pr StreamProgress) { events = append(events, pr) }}

	var chunks []string
	var indexes []int
	err := p.ProcessInChunks(context.Background(), path, func(chunk []byte, i int) error {
		chunks = append(chunks, string(chunk))
		indexes = append(indexes, i)
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessInChunks() error = %v", err)
	}
	if !slices.Equal(chunks, []string{"0123", "4567", "89"}) || !slices.Equal(indexes, []int{0, 1, 2}) {
		t.Errorf("chunks = %q indexes = %v", chunks, indexes)
	}
	if len(events) == 0 || events[len(events)-1].Percent != 100 {
		t.Errorf("progress events = %+v", events)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("progress went backwards: %+v", events)
		}
	}
}

func TestProcessInChunks_Errors(t *testing.T) {
	path := writeTemp(t, "data.bin", []byte("0123456789"))
	noop := func([]byte, int) error { return nil }

	t.Run("too large", func(t *testing.T) {
		p := &StreamProcessor{MaxFileSize: 5}
		if err := p.ProcessInChunks(context.Background(), path, noop); !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("error = %v, want ErrFileTooLarge", err)
		}
	})

	t.Run("callback error", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := (&StreamProcessor{ChunkSize: 2}).ProcessInChunks(context.Background(), path, func([]byte, int) error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) || calls != 1 {
			t.Errorf("error = %v after %d calls", err, calls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewStreamProcessor().ProcessInChunks(ctx, path, noop); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if err := NewStreamProcessor().ProcessInChunks(context.Background(), filepath.Join(t.TempDir(), "nope"), noop); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want os.ErrNotExist", err)
		}
	})
}

func TestWriteAndParseWorkbook(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "out.xlsx")
	sheets := []SheetData{
		{Name: InputSheet, Rows: [][]string{testHeaders, testRow(nil), testRow(map[string]string{ColOrderNumber: "PO-002"})}},
		{Name: "갑지", Rows: [][]string{{"발주처", "대한건설"}}},
	}

	p := NewStreamProcessor()
	if err := p.WriteWorkbook(ctx, sheets, out); err != nil {
		t.Fatalf("WriteWorkbook() error = %v", err)
	}

	var events []StreamProgress
	p.OnProgress = func(pr StreamProgress) { events = append(events, pr) }
	got, err := p.ParseWorkbook(ctx, out)
	if err != nil {
		t.Fatalf("ParseWorkbook() error = %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Percent != 100 {
		t.Fatalf("progress events = %+v", events)
	}
	var sheetSteps []float64
	for i, ev := range events {
		if i > 0 && ev.Percent < events[i-1].Percent {
			t.Errorf("progress went backwards: %+v", events)
		}
		if strings.HasPrefix(ev.Message, "시트 처리 중") {
			sheetSteps = append(sheetSteps, ev.Percent)
		}
	}
	// reading fills 0-50, each of the two sheets adds 25
	if !slices.Equal(sheetSteps, []float64{75, 100}) {
		t.Errorf("sheet progress = %v, want [75 100]", sheetSteps)
	}
	if len(got) != 2 || got[0].Name != InputSheet || got[1].Name != "갑지" {
		t.Fatalf("sheets = %+v", got)
	}
	if len(got[0].Rows) != 3 || got[0].Rows[2][0] != "PO-002" || got[1].Rows[0][1] != "대한건설" {
		t.Errorf("rows = %v / %v", got[0].Rows, got[1].Rows)
	}

	if err := p.WriteWorkbook(ctx, nil, out); err == nil {
		t.Error("WriteWorkbook() with no sheets should fail")
	}
}

func TestParseWorkbook_NotExcel(t *testing.T) {
	path := writeTemp(t, "fake.xlsx", []byte("this is not a zip archive"))
	if _, err := NewStreamProcessor().ParseWorkbook(context.Background(), path); !errors.Is(err, ErrUnsupportedFile) {
		t.Errorf("error = %v, want ErrUnsupportedFile", err)
	}
}

func TestConvertCSV(t *testing.T) {
	var src bytes.Buffer
	src.WriteString("\xEF\xBB\xBF발주번호,품목명,수량\n")
	src.WriteString("PO-001,철근,10\n")
	src.WriteString("PO-002,\"시멘트, 포대\",5\n")
	src.WriteString("PO-003,bad\xffbyte,1\n")
	in := writeTemp(t, "orders.csv", src.Bytes())
	out := filepath.Join(t.TempDir(), "orders.xlsx")

	n, err := NewStreamProcessor().ConvertCSV(context.Background(), in, out)
	if err != nil {
		t.Fatalf("ConvertCSV() error = %v", err)
	}
	if n != 4 {
		t.Errorf("rows written = %d, want 4", n)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	wb, err := ReadWorkbook(f, "orders.xlsx")
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	if wb.Headers[0] != ColOrderNumber {
		t.Errorf("BOM not stripped: %q", wb.Headers[0])
	}
	if len(wb.Rows) != 3 || wb.Rows[1][1] != "시멘트, 포대" || wb.Rows[2][1] != "bad?byte" {
		t.Errorf("rows = %q", wb.Rows)
	}
}

func TestCopyFile(t *testing.T) {
	data := bytes.Repeat([]byte("%PDF-1.4 "), 500)
	src := writeTemp(t, "a.pdf", data)
	dst := filepath.Join(t.TempDir(), "b.pdf")

	if err := (&StreamProcessor{ChunkSize: 100}).CopyFile(context.Background(), src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("copy differs: %d bytes, %v", len(got), err)
	}

	tooSmall := &StreamProcessor{MaxFileSize: 10}
	failed := filepath.Join(t.TempDir(), "c.pdf")
	if err := tooSmall.CopyFile(context.Background(), src, failed); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	if _, err := os.Stat(failed); !os.IsNotExist(err) {
		t.Error("failed copy should not leave a partial file")
	}
}
