package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"
)

const (
	// DefaultChunkSize is the read size used by StreamProcessor.
	DefaultChunkSize = 64 * 1024
	// DefaultMaxFileSize bounds files accepted by StreamProcessor.
	DefaultMaxFileSize = 100 * 1024 * 1024
)

// ErrFileTooLarge is returned when a file exceeds MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// StreamProgress is a single progress event.
type StreamProgress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// SheetData is one worksheet as rows of raw cell values.
type SheetData struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// StreamProcessor reads and writes spreadsheet files in fixed-size chunks.
// A processor is meant for one file at a time and does no locking.
type StreamProcessor struct {
	ChunkSize   int
	MaxFileSize int64
	OnProgress  func(StreamProgress)
}

// NewStreamProcessor returns a processor with default limits.
func NewStreamProcessor() *StreamProcessor {
	return &StreamProcessor{ChunkSize: DefaultChunkSize, MaxFileSize: DefaultMaxFileSize}
}

func (p *StreamProcessor) chunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

func (p *StreamProcessor) report(percent float64, msg string) {
	if p.OnProgress != nil {
		p.OnProgress(StreamProgress{Percent: min(max(percent, 0), 100), Message: msg})
	}
}

func (p *StreamProcessor) open(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if p.MaxFileSize > 0 && info.Size() > p.MaxFileSize {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, path, info.Size(), p.MaxFileSize)
	}
	return f, info.Size(), nil
}

// ProcessInChunks calls fn for each chunk of the file at path. The chunk
// slice is reused between calls. ctx is checked before every read.
func (p *StreamProcessor) ProcessInChunks(ctx context.Context, path string, fn func(chunk []byte, index int) error) error {
	f, size, err := p.open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, p.chunkSize())
	var read int64
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if ferr := fn(buf[:n], index); ferr != nil {
				return ferr
			}
			read += int64(n)
			if size > 0 {
				p.report(float64(read)*100/float64(size), fmt.Sprintf("청크 %d 처리 중", index+1))
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
	p.report(100, "파일 처리 완료")
	return nil
}

// ParseWorkbook reads the workbook at path in chunks and returns every
// sheet's rows. Reading accounts for the first half of progress and
// sheet extraction for the rest.
func (p *StreamProcessor) ParseWorkbook(ctx context.Context, path string) ([]SheetData, error) {
	var buf bytes.Buffer
	p.report(0, "파일 읽기 시작")

	wrapped := p.OnProgress
	p.OnProgress = func(pr StreamProgress) {
		if wrapped != nil {
			wrapped(StreamProgress{Percent: pr.Percent / 2, Message: "파일 읽는 중"})
		}
	}
	err := p.ProcessInChunks(ctx, path, func(chunk []byte, _ int) error {
		buf.Write(chunk)
		return nil
	})
	p.OnProgress = wrapped
	if err != nil {
		return nil, err
	}

	p.report(50, "Excel 파싱 중")
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]SheetData, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, SheetData{Name: name, Rows: rows})
		p.report(50+float64(i+1)*50/float64(len(names)), fmt.Sprintf("시트 처리 중: %s", name))
	}
	p.report(100, "Excel 파싱 완료")
	return sheets, nil
}

// WriteWorkbook writes sheets to outPath row by row through excelize's
// stream writer.
func (p *StreamProcessor) WriteWorkbook(ctx context.Context, sheets []SheetData, outPath string) error {
	if len(sheets) == 0 {
		return errors.New("write workbook: no sheets")
	}
	f := excelize.NewFile()
	defer f.Close()

	total := 0
	for _, s := range sheets {
		total += len(s.Rows)
	}
	written := 0

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("add sheet %q: %w", s.Name, err)
		}

		sw, err := f.NewStreamWriter(s.Name)
		if err != nil {
			return fmt.Errorf("stream writer %q: %w", s.Name, err)
		}
		for r, row := range s.Rows {
			if r%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := writeStreamRow(sw, r+1, row); err != nil {
				return fmt.Errorf("sheet %q row %d: %w", s.Name, r+1, err)
			}
			written++
			if total > 0 && written%1000 == 0 {
				p.report(float64(written)*100/float64(total), "Excel 파일 작성 중")
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("flush sheet %q: %w", s.Name, err)
		}
	}

	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	p.report(100, "Excel 파일 작성 완료")
	return nil
}

// ConvertCSV converts a CSV file into a workbook whose only sheet is the
// Input sheet and returns the number of records written. A leading BOM is
// dropped and invalid UTF-8 bytes become '?'.
func (p *StreamProcessor) ConvertCSV(ctx context.Context, src, dst string) (int, error) {
	in, size, err := p.open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	counter := WrapForStreaming(in, size)
	r := csv.NewReader(counter)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), InputSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(InputSheet)
	if err != nil {
		return 0, fmt.Errorf("stream writer: %w", err)
	}

	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("parse %s: %w", src, err)
		}
		if err := writeStreamRow(sw, rows+1, record); err != nil {
			return rows, fmt.Errorf("row %d: %w", rows+1, err)
		}
		rows++
		if rows%1000 == 0 {
			p.report(counter.Percent(), fmt.Sprintf("%d행 변환 중", rows))
		}
	}

	if err := sw.Flush(); err != nil {
		return rows, fmt.Errorf("flush: %w", err)
	}
	if err := f.SaveAs(dst); err != nil {
		return rows, fmt.Errorf("save %s: %w", dst, err)
	}
	p.report(100, fmt.Sprintf("CSV 변환 완료: %d행", rows))
	return rows, nil
}

// CopyFile copies src to dst one chunk at a time.
func (p *StreamProcessor) CopyFile(ctx context.Context, src, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	err = p.ProcessInChunks(ctx, src, func(chunk []byte, _ int) error {
		_, werr := out.Write(chunk)
		return werr
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func writeStreamRow(sw *excelize.StreamWriter, rowNum int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	return sw.SetRow(cell, values)
}
