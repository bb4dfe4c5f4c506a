package core

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	// InputSheet holds the order rows.
	InputSheet = "Input"
)

// SupplementarySheets are the cover and detail sheets expected next to Input.
var SupplementarySheets = []string{"갑지", "을지"}

// AllowedExtensions lists the spreadsheet types accepted for upload.
var AllowedExtensions = []string{".xlsx", ".xlsm", ".xls"}

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrMissingInput    = errors.New("input sheet not found")
)

// Workbook is the parsed Input sheet of an uploaded file.
type Workbook struct {
	FileName string
	Sheets   []string
	Headers  []string
	Rows     [][]string
}

// HasSheet reports whether the workbook contains name.
func (w *Workbook) HasSheet(name string) bool {
	return slices.Contains(w.Sheets, name)
}

// MissingSupplementary returns the supplementary sheets not present.
func (w *Workbook) MissingSupplementary() []string {
	var missing []string
	for _, s := range SupplementarySheets {
		if !w.HasSheet(s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// CheckExtension returns ErrUnsupportedFile unless fileName has an
// allowed spreadsheet extension.
func CheckExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !slices.Contains(AllowedExtensions, ext) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	return nil
}

// ReadWorkbook parses r and returns the Input sheet with raw cell values.
// A missing Input sheet yields ErrMissingInput together with the sheet list.
func ReadWorkbook(r io.Reader, fileName string) (*Workbook, error) {
	if err := CheckExtension(fileName); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wb := &Workbook{FileName: fileName, Sheets: f.GetSheetList()}
	if !wb.HasSheet(InputSheet) {
		return wb, ErrMissingInput
	}

	rows, err := f.GetRows(InputSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return wb, fmt.Errorf("read %s sheet: %w", InputSheet, err)
	}
	if len(rows) > 0 {
		wb.Headers = rows[0]
		wb.Rows = rows[1:]
	}
	return wb, nil
}

// WorkbookFromSheets picks the Input sheet out of sheets parsed by a
// StreamProcessor. A missing Input sheet yields ErrMissingInput together
// with the sheet list.
func WorkbookFromSheets(fileName string, sheets []SheetData) (*Workbook, error) {
	wb := &Workbook{FileName: fileName, Sheets: make([]string, 0, len(sheets))}
	var input *SheetData
	for i := range sheets {
		wb.Sheets = append(wb.Sheets, sheets[i].Name)
		if sheets[i].Name == InputSheet && input == nil {
			input = &sheets[i]
		}
	}
	if input == nil {
		return wb, ErrMissingInput
	}
	if len(input.Rows) > 0 {
		wb.Headers = input.Rows[0]
		wb.Rows = input.Rows[1:]
	}
	return wb, nil
}

// ValidateSheets validates the sheets of an uploaded file. Structural
// problems are reported in the result rather than returned as errors.
func (v *TemplateValidator) ValidateSheets(fileName string, sheets []SheetData) (ValidationResult, *Workbook) {
	result := newValidationResult()

	wb, err := WorkbookFromSheets(fileName, sheets)
	if err != nil {
		result.fail("Input 시트를 찾을 수 없습니다.")
		return result, wb
	}
	if len(wb.Rows) == 0 {
		result.fail("Input 시트에 데이터가 없거나 헤더만 있습니다.")
		return result, wb
	}

	result = v.ValidateRows(wb.Headers, wb.Rows)
	if missing := wb.MissingSupplementary(); len(missing) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("필수 시트가 누락되었습니다: %s", strings.Join(missing, ", ")))
	}
	return result, wb
}

// unreadableResult reports a file that could not be opened as a workbook.
func unreadableResult(err error) ValidationResult {
	result := newValidationResult()
	if errors.Is(err, ErrUnsupportedFile) {
		result.fail("Excel 파일을 읽을 수 없습니다. 파일이 손상되지 않았는지 확인해주세요.")
	} else {
		result.fail(fmt.Sprintf("파일 처리 중 오류가 발생했습니다: %v", err))
	}
	return result
}

// QuickCheck is the result of a structural pre-check.
type QuickCheck struct {
	IsValid           bool     `json:"isValid"`
	HasInputSheet     bool     `json:"hasInputSheet"`
	HasRequiredSheets bool     `json:"hasRequiredSheets"`
	RowCount          int      `json:"rowCount"`
	Errors            []string `json:"errors"`
}

// QuickValidate checks sheet presence and counts data rows without
// validating any cell.
func QuickValidate(r io.Reader, fileName string) QuickCheck {
	check := QuickCheck{IsValid: true, Errors: []string{}}

	wb, err := ReadWorkbook(r, fileName)
	if err != nil && !errors.Is(err, ErrMissingInput) {
		check.IsValid = false
		if errors.Is(err, ErrUnsupportedFile) {
			check.Errors = append(check.Errors, "지원하지 않는 파일 형식입니다.")
		} else {
			check.Errors = append(check.Errors, fmt.Sprintf("파일 처리 오류: %v", err))
		}
		return check
	}

	check.HasInputSheet = wb.HasSheet(InputSheet)
	if !check.HasInputSheet {
		check.IsValid = false
		check.Errors = append(check.Errors, "Input 시트가 없습니다.")
	}

	check.HasRequiredSheets = len(wb.MissingSupplementary()) == 0
	if !check.HasRequiredSheets {
		check.Errors = append(check.Errors, "갑지 또는 을지 시트가 누락되었습니다.")
	}

	check.RowCount = len(wb.Rows)
	return check
}
