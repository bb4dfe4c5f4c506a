package core

// convert.go turns spreadsheet cell text into typed values.
//
// Cells arrive as strings. Workbooks are read with raw cell values, so a
// date formatted in Excel shows up as its serial number ("45306") and a
// currency cell as a plain number. Text cells may still carry thousands
// separators, stray whitespace or a leading formula marker.

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// excelEpochOffset is the serial number of 1970-01-01 in Excel's
// 1900 date system.
const excelEpochOffset = 25569

// maxExcelSerial is 9999-12-31, the last date Excel can represent.
const maxExcelSerial = 2958465

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006. 1. 2.",
	"2006. 1. 2",
	"2006-1-2",
	"2006/1/2",
	"2006년 1월 2일",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseNumber parses a numeric cell. Commas and whitespace are removed
// before parsing. Returns false for anything that is not a number.
func ParseNumber(s string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, CleanCell(s))
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseDate parses a date cell. Pure numbers in Excel's serial range are
// treated as serial dates; everything else is tried against known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial <= maxExcelSerial {
		return FromExcelSerial(serial), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromExcelSerial converts an Excel serial date to UTC.
func FromExcelSerial(serial float64) time.Time {
	ms := math.Round((serial - excelEpochOffset) * 86400 * 1000)
	return time.UnixMilli(int64(ms)).UTC()
}

// CleanCell trims whitespace and strips an Excel text-formula wrapper
// (="...") or a leading apostrophe used to force text.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "'")
	return strings.TrimSpace(s)
}

// IsEmptyRow reports whether every cell is blank.
func IsEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cellAt returns row[idx], or "" when the row is short or idx is negative.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
