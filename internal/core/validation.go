package core

// validation.go checks purchase-order template rows before orders are created.
//
// Validation happens at three levels:
//  1. Header validation: all required columns present, unknown columns warned
//  2. Row validation: each cell against its FieldRule, then amount cross-checks
//  3. Batch validation: duplicate order numbers, at least one valid row
//
// Row numbers in messages are 1-based and count the header row, so they
// match what the user sees in Excel.

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Template column names.
const (
	ColOrderNumber = "발주번호"
	ColOrderDate   = "발주일자"
	ColSiteName    = "현장명"
	ColItemName    = "품목명"
	ColQuantity    = "수량"
	ColUnitPrice   = "단가"
	ColSupplyAmt   = "공급가액"
	ColTaxAmt      = "세액"
	ColTotalAmt    = "합계"
	ColDueDate     = "납기일자"
	ColVendorName  = "거래처명"

	ColMajorCategory  = "대분류"
	ColMiddleCategory = "중분류"
	ColMinorCategory  = "소분류"
	ColSpec           = "규격"
	ColDeliveryName   = "납품처"
	ColNotes          = "비고"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{
	ColOrderNumber, ColOrderDate, ColSiteName, ColItemName, ColQuantity,
	ColUnitPrice, ColSupplyAmt, ColTaxAmt, ColTotalAmt, ColDueDate, ColVendorName,
}

// OptionalColumns are recognised but may be absent.
var OptionalColumns = []string{
	ColMajorCategory, ColMiddleCategory, ColMinorCategory, ColSpec, ColDeliveryName, ColNotes,
}

// DefaultAmountTolerance is the absolute tolerance for amount cross-checks.
var DefaultAmountTolerance = decimal.RequireFromString("0.01")

// FieldKind is the expected type of a column.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindDate
	KindEmail
)

// FieldRule describes how one column is validated.
type FieldRule struct {
	Field    string
	Required bool
	Kind     FieldKind
	MinLen   int
	MaxLen   int
	Pattern  *regexp.Regexp
	// Check applies to parsed numbers only.
	Check func(decimal.Decimal) bool
}

func positive(d decimal.Decimal) bool    { return d.IsPositive() }
func nonNegative(d decimal.Decimal) bool { return !d.IsNegative() }

// TemplateRules is the rule set for the purchase-order Input sheet.
var TemplateRules = []FieldRule{
	{Field: ColOrderNumber, Required: true, Kind: KindString, MinLen: 3, MaxLen: 50, Pattern: regexp.MustCompile(`^[A-Z0-9-]+$`)},
	{Field: ColOrderDate, Required: true, Kind: KindDate},
	{Field: ColSiteName, Required: true, Kind: KindString, MinLen: 2, MaxLen: 100},
	{Field: ColItemName, Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	{Field: ColQuantity, Required: true, Kind: KindNumber, Check: positive},
	{Field: ColUnitPrice, Required: true, Kind: KindNumber, Check: nonNegative},
	{Field: ColSupplyAmt, Required: true, Kind: KindNumber, Check: nonNegative},
	{Field: ColTaxAmt, Required: true, Kind: KindNumber, Check: nonNegative},
	{Field: ColTotalAmt, Required: true, Kind: KindNumber, Check: nonNegative},
	{Field: ColDueDate, Required: true, Kind: KindDate},
	{Field: ColVendorName, Required: true, Kind: KindString, MinLen: 2, MaxLen: 100},
}

// Severity separates blocking problems from advisory ones.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueKind identifies what check produced an issue.
type IssueKind string

const (
	IssueRequired       IssueKind = "required"
	IssueLength         IssueKind = "length"
	IssueFormat         IssueKind = "format"
	IssueNotNumber      IssueKind = "not_number"
	IssueNotDate        IssueKind = "not_date"
	IssueNotEmail       IssueKind = "not_email"
	IssueOutOfRange     IssueKind = "out_of_range"
	IssueTotalMismatch  IssueKind = "total_mismatch"
	IssueSupplyMismatch IssueKind = "supply_mismatch"
)

// RowIssue is one problem found in a data row.
type RowIssue struct {
	Row      int       `json:"row"`
	Field    string    `json:"field"`
	Value    string    `json:"value"`
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// RowStatus is the outcome of a single data row.
type RowStatus string

const (
	RowValid   RowStatus = "valid"
	RowWarning RowStatus = "warning"
	RowError   RowStatus = "error"
	RowEmpty   RowStatus = "empty"
)

// HeaderIndex maps a column name to its first position in the header row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex. Names are trimmed; the first
// occurrence of a repeated name wins.
func MakeHeaderIndex(headers []string) HeaderIndex {
	idx := make(HeaderIndex, len(headers))
	for i, h := range headers {
		key := CleanCell(h)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// Lookup returns the position of name, or -1.
func (h HeaderIndex) Lookup(name string) int {
	if i, ok := h[name]; ok {
		return i
	}
	return -1
}

// HeaderCheck is the result of ValidateHeaders.
type HeaderCheck struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Missing  []string
	Index    HeaderIndex
}

// RowCheck is the result of ValidateRow.
type RowCheck struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Issues   []RowIssue
}

// Status classifies the row for display.
func (c RowCheck) Status() RowStatus {
	switch {
	case !c.Valid:
		return RowError
	case len(c.Warnings) > 0:
		return RowWarning
	default:
		return RowValid
	}
}

// Summary counts rows in a batch.
type Summary struct {
	TotalRows             int      `json:"totalRows"`
	ValidRows             int      `json:"validRows"`
	InvalidRows           int      `json:"invalidRows"`
	MissingFields         []string `json:"missingFields"`
	DuplicateOrderNumbers []string `json:"duplicateOrderNumbers"`
}

// ValidationResult is the outcome of validating a batch.
type ValidationResult struct {
	IsValid  bool        `json:"isValid"`
	Errors   []string    `json:"errors"`
	Warnings []string    `json:"warnings"`
	Summary  Summary     `json:"summary"`
	Rows     []RowStatus `json:"rowStatuses"`
	Issues   []RowIssue  `json:"issues,omitempty"`
}

func newValidationResult() ValidationResult {
	return ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
		Summary: Summary{
			MissingFields:         []string{},
			DuplicateOrderNumbers: []string{},
		},
	}
}

func (r *ValidationResult) fail(msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
}

// TemplateValidator validates rows of the purchase-order template.
type TemplateValidator struct {
	rules     []FieldRule
	tolerance decimal.Decimal
	validate  *validator.Validate
}

// NewTemplateValidator creates a validator with the standard rule set.
// A non-positive tolerance falls back to DefaultAmountTolerance.
func NewTemplateValidator(tolerance decimal.Decimal) *TemplateValidator {
	if !tolerance.IsPositive() {
		tolerance = DefaultAmountTolerance
	}
	return &TemplateValidator{
		rules:     TemplateRules,
		tolerance: tolerance,
		validate:  validator.New(),
	}
}

// ValidateHeaders checks that every required column is present and warns
// about columns the template does not define.
func (v *TemplateValidator) ValidateHeaders(headers []string) HeaderCheck {
	check := HeaderCheck{Valid: true, Index: MakeHeaderIndex(headers)}

	for _, col := range RequiredColumns {
		if _, ok := check.Index[col]; !ok {
			check.Missing = append(check.Missing, col)
		}
	}
	if len(check.Missing) > 0 {
		check.Valid = false
		check.Errors = append(check.Errors,
			fmt.Sprintf("필수 컬럼이 누락되었습니다: %s", strings.Join(check.Missing, ", ")))
	}

	known := make(map[string]bool, len(RequiredColumns)+len(OptionalColumns))
	for _, c := range RequiredColumns {
		known[c] = true
	}
	for _, c := range OptionalColumns {
		known[c] = true
	}
	var unknown []string
	for _, h := range headers {
		h = CleanCell(h)
		if h != "" && !known[h] {
			unknown = append(unknown, h)
		}
	}
	if len(unknown) > 0 {
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("알 수 없는 컬럼이 있습니다: %s", strings.Join(unknown, ", ")))
	}

	return check
}

// ValidateRow validates one data row. rowNumber is the Excel row number
// used in messages. Columns missing from idx are not checked here; the
// header check reports them.
func (v *TemplateValidator) ValidateRow(row []string, idx HeaderIndex, rowNumber int) RowCheck {
	check := RowCheck{Valid: true}

	add := func(issue RowIssue) {
		issue.Row = rowNumber
		check.Issues = append(check.Issues, issue)
		if issue.Severity == SeverityError {
			check.Valid = false
			check.Errors = append(check.Errors, issue.Message)
		} else {
			check.Warnings = append(check.Warnings, issue.Message)
		}
	}

	for _, rule := range v.rules {
		pos := idx.Lookup(rule.Field)
		if pos < 0 {
			continue
		}
		for _, issue := range v.validateField(cellAt(row, pos), rule, rowNumber) {
			add(issue)
		}
	}

	for _, issue := range v.crossCheck(row, idx, rowNumber) {
		add(issue)
	}

	return check
}

func (v *TemplateValidator) validateField(raw string, rule FieldRule, rowNumber int) []RowIssue {
	value := CleanCell(raw)
	if value == "" {
		if rule.Required {
			return []RowIssue{fieldError(rule.Field, value, IssueRequired,
				fmt.Sprintf("%d행: %s은(는) 필수 항목입니다.", rowNumber, rule.Field))}
		}
		return nil
	}

	var issues []RowIssue
	switch rule.Kind {
	case KindString:
		n := utf8.RuneCountInString(value)
		if rule.MinLen > 0 && n < rule.MinLen {
			issues = append(issues, fieldError(rule.Field, value, IssueLength,
				fmt.Sprintf("%d행: %s은(는) 최소 %d자 이상이어야 합니다.", rowNumber, rule.Field, rule.MinLen)))
		}
		if rule.MaxLen > 0 && n > rule.MaxLen {
			issues = append(issues, fieldError(rule.Field, value, IssueLength,
				fmt.Sprintf("%d행: %s은(는) 최대 %d자 이하여야 합니다.", rowNumber, rule.Field, rule.MaxLen)))
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
			issues = append(issues, fieldError(rule.Field, value, IssueFormat,
				fmt.Sprintf("%d행: %s의 형식이 올바르지 않습니다.", rowNumber, rule.Field)))
		}

	case KindNumber:
		num, ok := ParseNumber(value)
		if !ok {
			issues = append(issues, fieldError(rule.Field, value, IssueNotNumber,
				fmt.Sprintf("%d행: %s은(는) 숫자여야 합니다.", rowNumber, rule.Field)))
			break
		}
		if rule.Check != nil && !rule.Check(num) {
			issues = append(issues, fieldError(rule.Field, value, IssueOutOfRange,
				fmt.Sprintf("%d행: %s의 값이 유효하지 않습니다.", rowNumber, rule.Field)))
		}

	case KindDate:
		if _, ok := ParseDate(value); !ok {
			issues = append(issues, fieldError(rule.Field, value, IssueNotDate,
				fmt.Sprintf("%d행: %s은(는) 올바른 날짜 형식이어야 합니다.", rowNumber, rule.Field)))
		}

	case KindEmail:
		if err := v.validate.Var(value, "email"); err != nil {
			issues = append(issues, fieldError(rule.Field, value, IssueNotEmail,
				fmt.Sprintf("%d행: %s의 이메일 형식이 올바르지 않습니다.", rowNumber, rule.Field)))
		}
	}
	return issues
}

func fieldError(field, value string, kind IssueKind, msg string) RowIssue {
	return RowIssue{Field: field, Value: value, Kind: kind, Severity: SeverityError, Message: msg}
}

// crossCheck compares supply+tax against total and quantity*unitPrice
// against supply. Mismatches beyond the tolerance are warnings.
func (v *TemplateValidator) crossCheck(row []string, idx HeaderIndex, rowNumber int) []RowIssue {
	num := func(col string) (decimal.Decimal, bool) {
		return ParseNumber(cellAt(row, idx.Lookup(col)))
	}

	var issues []RowIssue
	supply, okSupply := num(ColSupplyAmt)
	tax, okTax := num(ColTaxAmt)
	total, okTotal := num(ColTotalAmt)
	if okSupply && okTax && okTotal {
		if supply.Add(tax).Sub(total).Abs().GreaterThan(v.tolerance) {
			issues = append(issues, RowIssue{
				Field:    ColTotalAmt,
				Value:    total.String(),
				Kind:     IssueTotalMismatch,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("%d행: 공급가액(%s) + 세액(%s) ≠ 합계(%s)",
					rowNumber, supply, tax, total),
			})
		}
	}

	qty, okQty := num(ColQuantity)
	price, okPrice := num(ColUnitPrice)
	if okQty && okPrice && okSupply {
		if qty.Mul(price).Sub(supply).Abs().GreaterThan(v.tolerance) {
			issues = append(issues, RowIssue{
				Field:    ColSupplyAmt,
				Value:    supply.String(),
				Kind:     IssueSupplyMismatch,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("%d행: 수량(%s) × 단가(%s) ≠ 공급가액(%s)",
					rowNumber, qty, price, supply),
			})
		}
	}
	return issues
}

// ValidateRows validates a header row and its data rows as one batch. The
// batch is valid when the headers are complete and at least one row passes;
// failing rows are reported but do not invalidate the rest.
func (v *TemplateValidator) ValidateRows(headers []string, rows [][]string) ValidationResult {
	result := newValidationResult()

	hc := v.ValidateHeaders(headers)
	if !hc.Valid {
		result.IsValid = false
		result.Errors = append(result.Errors, hc.Errors...)
		result.Summary.MissingFields = hc.Missing
	}
	result.Warnings = append(result.Warnings, hc.Warnings...)

	result.Summary.TotalRows = len(rows)
	result.Rows = make([]RowStatus, len(rows))

	orderCol := hc.Index.Lookup(ColOrderNumber)
	seen := make(map[string]bool)
	dupSeen := make(map[string]bool)

	for i, row := range rows {
		if IsEmptyRow(row) {
			result.Rows[i] = RowEmpty
			continue
		}
		rowNumber := i + 2

		rc := v.ValidateRow(row, hc.Index, rowNumber)
		result.Rows[i] = rc.Status()
		result.Issues = append(result.Issues, rc.Issues...)
		result.Warnings = append(result.Warnings, rc.Warnings...)

		if !rc.Valid {
			result.Summary.InvalidRows++
			result.Errors = append(result.Errors, rc.Errors...)
			continue
		}

		result.Summary.ValidRows++
		orderNumber := CleanCell(cellAt(row, orderCol))
		if orderNumber == "" {
			continue
		}
		if seen[orderNumber] {
			if !dupSeen[orderNumber] {
				dupSeen[orderNumber] = true
				result.Summary.DuplicateOrderNumbers = append(result.Summary.DuplicateOrderNumbers, orderNumber)
			}
		} else {
			seen[orderNumber] = true
		}
	}

	if n := len(result.Summary.DuplicateOrderNumbers); n > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("중복된 발주번호가 발견되었습니다: %s",
				strings.Join(result.Summary.DuplicateOrderNumbers, ", ")))
	}

	if result.Summary.ValidRows == 0 {
		result.fail("유효한 데이터 행이 없습니다.")
	}

	return result
}
