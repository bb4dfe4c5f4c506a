package core

// suggestions.go proposes corrections for problems found during validation.
//
// Suggestions are generated per upload session and applied selectively:
// the user picks which ones to accept, the chosen values are written into
// the session's rows, and the batch is validated again. Nothing here is
// persisted on its own.

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SuggestionCategory groups suggestions by what they correct.
type SuggestionCategory string

const (
	CategoryVendor   SuggestionCategory = "vendor"
	CategoryCategory SuggestionCategory = "category"
	CategoryEmail    SuggestionCategory = "email"
	CategoryDate     SuggestionCategory = "date"
	CategoryNumber   SuggestionCategory = "number"
	CategoryText     SuggestionCategory = "text"
)

// Impact ranks how much accepting a suggestion matters for order creation.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

func impactOf(c SuggestionCategory) Impact {
	switch c {
	case CategoryVendor, CategoryNumber:
		return ImpactHigh
	case CategoryDate, CategoryEmail:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Suggestion is a proposed replacement for one cell. RowIndex is the Excel
// row number, matching validation messages.
type Suggestion struct {
	ID             string             `json:"id"`
	RowIndex       int                `json:"rowIndex"`
	Field          string             `json:"field"`
	OriginalValue  string             `json:"originalValue"`
	SuggestedValue string             `json:"suggestedValue"`
	Confidence     int                `json:"confidence"`
	Reason         string             `json:"reason"`
	Category       SuggestionCategory `json:"type"`
	Impact         Impact             `json:"impact"`
}

// DefaultConfidenceThreshold drops suggestions below this confidence.
const DefaultConfidenceThreshold = 60

// SuggestOptions selects which suggestion sources run.
type SuggestOptions struct {
	IncludeVendors      bool
	IncludeEmails       bool
	IncludeCategories   bool
	ConfidenceThreshold int
}

// DefaultSuggestOptions enables every source with the default threshold.
func DefaultSuggestOptions() SuggestOptions {
	return SuggestOptions{
		IncludeVendors:      true,
		IncludeEmails:       true,
		IncludeCategories:   true,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// EmailColumns are headers treated as vendor email addresses when present.
var EmailColumns = []string{"이메일", "거래처이메일", "Email"}

// Suggester builds suggestions from validation output.
type Suggester struct {
	matcher *Matcher
	now     func() time.Time
	newID   func() string
}

// NewSuggester creates a suggester that resolves vendor names with matcher.
func NewSuggester(matcher *Matcher) *Suggester {
	return &Suggester{
		matcher: matcher,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Suggest returns suggestions for the issues in result and for unmatched
// vendor names in rows. Registry failures are returned, not swallowed.
func (s *Suggester) Suggest(ctx context.Context, headers []string, rows [][]string, result ValidationResult, opts SuggestOptions) ([]Suggestion, error) {
	idx := MakeHeaderIndex(headers)
	var out []Suggestion

	keep := func(sg *Suggestion) {
		if sg == nil || sg.Confidence < opts.ConfidenceThreshold {
			return
		}
		if sg.SuggestedValue == sg.OriginalValue {
			return
		}
		sg.ID = s.newID()
		sg.Impact = impactOf(sg.Category)
		out = append(out, *sg)
	}

	for _, issue := range result.Issues {
		keep(s.forIssue(issue, rows, idx))
	}

	if opts.IncludeVendors && s.matcher != nil {
		vendorSuggestions, err := s.vendorSuggestions(ctx, rows, idx)
		if err != nil {
			return nil, err
		}
		for i := range vendorSuggestions {
			keep(&vendorSuggestions[i])
		}
	}

	if opts.IncludeEmails {
		for _, sg := range s.emailSuggestions(rows, idx) {
			keep(&sg)
		}
	}

	if opts.IncludeCategories {
		for _, sg := range s.categorySuggestions(rows, idx) {
			keep(&sg)
		}
	}

	return out, nil
}

func (s *Suggester) forIssue(issue RowIssue, rows [][]string, idx HeaderIndex) *Suggestion {
	base := Suggestion{RowIndex: issue.Row, Field: issue.Field, OriginalValue: issue.Value}

	switch issue.Kind {
	case IssueNotDate:
		if std, ok := standardizeDate(issue.Value); ok {
			base.SuggestedValue, base.Confidence = std, 90
			base.Category, base.Reason = CategoryDate, "날짜 형식 표준화"
			return &base
		}
		if inferred, ok := inferRelativeDate(issue.Value, s.now()); ok {
			base.SuggestedValue, base.Confidence = inferred, 70
			base.Category, base.Reason = CategoryDate, "날짜 추론"
			return &base
		}

	case IssueNotNumber:
		if n, ok := extractNumber(issue.Value); ok {
			base.SuggestedValue, base.Confidence = n, 95
			base.Category, base.Reason = CategoryNumber, "숫자 형식 정규화"
			return &base
		}

	case IssueTotalMismatch, IssueSupplyMismatch:
		row, ok := rowAt(rows, issue.Row)
		if !ok {
			return nil
		}
		num := func(col string) (string, bool) {
			d, ok := ParseNumber(cellAt(row, idx.Lookup(col)))
			if !ok {
				return "", false
			}
			return d.String(), true
		}
		if issue.Kind == IssueTotalMismatch {
			supply, ok1 := ParseNumber(cellAt(row, idx.Lookup(ColSupplyAmt)))
			tax, ok2 := ParseNumber(cellAt(row, idx.Lookup(ColTaxAmt)))
			if !ok1 || !ok2 {
				return nil
			}
			base.SuggestedValue = supply.Add(tax).String()
			base.Reason = "공급가액 + 세액으로 합계 재계산"
		} else {
			qty, ok1 := ParseNumber(cellAt(row, idx.Lookup(ColQuantity)))
			price, ok2 := ParseNumber(cellAt(row, idx.Lookup(ColUnitPrice)))
			if !ok1 || !ok2 {
				return nil
			}
			base.SuggestedValue = qty.Mul(price).String()
			base.Reason = "수량 × 단가로 공급가액 재계산"
		}
		if orig, ok := num(issue.Field); ok {
			base.OriginalValue = orig
		}
		base.Confidence, base.Category = 90, CategoryNumber
		return &base

	case IssueFormat, IssueLength:
		if issue.Field != ColOrderNumber {
			return nil
		}
		fixed := normalizeOrderNumber(issue.Value)
		if rule := ruleFor(ColOrderNumber); rule != nil && fixed != "" &&
			rule.Pattern.MatchString(fixed) && len(fixed) >= rule.MinLen && len(fixed) <= rule.MaxLen {
			base.SuggestedValue, base.Confidence = fixed, 80
			base.Category, base.Reason = CategoryText, "발주번호 형식 정규화"
			return &base
		}
	}
	return nil
}

func (s *Suggester) vendorSuggestions(ctx context.Context, rows [][]string, idx HeaderIndex) ([]Suggestion, error) {
	type key struct {
		name string
		t    VendorType
	}
	cache := make(map[key]VendorMatch)

	columns := []struct {
		col string
		t   VendorType
	}{
		{ColVendorName, VendorTypeBuyer},
		{ColDeliveryName, VendorTypeDelivery},
	}

	var out []Suggestion
	for i, row := range rows {
		if IsEmptyRow(row) {
			continue
		}
		for _, c := range columns {
			name := normalizeName(cellAt(row, idx.Lookup(c.col)))
			if name == "" {
				continue
			}
			k := key{name, c.t}
			m, ok := cache[k]
			if !ok {
				var err error
				m, err = s.matcher.Validate(ctx, name, c.t)
				if err != nil {
					return nil, err
				}
				cache[k] = m
			}
			top, ok := m.TopSuggestion()
			if m.Exists || !ok {
				continue
			}
			out = append(out, Suggestion{
				RowIndex:       i + 2,
				Field:          c.col,
				OriginalValue:  name,
				SuggestedValue: top.Name,
				Confidence:     top.Similarity,
				Reason:         fmt.Sprintf("유사 거래처 발견 (%d%% 일치)", top.Similarity),
				Category:       CategoryVendor,
			})
		}
	}
	return out, nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var emailFixes = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`^([^@]+)at([^@]+)\.(.+)$`), "$1@$2.$3"},
	{regexp.MustCompile(`^([^@]+)@([^.]+)$`), "$1@$2.com"},
	{regexp.MustCompile(`^([^@]+)\s+([^@]+)@(.+)$`), "$2@$3"},
	{regexp.MustCompile(`^([^@]+)@([^@]+)\s+\.(.+)$`), "$1@$2.$3"},
}

func (s *Suggester) emailSuggestions(rows [][]string, idx HeaderIndex) []Suggestion {
	var out []Suggestion
	for _, col := range EmailColumns {
		pos := idx.Lookup(col)
		if pos < 0 {
			continue
		}
		for i, row := range rows {
			raw := CleanCell(cellAt(row, pos))
			if raw == "" || emailPattern.MatchString(raw) {
				continue
			}
			fixed, conf, reason, ok := suggestEmail(raw)
			if !ok {
				continue
			}
			out = append(out, Suggestion{
				RowIndex:       i + 2,
				Field:          col,
				OriginalValue:  raw,
				SuggestedValue: fixed,
				Confidence:     conf,
				Reason:         reason,
				Category:       CategoryEmail,
			})
		}
	}
	return out
}

// suggestEmail repairs a malformed address. Simple repairs (missing @
// before the domain, missing TLD) score 85; pattern rewrites score 75.
func suggestEmail(raw string) (string, int, string, bool) {
	fixed := strings.ToLower(strings.TrimSpace(raw))

	if !strings.Contains(fixed, "@") && strings.Contains(fixed, ".") {
		last := strings.LastIndex(fixed, ".")
		fixed = strings.Replace(fixed[:last], ".", "@", 1) + fixed[last:]
	}
	if at := strings.Index(fixed, "@"); at >= 0 && !strings.Contains(fixed[at:], ".") {
		fixed += ".com"
	}
	if emailPattern.MatchString(fixed) {
		return fixed, 85, "이메일 형식 자동 수정", true
	}

	candidate := strings.ToLower(strings.TrimSpace(raw))
	for _, fix := range emailFixes {
		if !fix.pattern.MatchString(candidate) {
			continue
		}
		candidate = fix.pattern.ReplaceAllString(candidate, fix.replacement)
		if emailPattern.MatchString(candidate) {
			return candidate, 75, "일반적인 이메일 패턴 적용", true
		}
	}
	return "", 0, "", false
}

// CategoryGuess is a rule-based classification for an item name.
type CategoryGuess struct {
	Major      string
	Middle     string
	Minor      string
	Confidence int
}

var categoryRules = []struct {
	keywords []string
	guess    CategoryGuess
}{
	{[]string{"철근", "철골", "h빔", "h-beam", "steel"}, CategoryGuess{"건축자재", "철골", "구조재", 85}},
	{[]string{"시멘트", "cement", "콘크리트", "concrete"}, CategoryGuess{"건축자재", "콘크리트", "시멘트", 85}},
	{[]string{"벽돌", "brick", "블록", "block"}, CategoryGuess{"건축자재", "조적", "벽돌", 85}},
	{[]string{"전선", "cable", "케이블", "wire"}, CategoryGuess{"전기자재", "전선", "일반전선", 80}},
	{[]string{"스위치", "switch", "콘센트", "outlet"}, CategoryGuess{"전기자재", "배선기구", "스위치", 80}},
	{[]string{"파이프", "pipe", "배관"}, CategoryGuess{"설비자재", "배관", "일반배관", 80}},
	{[]string{"밸브", "valve", "벨브"}, CategoryGuess{"설비자재", "배관", "밸브", 80}},
	{[]string{"도배", "벽지", "wallpaper"}, CategoryGuess{"인테리어", "벽지", "일반벽지", 75}},
	{[]string{"타일", "tile"}, CategoryGuess{"인테리어", "바닥재", "타일", 75}},
	{[]string{"안전모", "헬멧", "helmet", "안전"}, CategoryGuess{"안전장비", "보호구", "머리보호", 70}},
	{[]string{"드릴", "drill", "공구", "tool"}, CategoryGuess{"공구", "전동공구", "드릴", 70}},
}

// GuessCategory classifies itemName by keyword.
func GuessCategory(itemName string) (CategoryGuess, bool) {
	lower := strings.ToLower(strings.TrimSpace(itemName))
	if lower == "" {
		return CategoryGuess{}, false
	}
	for _, r := range categoryRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.guess, true
			}
		}
	}
	return CategoryGuess{}, false
}

// categorySuggestions fills empty category cells from the item name. Only
// category columns present in the sheet are considered.
func (s *Suggester) categorySuggestions(rows [][]string, idx HeaderIndex) []Suggestion {
	itemPos := idx.Lookup(ColItemName)
	if itemPos < 0 {
		return nil
	}
	levels := []string{ColMajorCategory, ColMiddleCategory, ColMinorCategory}

	var out []Suggestion
	for i, row := range rows {
		if IsEmptyRow(row) {
			continue
		}
		guess, ok := GuessCategory(cellAt(row, itemPos))
		if !ok {
			continue
		}
		values := []string{guess.Major, guess.Middle, guess.Minor}
		for li, col := range levels {
			pos := idx.Lookup(col)
			if pos < 0 || CleanCell(cellAt(row, pos)) != "" {
				continue
			}
			out = append(out, Suggestion{
				RowIndex:       i + 2,
				Field:          col,
				OriginalValue:  "",
				SuggestedValue: values[li],
				Confidence:     guess.Confidence,
				Reason:         "카테고리 자동 분류",
				Category:       CategoryCategory,
			})
		}
	}
	return out
}

var lenientDateLayouts = []string{
	"2006.1.2",
	"2006 1 2",
	"2006년1월2일",
	"06-01-02",
	"06.01.02",
	"06/01/02",
	"02-01-2006",
	"2006-01-02 오전 3:04:05",
	"2006-01-02 오후 3:04:05",
}

// standardizeDate rewrites a date the strict parser rejected as YYYY-MM-DD.
func standardizeDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".")
	if t, ok := ParseDate(s); ok {
		return t.Format("2006-01-02"), true
	}
	for _, layout := range lenientDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

var relativeDates = []struct {
	pattern *regexp.Regexp
	days    int
}{
	{regexp.MustCompile(`(?i)모레|day after tomorrow`), 2},
	{regexp.MustCompile(`(?i)오늘|today`), 0},
	{regexp.MustCompile(`(?i)내일|tomorrow`), 1},
	{regexp.MustCompile(`(?i)다음\s*주|next week`), 7},
	{regexp.MustCompile(`(?i)다음\s*달|next month`), 30},
}

// inferRelativeDate resolves words like 내일 or "next week" against now.
func inferRelativeDate(raw string, now time.Time) (string, bool) {
	for _, rd := range relativeDates {
		if rd.pattern.MatchString(raw) {
			return now.AddDate(0, 0, rd.days).Format("2006-01-02"), true
		}
	}
	return "", false
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// extractNumber strips units and currency marks ("1,200원", "₩3,000",
// "10 EA") and returns the remaining number.
func extractNumber(raw string) (string, bool) {
	cleaned := nonNumeric.ReplaceAllString(raw, "")
	if cleaned == "" {
		return "", false
	}
	d, ok := ParseNumber(cleaned)
	if !ok {
		return "", false
	}
	return d.String(), true
}

var orderNumberJunk = regexp.MustCompile(`[^A-Z0-9-]+`)

func normalizeOrderNumber(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return orderNumberJunk.ReplaceAllString(s, "")
}

func ruleFor(field string) *FieldRule {
	for i := range TemplateRules {
		if TemplateRules[i].Field == field {
			return &TemplateRules[i]
		}
	}
	return nil
}

// rowAt returns the data row for an Excel row number.
func rowAt(rows [][]string, rowNumber int) ([]string, bool) {
	i := rowNumber - 2
	if i < 0 || i >= len(rows) {
		return nil, false
	}
	return rows[i], true
}

// ApplyResult counts accepted suggestions.
type ApplyResult struct {
	Applied int      `json:"applied"`
	Failed  int      `json:"failed"`
	Unknown []string `json:"unknownIds,omitempty"`
}

// ApplySuggestions writes the chosen suggestions into a copy of rows. Ids
// that do not match a suggestion, or whose target cell no longer exists,
// count as failed.
func ApplySuggestions(headers []string, rows [][]string, suggestions []Suggestion, ids []string) ([][]string, ApplyResult) {
	byID := make(map[string]Suggestion, len(suggestions))
	for _, sg := range suggestions {
		byID[sg.ID] = sg
	}
	idx := MakeHeaderIndex(headers)

	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}

	var res ApplyResult
	for _, id := range ids {
		sg, ok := byID[id]
		if !ok {
			res.Failed++
			res.Unknown = append(res.Unknown, id)
			continue
		}
		pos := idx.Lookup(sg.Field)
		i := sg.RowIndex - 2
		if pos < 0 || i < 0 || i >= len(out) {
			res.Failed++
			continue
		}
		for len(out[i]) <= pos {
			out[i] = append(out[i], "")
		}
		out[i][pos] = sg.SuggestedValue
		res.Applied++
	}
	return out, res
}
