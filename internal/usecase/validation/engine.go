package validation

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CheckType string

const (
	CheckRequired   CheckType = "required"
	CheckFormat     CheckType = "format"
	CheckRange      CheckType = "range"
	CheckBusiness   CheckType = "business"
	CheckCrossField CheckType = "cross_field"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Result is one validation finding. A result with a SuggestedValue and
// IsValid true is a hint, not a failure.
type Result struct {
	Field          string    `json:"field"`
	Type           CheckType `json:"type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	IsValid        bool      `json:"is_valid"`
	SuggestedValue string    `json:"suggested_value,omitempty"`
}

type Summary struct {
	Total          int  `json:"total"`
	ErrorCount     int  `json:"error_count"`
	WarningCount   int  `json:"warning_count"`
	InfoCount      int  `json:"info_count"`
	IsValid        bool `json:"is_valid"`
	HasSuggestions bool `json:"has_suggestions"`
}

// Engine validates a flat field map. Stateless between calls; Validate is
// pure and ordered (fields in sorted key order, then cross-field, then
// business rules in registration order).
type Engine struct {
	rules []BusinessRule
}

func NewEngine() *Engine {
	return &Engine{rules: defaultBusinessRules()}
}

func (e *Engine) Validate(fields map[string]string) []Result {
	var results []Result

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		value := strings.TrimSpace(fields[field])
		if value == "" {
			if isRequiredField(field) {
				results = append(results, Result{
					Field:    field,
					Type:     CheckRequired,
					Severity: SeverityError,
					Message:  "必填字段不能为空",
				})
			}
			// Empty optional field: nothing else to check.
			continue
		}
		results = append(results, checkFormat(field, value)...)
		results = append(results, checkRange(field, value)...)
		results = append(results, suggestions(field, value)...)
	}

	results = append(results, crossFieldChecks(fields)...)
	results = append(results, e.businessChecks(fields)...)
	return results
}

// Summarize folds results into the per-turn summary attached to the
// completion envelope. IsValid means no error-severity failure.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), IsValid: true}
	for _, r := range results {
		switch r.Severity {
		case SeverityError:
			s.ErrorCount++
			if !r.IsValid {
				s.IsValid = false
			}
		case SeverityWarning:
			s.WarningCount++
		default:
			s.InfoCount++
		}
		if r.SuggestedValue != "" {
			s.HasSuggestions = true
		}
	}
	return s
}

// fieldKind is the validation type inferred from a field's name.
type fieldKind int

const (
	kindText fieldKind = iota
	kindEmail
	kindPhone
	kindIDCard
	kindAmount
	kindDate
)

var kindKeywords = []struct {
	kind     fieldKind
	keywords []string
}{
	{kindEmail, []string{"email", "mail", "邮箱", "电子邮件"}},
	{kindPhone, []string{"phone", "mobile", "tel", "电话", "手机"}},
	{kindIDCard, []string{"id_card", "idcard", "身份证"}},
	// No bare "tax" here: tax-id fields are not amounts.
	{kindAmount, []string{"amount", "price", "total", "net", "金额", "价格", "合计", "税额"}},
	{kindDate, []string{"date", "日期", "时间"}},
}

func inferKind(field string) fieldKind {
	lower := strings.ToLower(field)
	for _, k := range kindKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(lower, kw) {
				return k.kind
			}
		}
	}
	return kindText
}

var requiredKeywords = []string{"invoice_number", "发票号", "total_amount", "价税合计"}

func isRequiredField(field string) bool {
	lower := strings.ToLower(field)
	for _, kw := range requiredKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02", "2006年01月02日"}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseAmount(value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
