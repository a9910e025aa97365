package validation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// domainTypos maps frequent email domain misspellings to the intended
// domain.
var domainTypos = map[string]string{
	"gmial.com":   "gmail.com",
	"gamil.com":   "gmail.com",
	"gmai.com":    "gmail.com",
	"hotmial.com": "hotmail.com",
	"163.co":      "163.com",
	"qq.co":       "qq.com",
}

var largeIntegerAmount = decimal.NewFromInt(10_000)

// suggestions emits non-failing hints: a plausible phone correction, an
// email domain fix, a unit reminder on large whole-number amounts.
func suggestions(field, value string) []Result {
	switch inferKind(field) {
	case kindPhone:
		if len(value) == 11 && digitsPattern.MatchString(value) && value[0] != '1' {
			return []Result{{
				Field:          field,
				Type:           CheckFormat,
				Severity:       SeverityInfo,
				Message:        "手机号首位应为1，请确认",
				IsValid:        true,
				SuggestedValue: "1" + value[1:],
			}}
		}
	case kindEmail:
		at := strings.LastIndex(value, "@")
		if at < 0 {
			return nil
		}
		domain := strings.ToLower(value[at+1:])
		if fixed, ok := domainTypos[domain]; ok {
			return []Result{{
				Field:          field,
				Type:           CheckFormat,
				Severity:       SeverityInfo,
				Message:        "邮箱域名疑似拼写错误",
				IsValid:        true,
				SuggestedValue: value[:at+1] + fixed,
			}}
		}
	case kindAmount:
		d, ok := parseAmount(value)
		if !ok {
			return nil
		}
		if !strings.Contains(value, ".") && d.GreaterThanOrEqual(largeIntegerAmount) {
			return []Result{{
				Field:    field,
				Type:     CheckRange,
				Severity: SeverityInfo,
				Message:  "金额为较大整数，请确认单位是元",
				IsValid:  true,
			}}
		}
	}
	return nil
}
