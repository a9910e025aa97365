package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	emailPattern  = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
	idCardPattern = regexp.MustCompile(`^\d{17}[\dXx]$`)
	taxIDPattern  = regexp.MustCompile(`^[0-9A-Z]{15}$|^[0-9A-Z]{18}$|^[0-9A-Z]{20}$`)
)

func checkFormat(field, value string) []Result {
	fail := func(msg string) []Result {
		return []Result{{Field: field, Type: CheckFormat, Severity: SeverityError, Message: msg}}
	}

	switch inferKind(field) {
	case kindEmail:
		if !emailPattern.MatchString(value) {
			return fail("邮箱格式不正确")
		}
	case kindPhone:
		// Leading-digit mistakes go to the suggestion pass instead of
		// failing here.
		if !digitsPattern.MatchString(value) || len(value) != 11 {
			return fail("手机号应为11位数字")
		}
	case kindIDCard:
		if !idCardPattern.MatchString(value) {
			return fail("身份证号格式不正确")
		}
	case kindAmount:
		if _, ok := parseAmount(value); !ok {
			return fail("金额格式不正确")
		}
	case kindDate:
		if _, ok := parseDate(value); !ok {
			return fail("日期格式不正确")
		}
	}
	return nil
}

var (
	highAmount = decimal.NewFromInt(1_000_000)
	zeroAmount = decimal.Zero
)

func checkRange(field, value string) []Result {
	switch inferKind(field) {
	case kindAmount:
		d, ok := parseAmount(value)
		if !ok {
			return nil
		}
		if d.LessThan(zeroAmount) {
			return []Result{{Field: field, Type: CheckRange, Severity: SeverityError, Message: "金额不能为负数"}}
		}
		if d.GreaterThan(highAmount) {
			return []Result{{Field: field, Type: CheckRange, Severity: SeverityWarning, Message: "金额超过100万，请确认", IsValid: true}}
		}
	case kindDate:
		t, ok := parseDate(value)
		if !ok {
			return nil
		}
		now := time.Now()
		if t.After(now.AddDate(2, 0, 0)) {
			return []Result{{Field: field, Type: CheckRange, Severity: SeverityWarning, Message: "日期在两年之后，请确认", IsValid: true}}
		}
		if t.Before(now.AddDate(-10, 0, 0)) {
			return []Result{{Field: field, Type: CheckRange, Severity: SeverityWarning, Message: "日期在十年之前，请确认", IsValid: true}}
		}
	}
	return nil
}

func crossFieldChecks(fields map[string]string) []Result {
	var results []Result

	// Contact check only fires when a person is identified at all.
	hasName, hasContact := false, false
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		switch inferKind(field) {
		case kindEmail, kindPhone:
			hasContact = true
		default:
			lower := strings.ToLower(field)
			if strings.Contains(lower, "name") || strings.Contains(lower, "姓名") {
				hasName = true
			}
		}
	}
	if hasName && !hasContact {
		results = append(results, Result{
			Field:    "contact",
			Type:     CheckCrossField,
			Severity: SeverityWarning,
			Message:  "缺少联系方式（电话或邮箱）",
			IsValid:  true,
		})
	}

	start, startField := findDate(fields, "start", "开始")
	end, endField := findDate(fields, "end", "结束")
	if startField != "" && endField != "" && start.After(end) {
		results = append(results, Result{
			Field:    endField,
			Type:     CheckCrossField,
			Severity: SeverityError,
			Message:  "结束日期不能早于开始日期",
		})
	}
	return results
}

func findDate(fields map[string]string, keywords ...string) (time.Time, string) {
	var found time.Time
	foundField := ""
	for _, field := range sortedFieldKeys(fields) {
		lower := strings.ToLower(field)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if t, ok := parseDate(strings.TrimSpace(fields[field])); ok {
					return t, field
				}
			}
		}
	}
	return found, foundField
}

// BusinessRule is one invoice/process-specific check. A rule runs only
// when at least one of its fields is present; a panic inside Check is
// recovered into a warning naming the rule.
type BusinessRule struct {
	Name   string
	Fields []string
	Check  func(fields map[string]string) []Result
}

func (r BusinessRule) applies(fields map[string]string) bool {
	for _, f := range r.Fields {
		if strings.TrimSpace(fields[f]) != "" {
			return true
		}
	}
	return false
}

func (e *Engine) businessChecks(fields map[string]string) []Result {
	var results []Result
	for _, rule := range e.rules {
		if !rule.applies(fields) {
			continue
		}
		results = append(results, runRule(rule, fields)...)
	}
	return results
}

func runRule(rule BusinessRule, fields map[string]string) (out []Result) {
	defer func() {
		if r := recover(); r != nil {
			out = []Result{{
				Field:    rule.Name,
				Type:     CheckBusiness,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("业务规则 %s 执行失败，已跳过", rule.Name),
				IsValid:  true,
			}}
		}
	}()
	return rule.Check(fields)
}

var amountTolerance = decimal.NewFromFloat(0.01)

func defaultBusinessRules() []BusinessRule {
	return []BusinessRule{
		{
			Name:   "amount_consistency",
			Fields: []string{"total_amount", "tax_amount", "net_amount"},
			Check:  checkAmountConsistency,
		},
		{
			Name:   "date_order",
			Fields: []string{"issue_date", "due_date"},
			Check:  checkDateOrder,
		},
		{
			Name:   "party_distinct",
			Fields: []string{"seller_name", "buyer_name"},
			Check:  checkPartyDistinct,
		},
		{
			Name:   "tax_id_shape",
			Fields: []string{"seller_tax_id", "buyer_tax_id"},
			Check:  checkTaxIDShape,
		},
	}
}

// checkAmountConsistency verifies total = tax + net within a one-cent
// tolerance and suggests the reconciling net amount.
func checkAmountConsistency(fields map[string]string) []Result {
	total, okT := parseAmount(fields["total_amount"])
	tax, okX := parseAmount(fields["tax_amount"])
	net, okN := parseAmount(fields["net_amount"])
	if !okT || !okX || !okN {
		return nil
	}
	diff := total.Sub(tax.Add(net))
	if diff.Abs().LessThanOrEqual(amountTolerance) {
		return nil
	}
	return []Result{{
		Field:          "net_amount",
		Type:           CheckBusiness,
		Severity:       SeverityError,
		Message:        "金额不一致：价税合计应等于税额与不含税金额之和",
		SuggestedValue: total.Sub(tax).StringFixed(2),
	}}
}

func checkDateOrder(fields map[string]string) []Result {
	issue, okI := parseDate(strings.TrimSpace(fields["issue_date"]))
	due, okD := parseDate(strings.TrimSpace(fields["due_date"]))
	if !okI || !okD {
		return nil
	}
	if due.Before(issue) {
		return []Result{{
			Field:    "due_date",
			Type:     CheckBusiness,
			Severity: SeverityError,
			Message:  "付款日期不能早于开票日期",
		}}
	}
	if due.Sub(issue) > 365*24*time.Hour {
		return []Result{{
			Field:    "due_date",
			Type:     CheckBusiness,
			Severity: SeverityWarning,
			Message:  "付款期限超过365天，请确认",
			IsValid:  true,
		}}
	}
	return nil
}

func checkPartyDistinct(fields map[string]string) []Result {
	seller := strings.TrimSpace(fields["seller_name"])
	buyer := strings.TrimSpace(fields["buyer_name"])
	if seller == "" || buyer == "" || seller != buyer {
		return nil
	}
	return []Result{{
		Field:    "buyer_name",
		Type:     CheckBusiness,
		Severity: SeverityError,
		Message:  "销售方与购买方不能相同",
	}}
}

func checkTaxIDShape(fields map[string]string) []Result {
	var results []Result
	for _, field := range []string{"seller_tax_id", "buyer_tax_id"} {
		v := strings.TrimSpace(fields[field])
		if v == "" {
			continue
		}
		if !taxIDPattern.MatchString(strings.ToUpper(v)) {
			results = append(results, Result{
				Field:    field,
				Type:     CheckBusiness,
				Severity: SeverityWarning,
				Message:  "纳税人识别号应为15、18或20位数字字母组合",
				IsValid:  true,
			})
		}
	}
	return results
}

func sortedFieldKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
