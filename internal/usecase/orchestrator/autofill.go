package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bpm-agent/internal/domain/entity"
)

// fieldSynonyms groups the logical field names the extractor and OCR
// produce with the labels Chinese/English BPM forms actually use. Slice
// order is match order.
var fieldSynonyms = []synonymGroup{
	{"name", []string{"name", "username", "fullname", "姓名", "用户名", "申请人"}},
	{"phone", []string{"phone", "mobile", "tel", "telephone", "电话", "手机", "手机号", "联系电话"}},
	{"email", []string{"email", "mail", "邮箱", "电子邮件", "电子邮箱"}},
	{"address", []string{"address", "addr", "地址", "住址", "联系地址"}},
	{"company", []string{"company", "organization", "公司", "单位", "企业", "销售方", "购买方"}},
	{"amount", []string{"amount", "price", "total", "金额", "价格", "合计", "总额", "报销金额"}},
	{"date", []string{"date", "time", "日期", "时间", "开票日期"}},
	{"invoice_number", []string{"invoice", "发票号", "发票号码", "票号"}},
	{"tax_id", []string{"tax", "税号", "纳税人识别号"}},
}

type synonymGroup struct {
	key      string
	keywords []string
}

func (g synonymGroup) contains(s string) bool {
	if s == g.key {
		return true
	}
	for _, kw := range g.keywords {
		if s == kw {
			return true
		}
	}
	return false
}

func (g synonymGroup) matchesName(elementName string) bool {
	for _, kw := range g.keywords {
		if strings.Contains(elementName, kw) {
			return true
		}
	}
	return false
}

// heuristicValue finds the extracted value for a page element: exact key
// match first, then the first synonym group whose keyword appears in the
// element name and that also owns one of the extracted keys. Map keys are
// visited in sorted order so the result is deterministic.
func heuristicValue(extracted map[string]string, elementName string) (string, bool) {
	elName := strings.ToLower(elementName)
	keys := sortedKeys(extracted)

	for _, k := range keys {
		if strings.ToLower(k) == elName {
			return extracted[k], true
		}
	}
	for _, grp := range fieldSynonyms {
		if !grp.matchesName(elName) {
			continue
		}
		for _, k := range keys {
			if grp.contains(strings.ToLower(k)) {
				return extracted[k], true
			}
		}
	}
	return "", false
}

// matchScore rates how well a logical field name fits a page element
// name. Exact match 100, substring either direction 80, shared token 60.
func matchScore(fieldName, elementName string) int {
	f := strings.ToLower(strings.TrimSpace(fieldName))
	e := strings.ToLower(strings.TrimSpace(elementName))
	if f == "" || e == "" {
		return 0
	}
	if f == e {
		return 100
	}
	if strings.Contains(e, f) || strings.Contains(f, e) {
		return 80
	}
	for _, tok := range strings.FieldsFunc(f, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		if strings.Contains(e, tok) {
			return 60
		}
	}
	return 0
}

// bestElement picks the fillable element with the highest score above 50.
// Ties keep the first element in page order.
func bestElement(page *entity.PageState, field string) (entity.PageElement, bool) {
	var best entity.PageElement
	bestScore := 0
	for _, el := range page.Elements {
		if !el.Type.IsFillable() {
			continue
		}
		if s := matchScore(field, el.Name); s > bestScore {
			best, bestScore = el, s
		}
	}
	return best, bestScore > 50
}

// fillElement applies one value through the automation handle, dispatching
// on element type.
func (o *Orchestrator) fillElement(ctx context.Context, el entity.PageElement, value string) error {
	switch el.Type {
	case entity.ElementInput, entity.ElementTextarea:
		return o.browser.Fill(ctx, el.Selector, value)
	case entity.ElementSelect:
		return o.browser.SelectOption(ctx, el.Selector, value)
	default:
		return fmt.Errorf("unsupported element type %q", el.Type)
	}
}

// fillByHeuristic walks the page's fillable elements and fills those the
// synonym table can resolve from extracted data. Elements with no match
// are skipped, not failures; a fill error is recorded and the batch
// continues.
func (o *Orchestrator) fillByHeuristic(ctx context.Context, page *entity.PageState) *entity.FillResult {
	res := &entity.FillResult{}
	for _, el := range page.FillableElements() {
		value, ok := heuristicValue(o.extracted, el.Name)
		if !ok {
			continue
		}
		if err := o.fillElement(ctx, el, value); err != nil {
			o.log.Warn("field fill failed", "field", el.Name, "error", err)
			res.Failed = append(res.Failed, entity.FailedField{Field: el.Name, Reason: err.Error()})
			continue
		}
		res.Filled = append(res.Filled, entity.FilledField{Field: el.Name, Value: value})
	}
	return res
}

// fillWithData fills a specific data set into the page, matching each
// field to its best-scoring element. Fields are processed in sorted order.
func (o *Orchestrator) fillWithData(ctx context.Context, page *entity.PageState, data map[string]string) *entity.FillResult {
	res := &entity.FillResult{}
	for _, field := range sortedKeys(data) {
		el, ok := bestElement(page, field)
		if !ok {
			res.Failed = append(res.Failed, entity.FailedField{Field: field, Reason: "no matching page element"})
			continue
		}
		if err := o.fillElement(ctx, el, data[field]); err != nil {
			o.log.Warn("field fill failed", "field", field, "selector", el.Selector, "error", err)
			res.Failed = append(res.Failed, entity.FailedField{Field: field, Reason: err.Error()})
			continue
		}
		res.Filled = append(res.Filled, entity.FilledField{Field: field, Value: data[field], Element: el.Name})
	}
	return res
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
