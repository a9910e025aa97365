package entity

import "strings"

type ElementType string

const (
	ElementInput      ElementType = "input"
	ElementSelect     ElementType = "select"
	ElementButton     ElementType = "button"
	ElementCheckbox   ElementType = "checkbox"
	ElementRadio      ElementType = "radio"
	ElementTextarea   ElementType = "textarea"
	ElementFileUpload ElementType = "file_upload"
	ElementLink       ElementType = "link"
)

// IsFillable reports whether auto-fill can write a value into the element.
func (t ElementType) IsFillable() bool {
	return t == ElementInput || t == ElementSelect || t == ElementTextarea
}

type PageElement struct {
	Type        ElementType
	Selector    string
	Name        string
	Value       string
	Required    bool
	Options     []string
	Placeholder string
}

type PageKind string

const (
	PageKindLogin   PageKind = "login"
	PageKindForm    PageKind = "form"
	PageKindSuccess PageKind = "success"
	PageKindError   PageKind = "error"
	PageKindUnknown PageKind = "unknown"
)

// PageState is one full snapshot of a remote page after a single analysis
// pass. It is replaced wholesale on every navigation; elements from two
// different loads never share a PageState.
type PageState struct {
	URL        string
	Title      string
	Kind       PageKind
	Elements   []PageElement
	Screenshot []byte
	HTML       string
}

// FillableElements returns the elements auto-fill may target, in page order.
func (p *PageState) FillableElements() []PageElement {
	out := make([]PageElement, 0, len(p.Elements))
	for _, el := range p.Elements {
		if el.Type.IsFillable() {
			out = append(out, el)
		}
	}
	return out
}

// RequiredFields returns the names of required fillable elements.
func (p *PageState) RequiredFields() []string {
	var out []string
	for _, el := range p.Elements {
		if el.Required && el.Type.IsFillable() {
			out = append(out, el.Name)
		}
	}
	return out
}

// Keyword tables for page-kind inference. Policy, not structure: swap the
// lists to retarget the heuristic without touching ClassifyPageKind.
var (
	loginKeywords   = []string{"login", "登录", "password", "密码"}
	successKeywords = []string{"success", "成功", "complete", "完成"}
	errorKeywords   = []string{"error", "错误", "fail", "失败"}
)

// ClassifyPageKind infers the page kind from lower-cased markup and the
// analyzed elements. Priority is fixed: login, then success, then error;
// a page matching several keyword groups takes the first.
func ClassifyPageKind(html string, elements []PageElement) PageKind {
	lower := strings.ToLower(html)

	for _, kw := range loginKeywords {
		if strings.Contains(lower, kw) {
			return PageKindLogin
		}
	}
	for _, kw := range successKeywords {
		if strings.Contains(lower, kw) {
			return PageKindSuccess
		}
	}
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return PageKindError
		}
	}

	fillable := 0
	for _, el := range elements {
		if el.Type.IsFillable() {
			fillable++
		}
	}
	if fillable > 2 {
		return PageKindForm
	}
	return PageKindUnknown
}
