package entity

// FilledField records one successful auto-fill action.
type FilledField struct {
	Field string `json:"field"`
	Value string `json:"value"`
	// Element is the matched page element's name, when it differs from the
	// logical field name.
	Element string `json:"element,omitempty"`
}

// FailedField records one field auto-fill could not complete, whether it
// never matched an element or the fill action itself failed.
type FailedField struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FillResult is the outcome of one auto-fill batch over a single page.
type FillResult struct {
	Filled []FilledField
	Failed []FailedField
}

// Success reports whether every attempted field was filled.
func (r *FillResult) Success() bool {
	return len(r.Failed) == 0
}
