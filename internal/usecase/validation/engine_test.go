package validation

import (
	"reflect"
	"testing"
)

func amountConsistencyErrors(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Type == CheckBusiness && r.Field == "net_amount" && r.Severity == SeverityError {
			out = append(out, r)
		}
	}
	return out
}

func TestValidate_AmountConsistency(t *testing.T) {
	e := NewEngine()

	t.Run("inconsistent amounts", func(t *testing.T) {
		results := e.Validate(map[string]string{
			"total_amount": "1130.00",
			"tax_amount":   "130.00",
			"net_amount":   "900.00",
		})

		errs := amountConsistencyErrors(results)
		if len(errs) != 1 {
			t.Fatalf("got %d amount-consistency errors, want exactly 1: %+v", len(errs), results)
		}
		if errs[0].SuggestedValue != "1000.00" {
			t.Errorf("SuggestedValue = %q, want 1000.00", errs[0].SuggestedValue)
		}
	})

	t.Run("consistent amounts", func(t *testing.T) {
		results := e.Validate(map[string]string{
			"total_amount": "1130.00",
			"tax_amount":   "130.00",
			"net_amount":   "1000.00",
		})
		if errs := amountConsistencyErrors(results); len(errs) != 0 {
			t.Errorf("got %d amount-consistency errors, want 0", len(errs))
		}
	})

	t.Run("within one cent tolerance", func(t *testing.T) {
		results := e.Validate(map[string]string{
			"total_amount": "1130.00",
			"tax_amount":   "130.00",
			"net_amount":   "999.99",
		})
		if errs := amountConsistencyErrors(results); len(errs) != 0 {
			t.Errorf("one-cent difference should pass, got %+v", errs)
		}
	})
}

func TestValidate_PhoneSuggestion(t *testing.T) {
	e := NewEngine()
	results := e.Validate(map[string]string{"phone": "23800138000"})

	var suggestion *Result
	for i, r := range results {
		if r.Field == "phone" && r.SuggestedValue != "" {
			suggestion = &results[i]
		}
	}
	if suggestion == nil {
		t.Fatalf("no phone suggestion in %+v", results)
	}
	if suggestion.SuggestedValue != "13800138000" {
		t.Errorf("SuggestedValue = %q, want 13800138000", suggestion.SuggestedValue)
	}
	if !suggestion.IsValid || suggestion.Severity == SeverityError {
		t.Error("a phone suggestion must not fail validation")
	}

	// A well-formed number produces no finding at all.
	if clean := e.Validate(map[string]string{"phone": "13800138000"}); len(clean) != 0 {
		t.Errorf("valid phone produced findings: %+v", clean)
	}
}

func TestValidate_FormatChecks(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		name      string
		fields    map[string]string
		wantField string
		wantType  CheckType
	}{
		{"bad email", map[string]string{"email": "not-an-email"}, "email", CheckFormat},
		{"short phone", map[string]string{"phone": "12345"}, "phone", CheckFormat},
		{"bad amount", map[string]string{"total_amount": "abc"}, "total_amount", CheckFormat},
		{"bad date", map[string]string{"invoice_date": "someday"}, "invoice_date", CheckFormat},
		{"negative amount", map[string]string{"net_amount": "-5.00"}, "net_amount", CheckRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := e.Validate(tt.fields)
			for _, r := range results {
				if r.Field == tt.wantField && r.Type == tt.wantType && r.Severity == SeverityError {
					return
				}
			}
			t.Errorf("no %s error for %s in %+v", tt.wantType, tt.wantField, results)
		})
	}
}

func TestValidate_RequiredField(t *testing.T) {
	e := NewEngine()
	results := e.Validate(map[string]string{"invoice_number": "  "})

	found := false
	for _, r := range results {
		if r.Field == "invoice_number" && r.Type == CheckRequired {
			found = true
		}
	}
	if !found {
		t.Errorf("empty invoice_number should fail required check, got %+v", results)
	}

	// Empty optional fields are skipped entirely.
	if res := e.Validate(map[string]string{"memo": ""}); len(res) != 0 {
		t.Errorf("empty optional field produced findings: %+v", res)
	}
}

func TestValidate_CrossField(t *testing.T) {
	e := NewEngine()

	t.Run("date order", func(t *testing.T) {
		results := e.Validate(map[string]string{
			"start_date": "2026-03-10",
			"end_date":   "2026-03-01",
		})
		found := false
		for _, r := range results {
			if r.Type == CheckCrossField && r.Field == "end_date" && r.Severity == SeverityError {
				found = true
			}
		}
		if !found {
			t.Errorf("end before start should fail, got %+v", results)
		}
	})

	t.Run("missing contact", func(t *testing.T) {
		results := e.Validate(map[string]string{"name": "张三"})
		found := false
		for _, r := range results {
			if r.Type == CheckCrossField && r.Field == "contact" {
				found = true
				if !r.IsValid || r.Severity != SeverityWarning {
					t.Errorf("missing contact is a non-failing warning, got %+v", r)
				}
			}
		}
		if !found {
			t.Errorf("identified person without contact should warn, got %+v", results)
		}
	})

	t.Run("no contact warning without identity", func(t *testing.T) {
		results := e.Validate(map[string]string{"total_amount": "10.00"})
		for _, r := range results {
			if r.Field == "contact" {
				t.Errorf("contact warning fired without a person: %+v", r)
			}
		}
	})
}

func TestValidate_TaxIDIsNotAnAmount(t *testing.T) {
	e := NewEngine()

	// A well-formed 18-char tax id must not trip the amount format check.
	if results := e.Validate(map[string]string{"seller_tax_id": "91110108MA01C8C77B"}); len(results) != 0 {
		t.Errorf("valid tax id produced findings: %+v", results)
	}

	// A malformed one gets the shape warning, never a format error.
	results := e.Validate(map[string]string{"buyer_tax_id": "123"})
	for _, r := range results {
		if r.Severity == SeverityError {
			t.Errorf("tax id shape must warn, not fail: %+v", r)
		}
	}
	found := false
	for _, r := range results {
		if r.Field == "buyer_tax_id" && r.Type == CheckBusiness && r.IsValid {
			found = true
		}
	}
	if !found {
		t.Errorf("no tax-id shape warning in %+v", results)
	}

	// tax_amount still gets amount checks.
	results = e.Validate(map[string]string{"tax_amount": "abc"})
	found = false
	for _, r := range results {
		if r.Field == "tax_amount" && r.Type == CheckFormat && r.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("bad tax_amount should fail the amount format check, got %+v", results)
	}
}

func TestValidate_SellerEqualsBuyer(t *testing.T) {
	e := NewEngine()
	results := e.Validate(map[string]string{
		"seller_name": "甲公司",
		"buyer_name":  "甲公司",
	})
	found := false
	for _, r := range results {
		if r.Type == CheckBusiness && r.Field == "buyer_name" && r.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("identical parties should fail, got %+v", results)
	}
}

func TestValidate_PanickingRuleBecomesWarning(t *testing.T) {
	e := NewEngine()
	e.rules = append(e.rules, BusinessRule{
		Name:   "broken_rule",
		Fields: []string{"net_amount"},
		Check: func(map[string]string) []Result {
			panic("boom")
		},
	})

	results := e.Validate(map[string]string{"net_amount": "10.00"})
	found := false
	for _, r := range results {
		if r.Field == "broken_rule" && r.Severity == SeverityWarning && r.IsValid {
			found = true
		}
	}
	if !found {
		t.Errorf("panicking rule should degrade to a warning, got %+v", results)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	e := NewEngine()
	fields := map[string]string{
		"total_amount": "1130.00",
		"tax_amount":   "130.00",
		"net_amount":   "900.00",
		"phone":        "23800138000",
		"email":        "user@gmial.com",
	}

	first := e.Validate(fields)
	for i := 0; i < 5; i++ {
		if got := e.Validate(fields); !reflect.DeepEqual(got, first) {
			t.Fatalf("Validate not deterministic:\nfirst: %+v\ngot:   %+v", first, got)
		}
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{Field: "a", Severity: SeverityError, IsValid: false},
		{Field: "b", Severity: SeverityWarning, IsValid: true},
		{Field: "c", Severity: SeverityInfo, IsValid: true, SuggestedValue: "x"},
	}

	s := Summarize(results)
	if s.Total != 3 || s.ErrorCount != 1 || s.WarningCount != 1 || s.InfoCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.IsValid {
		t.Error("an invalid error-severity result must flip IsValid")
	}
	if !s.HasSuggestions {
		t.Error("HasSuggestions should be set")
	}

	empty := Summarize(nil)
	if !empty.IsValid || empty.Total != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestSummarize_WarningsKeepValid(t *testing.T) {
	s := Summarize([]Result{
		{Field: "a", Severity: SeverityWarning, IsValid: false},
	})
	if !s.IsValid {
		t.Error("warnings must not flip IsValid")
	}
}
