package orchestrator

import (
	"testing"

	"bpm-agent/internal/domain/entity"
)

func TestMatchScore(t *testing.T) {
	tests := []struct {
		field   string
		element string
		want    int
	}{
		{"name", "name", 100},
		{"Name", "name", 100},
		{"name", "username", 80},
		{"user_name", "name", 80},
		{"invoice_number", "number input", 60},
		{"amount", "备注", 0},
		{"", "name", 0},
	}

	for _, tt := range tests {
		if got := matchScore(tt.field, tt.element); got != tt.want {
			t.Errorf("matchScore(%q, %q) = %d, want %d", tt.field, tt.element, got, tt.want)
		}
	}
}

func TestBestElement_StableFirstWins(t *testing.T) {
	page := &entity.PageState{Elements: []entity.PageElement{
		{Type: entity.ElementInput, Selector: "#a", Name: "username"},
		{Type: entity.ElementInput, Selector: "#b", Name: "fullname"},
	}}

	// Both score 80 against "name"; the first element in page order wins
	// on every call.
	for i := 0; i < 10; i++ {
		el, ok := bestElement(page, "name")
		if !ok {
			t.Fatal("expected a match")
		}
		if el.Selector != "#a" {
			t.Fatalf("bestElement picked %s, want #a", el.Selector)
		}
	}
}

func TestBestElement_ThresholdAndFillable(t *testing.T) {
	page := &entity.PageState{Elements: []entity.PageElement{
		{Type: entity.ElementButton, Selector: "#btn", Name: "amount"},
		{Type: entity.ElementInput, Selector: "#memo", Name: "备注"},
	}}

	// The exact match is a button, the only fillable element scores 0.
	if _, ok := bestElement(page, "amount"); ok {
		t.Error("expected no match when only a button matches")
	}
}

func TestHeuristicValue(t *testing.T) {
	extracted := map[string]string{
		"name":  "张三",
		"phone": "13800138000",
	}

	tests := []struct {
		element string
		want    string
		ok      bool
	}{
		{"name", "张三", true},
		{"Name", "张三", true},
		{"用户名", "张三", true},
		{"联系电话", "13800138000", true},
		{"备注", "", false},
	}

	for _, tt := range tests {
		got, ok := heuristicValue(extracted, tt.element)
		if ok != tt.ok || got != tt.want {
			t.Errorf("heuristicValue(%q) = (%q, %v), want (%q, %v)", tt.element, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHeuristicValue_Deterministic(t *testing.T) {
	// Two extracted keys in the same synonym group: sorted key order must
	// make the winner stable.
	extracted := map[string]string{
		"tel":   "111",
		"phone": "222",
	}
	first, _ := heuristicValue(extracted, "联系电话")
	for i := 0; i < 20; i++ {
		got, ok := heuristicValue(extracted, "联系电话")
		if !ok || got != first {
			t.Fatalf("heuristicValue not deterministic: %q then %q", first, got)
		}
	}
}
