package qwen

import (
	"strings"
	"testing"
)

func TestParseClassification_PlainJSON(t *testing.T) {
	parsed, err := parseClassification(`{"intent": "expense_report", "confidence": 0.92, "entities": {"amount": "1130"}}`)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if parsed.Intent != "expense_report" {
		t.Errorf("intent = %s", parsed.Intent)
	}
	if parsed.Confidence != 0.92 {
		t.Errorf("confidence = %f", parsed.Confidence)
	}
	if parsed.Entities["amount"] != "1130" {
		t.Errorf("entities = %v", parsed.Entities)
	}
}

func TestParseClassification_WithSurroundingText(t *testing.T) {
	reply := "分类结果如下：\n```json\n{\"intent\": \"leave_request\", \"confidence\": 0.8}\n```\n希望有帮助。"
	parsed, err := parseClassification(reply)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if parsed.Intent != "leave_request" {
		t.Errorf("intent = %s", parsed.Intent)
	}
}

func TestParseClassification_Errors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no json", "抱歉，我不确定。"},
		{"broken json", `{"intent": `},
		{"missing intent", `{"confidence": 0.9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseClassification(tt.reply); err == nil {
				t.Errorf("expected error for %q", tt.reply)
			}
		})
	}
}

func TestParseClassification_ClampsConfidence(t *testing.T) {
	parsed, err := parseClassification(`{"intent": "unknown", "confidence": 3.5}`)
	if err != nil {
		t.Fatalf("parseClassification failed: %v", err)
	}
	if parsed.Confidence != 0 {
		t.Errorf("out-of-range confidence should fold to 0, got %f", parsed.Confidence)
	}
}

func TestClassifyPrompt_EmbedsHints(t *testing.T) {
	prompt := classifyPrompt(map[string]any{"target_url": "https://bpm.internal/form"})
	if !strings.Contains(prompt, "https://bpm.internal/form") {
		t.Error("prompt should embed the session context")
	}
	if !strings.Contains(prompt, "expense_report") {
		t.Error("prompt should list the intent set")
	}
}
