package orchestrator

import (
	"strings"

	"bpm-agent/internal/domain/entity"
)

// fallbackKeywords drives the deterministic classifier used when the LLM
// is unavailable or not confident. Slice order is precedence: the first
// group with a hit wins.
var fallbackKeywords = []struct {
	intent   entity.IntentType
	keywords []string
}{
	{entity.IntentExpenseReport, []string{"报销", "发票", "差旅", "餐费", "交通费", "住宿费", "票据"}},
	{entity.IntentLeaveRequest, []string{"请假", "休假", "年假", "病假", "事假", "调休"}},
	{entity.IntentPurchaseRequest, []string{"采购", "购买", "申购"}},
	{entity.IntentContractApproval, []string{"合同", "协议", "审批"}},
	{entity.IntentOCRProcessing, []string{"识别", "ocr", "扫描"}},
	{entity.IntentFormFilling, []string{"填写", "表单", "填表", "form"}},
	{entity.IntentDataExtraction, []string{"姓名：", "姓名:", "电话：", "电话:", "邮箱：", "邮箱:"}},
}

const (
	fallbackConfidence = 0.8
	unknownConfidence  = 0.1
)

// ClassifyByKeywords maps a message onto the intent set by keyword lookup
// alone. Matches get a fixed 0.8 confidence, misses fall to unknown at
// 0.1 so a later turn can still override.
func ClassifyByKeywords(message string) *entity.IntentResult {
	lower := strings.ToLower(message)
	for _, grp := range fallbackKeywords {
		for _, kw := range grp.keywords {
			if strings.Contains(lower, kw) {
				return &entity.IntentResult{
					Intent:     grp.intent,
					Confidence: fallbackConfidence,
					Context:    map[string]any{"classifier": "keyword"},
				}
			}
		}
	}
	return &entity.IntentResult{
		Intent:     entity.IntentUnknown,
		Confidence: unknownConfidence,
		Context:    map[string]any{"classifier": "keyword"},
	}
}
