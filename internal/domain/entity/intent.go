package entity

type IntentType string

const (
	IntentExpenseReport     IntentType = "expense_report"
	IntentLeaveRequest      IntentType = "leave_request"
	IntentPurchaseRequest   IntentType = "purchase_request"
	IntentContractApproval  IntentType = "contract_approval"
	IntentFormFilling       IntentType = "form_filling"
	IntentOCRProcessing     IntentType = "ocr_processing"
	IntentQuestionAnswering IntentType = "question_answering"
	IntentDataExtraction    IntentType = "data_extraction"
	IntentUnknown           IntentType = "unknown"
)

// IntentResult is the classified purpose of one user turn. Immutable once
// produced.
type IntentResult struct {
	Intent     IntentType
	Confidence float64
	Entities   map[string]any
	Context    map[string]any
}

// IsBusinessProcess reports whether the intent names a concrete business
// form flow. These all route through the form-filling path.
func (t IntentType) IsBusinessProcess() bool {
	switch t {
	case IntentExpenseReport, IntentLeaveRequest, IntentPurchaseRequest, IntentContractApproval:
		return true
	}
	return false
}

// ParseIntentType maps a wire string onto the closed intent set, folding
// anything unrecognized into IntentUnknown.
func ParseIntentType(s string) IntentType {
	switch IntentType(s) {
	case IntentExpenseReport, IntentLeaveRequest, IntentPurchaseRequest,
		IntentContractApproval, IntentFormFilling, IntentOCRProcessing,
		IntentQuestionAnswering, IntentDataExtraction:
		return IntentType(s)
	}
	return IntentUnknown
}
