package qwen

import (
	"encoding/json"
	"fmt"
)

const chatSystemPrompt = `你是一个企业BPM流程助手，帮助用户完成报销、请假、采购、合同审批等办公流程。
回答要简洁、专业。当用户的问题涉及具体流程操作时，引导用户提供表单页面URL或上传相关单据。`

const classifyPromptTemplate = `你是意图分类器。将用户消息归入以下类别之一：
expense_report（报销）、leave_request（请假）、purchase_request（采购）、
contract_approval（合同审批）、form_filling（填写表单）、ocr_processing（识别发票/文档）、
data_extraction（消息中包含结构化数据如姓名电话）、question_answering（一般提问）、unknown。

只输出JSON，格式：
{"intent": "...", "confidence": 0.0-1.0, "entities": {}}

会话上下文：%s`

func classifyPrompt(hints map[string]any) string {
	ctxJSON, err := json.Marshal(hints)
	if err != nil {
		ctxJSON = []byte("{}")
	}
	return fmt.Sprintf(classifyPromptTemplate, ctxJSON)
}
