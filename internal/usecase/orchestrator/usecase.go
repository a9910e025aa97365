package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bpm-agent/internal/application/port/input"
	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

const (
	genericErrorMessage = "抱歉，处理您的请求时出现了错误，请稍后重试。"
	llmApologyMessage   = "抱歉，我暂时无法回答您的问题。请稍后重试。"

	taskTypeMessage = "message_processing"
	taskTypeOCR     = "ocr_processing"
)

type Config struct {
	// FallbackConfidence is the threshold under which a classifier result
	// is replaced by the deterministic keyword fallback.
	FallbackConfidence float64
	// HistoryTurns bounds the conversation history forwarded to the LLM.
	HistoryTurns int
	// EventBuffer sizes the per-turn event channel. The producer suspends
	// when it is full instead of buffering unboundedly.
	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		FallbackConfidence: 0.3,
		HistoryTurns:       5,
		EventBuffer:        8,
	}
}

var _ input.Orchestrator = (*Orchestrator)(nil)

// Orchestrator drives one session's turns through the state machine:
// classify, then one of the intent branches, then report. The instance
// persists across turns; extracted data and the current page survive.
type Orchestrator struct {
	session    *entity.Session
	store      output.StorePort
	llm        output.LLMPort
	newBrowser output.BrowserFactory
	log        output.LoggerPort
	cfg        Config

	// mu serializes turns; the browser handle is never shared between two
	// concurrent fill batches.
	mu        sync.Mutex
	browser   output.BrowserPort
	page      *entity.PageState
	extracted map[string]string
	history   []entity.Message

	cleanup sync.Once
}

func New(sess *entity.Session, store output.StorePort, llm output.LLMPort, newBrowser output.BrowserFactory, log output.LoggerPort, cfg Config) *Orchestrator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultConfig().HistoryTurns
	}
	return &Orchestrator{
		session:    sess,
		store:      store,
		llm:        llm,
		newBrowser: newBrowser,
		log:        log.WithField("session", sess.ID),
		cfg:        cfg,
		extracted:  make(map[string]string),
	}
}

func (o *Orchestrator) Handle(ctx context.Context, message, kind string) <-chan entity.Event {
	events := make(chan entity.Event, o.cfg.EventBuffer)

	go func() {
		defer close(events)

		o.mu.Lock()
		defer o.mu.Unlock()

		emit := func(ev entity.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		o.runTurn(ctx, emit, message, kind)
	}()

	return events
}

// runTurn is one full pass through the state machine back to idle. It
// emits at most one terminal event; a panic anywhere converts into a
// failed task record plus a single generic error event.
func (o *Orchestrator) runTurn(ctx context.Context, emit func(entity.Event) bool, message, kind string) {
	rec := o.beginTask(ctx, taskTypeMessage, map[string]any{
		"message":      message,
		"message_type": kind,
	})

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn panicked", "panic", r)
			o.failTask(ctx, rec, fmt.Sprintf("panic: %v", r))
			emit(entity.ErrorEvent(genericErrorMessage))
		}
	}()

	o.appendHistory(entity.RoleUser, message)

	// A URL anywhere in the message retargets the session's form page.
	if url := ExtractURL(message); url != "" && url != o.session.TargetURL {
		o.session.TargetURL = url
		if err := o.store.SetSessionTargetURL(ctx, o.session.ID, url); err != nil {
			o.log.Warn("persist target url failed", "error", err)
		}
	}

	res := o.classify(ctx, message)
	if !emit(entity.IntentEvent(res)) {
		o.failTask(ctx, rec, "client disconnected")
		return
	}
	rec.AIAnalysis = map[string]any{
		"intent":     string(res.Intent),
		"confidence": res.Confidence,
		"entities":   res.Entities,
	}

	comp, terr := o.dispatch(ctx, emit, res, message)
	if terr != nil {
		o.log.Error("turn failed", "intent", res.Intent, "error", terr.err)
		o.failTask(ctx, rec, terr.err.Error())
		emit(entity.ErrorEvent(terr.user))
		return
	}

	o.appendHistory(entity.RoleAssistant, comp.Message)
	rec.Response = comp.Message
	o.finishTask(ctx, rec, entity.TaskStatusCompleted)
	emit(entity.CompleteEvent(comp))
}

// turnError pairs the internal cause with the user-safe message for the
// error event. Raw collaborator errors never reach the caller.
type turnError struct {
	user string
	err  error
}

func (o *Orchestrator) classify(ctx context.Context, message string) *entity.IntentResult {
	hints := map[string]any{
		"target_url":     o.session.TargetURL,
		"extracted_keys": len(o.extracted),
	}

	res, err := o.llm.Classify(ctx, message, hints)
	if err != nil {
		o.log.Warn("intent classification failed, using keyword fallback", "error", err)
		return ClassifyByKeywords(message)
	}
	if res.Confidence < o.cfg.FallbackConfidence {
		o.log.Debug("low-confidence classification, using keyword fallback",
			"intent", res.Intent, "confidence", res.Confidence)
		return ClassifyByKeywords(message)
	}
	return res
}

// dispatch routes a classified turn. The switch is exhaustive over the
// closed intent set; business-process intents all run the form flow.
func (o *Orchestrator) dispatch(ctx context.Context, emit func(entity.Event) bool, res *entity.IntentResult, message string) (*entity.Completion, *turnError) {
	if res.Intent == entity.IntentFormFilling || res.Intent.IsBusinessProcess() {
		return o.handleFormFilling(ctx, res)
	}

	switch res.Intent {
	case entity.IntentOCRProcessing:
		return o.handleOCRRequest(res), nil

	case entity.IntentDataExtraction:
		return o.handleDataExtraction(ctx, res, message)

	case entity.IntentQuestionAnswering, entity.IntentUnknown:
		return o.handleConversation(ctx, emit, res, message)
	}

	// ParseIntentType folds anything else into unknown; keep the compiler
	// honest if a new intent constant appears without a branch.
	return o.handleConversation(ctx, emit, res, message)
}

func (o *Orchestrator) handleFormFilling(ctx context.Context, res *entity.IntentResult) (*entity.Completion, *turnError) {
	if o.session.TargetURL == "" {
		return &entity.Completion{
			Kind:    entity.CompletionRequestURL,
			Intent:  res.Intent,
			Message: "请先提供要填写的表单页面URL。例如：请帮我填写 https://example.com/form",
			Actions: []entity.Action{{
				"type":        "request_input",
				"field":       "url",
				"description": "请输入表单页面的URL",
			}},
		}, nil
	}

	br, err := o.browserHandle(ctx)
	if err != nil {
		o.log.Error("browser launch failed", "error", err)
		return &entity.Completion{
			Kind:    entity.CompletionError,
			Intent:  res.Intent,
			Message: "无法启动页面自动化，请稍后重试。",
		}, nil
	}

	if err := br.Navigate(ctx, o.session.TargetURL); err != nil {
		o.log.Warn("navigation failed", "url", o.session.TargetURL, "error", err)
		return &entity.Completion{
			Kind:    entity.CompletionError,
			Intent:  res.Intent,
			Message: fmt.Sprintf("无法打开页面 %s，请检查URL是否正确。", o.session.TargetURL),
		}, nil
	}

	page, err := br.Snapshot(ctx)
	if err != nil {
		o.log.Warn("page analysis failed", "url", o.session.TargetURL, "error", err)
		return &entity.Completion{
			Kind:    entity.CompletionError,
			Intent:  res.Intent,
			Message: "页面分析失败，请稍后重试。",
		}, nil
	}
	o.page = page

	if missing := o.missingFields(page); len(missing) > 0 {
		return &entity.Completion{
			Kind:   entity.CompletionRequestData,
			Intent: res.Intent,
			Message: fmt.Sprintf("我已经分析了页面：%s。\n需要填写以下信息：%s。\n请提供这些信息，我将帮您自动填写。",
				page.Title, strings.Join(missing, "、")),
			Actions: []entity.Action{{
				"type": "page_analysis",
				"page_info": map[string]any{
					"url":       page.URL,
					"title":     page.Title,
					"page_kind": string(page.Kind),
				},
				"required_fields": missing,
			}},
		}, nil
	}

	fill := o.fillByHeuristic(ctx, page)
	if fill.Success() {
		return &entity.Completion{
			Kind:    entity.CompletionSuccess,
			Intent:  res.Intent,
			Message: fmt.Sprintf("表单填写完成！已成功填写 %d 个字段。", len(fill.Filled)),
			Actions: []entity.Action{{
				"type":          "form_filled",
				"filled_fields": fill.Filled,
				"page_url":      page.URL,
			}},
		}, nil
	}
	return &entity.Completion{
		Kind:   entity.CompletionPartialSuccess,
		Intent: res.Intent,
		Message: fmt.Sprintf("表单填写部分完成。成功填写 %d 个字段，%d 个字段填写失败。",
			len(fill.Filled), len(fill.Failed)),
		Actions: []entity.Action{{
			"type":          "form_partially_filled",
			"filled_fields": fill.Filled,
			"failed_fields": fill.Failed,
		}},
	}, nil
}

// handleOCRRequest is a synchronous short-circuit: chat never invokes OCR
// itself, it only asks for an upload.
func (o *Orchestrator) handleOCRRequest(res *entity.IntentResult) *entity.Completion {
	return &entity.Completion{
		Kind:    entity.CompletionRequestUpload,
		Intent:  res.Intent,
		Message: "请上传需要识别的发票或文档图片，我将为您提取其中的信息。",
		Actions: []entity.Action{{
			"type":        "request_upload",
			"accept":      "image/*,application/pdf",
			"description": "请上传发票或文档进行识别",
		}},
	}
}

func (o *Orchestrator) handleDataExtraction(ctx context.Context, res *entity.IntentResult, message string) (*entity.Completion, *turnError) {
	data := ExtractStructured(message)
	if len(data) == 0 {
		return &entity.Completion{
			Kind:    entity.CompletionRequestData,
			Intent:  res.Intent,
			Message: "未能从您的消息中提取到结构化数据。请提供更具体的信息，例如：姓名：张三，电话：13800138000",
			Actions: []entity.Action{{
				"type":     "request_structured_data",
				"examples": []string{"姓名：张三", "电话：13800138000", "邮箱：zhangsan@example.com", "地址：北京市朝阳区"},
			}},
		}, nil
	}

	// Last writer wins; conflicting values are never merged automatically.
	keys := make([]string, 0, len(data))
	for k, v := range data {
		o.extracted[k] = v
		keys = append(keys, k)
	}

	if o.page == nil {
		return &entity.Completion{
			Kind:    entity.CompletionDataStored,
			Intent:  res.Intent,
			Message: fmt.Sprintf("已提取数据：%s。请先打开要填写的表单页面。", strings.Join(keys, "、")),
			Actions: []entity.Action{{
				"type":           "data_extracted",
				"extracted_data": data,
			}},
		}, nil
	}

	fill := o.fillWithData(ctx, o.page, data)
	if fill.Success() {
		return &entity.Completion{
			Kind:    entity.CompletionSuccess,
			Intent:  res.Intent,
			Message: fmt.Sprintf("已提取并填写数据：%s。表单填写成功！", strings.Join(keys, "、")),
			Actions: []entity.Action{{
				"type":           "data_extracted_and_filled",
				"extracted_data": data,
				"filled_fields":  fill.Filled,
			}},
		}, nil
	}
	return &entity.Completion{
		Kind:    entity.CompletionPartialSuccess,
		Intent:  res.Intent,
		Message: fmt.Sprintf("已提取数据：%s。但部分字段填写遇到问题，请检查页面状态。", strings.Join(keys, "、")),
		Actions: []entity.Action{{
			"type":           "data_extracted",
			"extracted_data": data,
			"failed_fields":  fill.Failed,
		}},
	}, nil
}

func (o *Orchestrator) handleConversation(ctx context.Context, emit func(entity.Event) bool, res *entity.IntentResult, message string) (*entity.Completion, *turnError) {
	full, err := o.llm.ChatStream(ctx, o.recentHistory(), message, func(chunk string) error {
		if !emit(entity.ChunkEvent(chunk)) {
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		return nil, &turnError{user: llmApologyMessage, err: fmt.Errorf("chat stream: %w", err)}
	}

	return &entity.Completion{
		Kind:    entity.CompletionConversation,
		Intent:  res.Intent,
		Message: full,
		Actions: []entity.Action{{
			"type": "general_response",
		}},
	}, nil
}

func (o *Orchestrator) ProcessInvoice(ctx context.Context, inv *entity.Invoice) *entity.Completion {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := o.beginTask(ctx, taskTypeOCR, map[string]any{"invoice_number": inv.InvoiceNumber})

	fields := inv.Fields()
	if len(fields) == 0 {
		rec.Response = "empty ocr result"
		o.finishTask(ctx, rec, entity.TaskStatusOCRFailed)
		return &entity.Completion{
			Kind:    entity.CompletionRequestUpload,
			Intent:  entity.IntentOCRProcessing,
			Message: "识别完成，但未能提取到有效的发票信息。请确保图片清晰且包含完整的发票内容。",
			Actions: []entity.Action{{
				"type":        "request_upload",
				"accept":      "image/*,application/pdf",
				"description": "请重新上传更清晰的发票图片",
			}},
		}
	}

	for k, v := range fields {
		o.extracted[k] = v
	}
	if inv.Confidence > 0 && inv.Confidence < 0.8 {
		o.log.Warn("low ocr confidence", "confidence", inv.Confidence)
	}

	summary := fmt.Sprintf("发票识别完成！已提取 %d 项信息", len(fields))
	if inv.Confidence > 0 {
		summary += fmt.Sprintf("（识别置信度：%.0f%%）", inv.Confidence*100)
	}

	if o.page == nil {
		rec.Response = summary
		o.finishTask(ctx, rec, entity.TaskStatusOCRCompleted)
		return &entity.Completion{
			Kind:    entity.CompletionSuccess,
			Intent:  entity.IntentOCRProcessing,
			Message: summary + "。请打开要填写的表单页面，我将自动填写这些信息。",
			Actions: []entity.Action{{
				"type":     "ocr_processed",
				"ocr_data": fields,
			}},
		}
	}

	fill := o.fillWithData(ctx, o.page, fields)
	rec.Response = summary
	o.finishTask(ctx, rec, entity.TaskStatusOCRCompleted)
	if fill.Success() {
		return &entity.Completion{
			Kind:    entity.CompletionSuccess,
			Intent:  entity.IntentOCRProcessing,
			Message: summary + "，并已自动填写到表单中。",
			Actions: []entity.Action{{
				"type":          "ocr_processed_and_filled",
				"ocr_data":      fields,
				"filled_fields": fill.Filled,
			}},
		}
	}
	return &entity.Completion{
		Kind:    entity.CompletionPartialSuccess,
		Intent:  entity.IntentOCRProcessing,
		Message: summary + "，但自动填写遇到问题。",
		Actions: []entity.Action{{
			"type":          "ocr_processed",
			"ocr_data":      fields,
			"failed_fields": fill.Failed,
		}},
	}
}

func (o *Orchestrator) Cleanup() {
	o.cleanup.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.browser != nil {
			o.browser.Close()
			o.browser = nil
		}
		o.log.Info("session resources released")
	})
}

// browserHandle lazily launches the session's exclusive automation handle.
func (o *Orchestrator) browserHandle(ctx context.Context) (output.BrowserPort, error) {
	if o.browser != nil {
		return o.browser, nil
	}
	br, err := o.newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	o.browser = br
	return br, nil
}

// missingFields is the page's required fields minus the keys already in
// extracted data. Known fields are never asked for again.
func (o *Orchestrator) missingFields(page *entity.PageState) []string {
	var missing []string
	for _, field := range page.RequiredFields() {
		if _, ok := o.extracted[field]; ok {
			continue
		}
		if _, ok := heuristicValue(o.extracted, field); ok {
			continue
		}
		missing = append(missing, field)
	}
	return missing
}

func (o *Orchestrator) appendHistory(role entity.MessageRole, content string) {
	o.history = append(o.history, entity.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// recentHistory returns the last turns before the current user message.
func (o *Orchestrator) recentHistory() []entity.Message {
	if len(o.history) == 0 {
		return nil
	}
	past := o.history[:len(o.history)-1]
	limit := o.cfg.HistoryTurns * 2
	if len(past) > limit {
		past = past[len(past)-limit:]
	}
	return past
}

func (o *Orchestrator) beginTask(ctx context.Context, taskType string, input map[string]any) *entity.TaskRecord {
	rec := &entity.TaskRecord{
		ID:        uuid.NewString(),
		SessionID: o.session.ID,
		UserID:    o.session.UserID,
		TaskType:  taskType,
		Status:    entity.TaskStatusProcessing,
		InputData: input,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateTask(ctx, rec); err != nil {
		// Audit must not break the turn.
		o.log.Warn("create task record failed", "error", err)
	}
	return rec
}

func (o *Orchestrator) finishTask(ctx context.Context, rec *entity.TaskRecord, status entity.TaskStatus) {
	now := time.Now()
	rec.Status = status
	rec.CompletedAt = &now
	if err := o.store.FinishTask(ctx, rec); err != nil {
		o.log.Warn("finish task record failed", "error", err)
	}
}

func (o *Orchestrator) failTask(ctx context.Context, rec *entity.TaskRecord, reason string) {
	rec.ErrorMessage = reason
	o.finishTask(ctx, rec, entity.TaskStatusFailed)
}
