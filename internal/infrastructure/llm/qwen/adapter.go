package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

var _ output.LLMPort = (*Adapter)(nil)

// Adapter talks to a Qwen (or any OpenAI-compatible) endpoint for both
// intent classification and conversational streaming.
type Adapter struct {
	client *openai.Client
	model  string
	log    output.LoggerPort
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   "qwen-plus",
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	}
}

func New(cfg Config, log output.LoggerPort) *Adapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Adapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log.WithField("component", "llm"),
	}
}

// classifyResponse is the JSON shape the classification prompt asks for.
type classifyResponse struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
}

func (a *Adapter) Classify(ctx context.Context, message string, hints map[string]any) (*entity.IntentResult, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt(hints)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	parsed, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	a.log.Debug("intent classified",
		"intent", parsed.Intent, "confidence", parsed.Confidence)

	return &entity.IntentResult{
		Intent:     entity.ParseIntentType(parsed.Intent),
		Confidence: parsed.Confidence,
		Entities:   parsed.Entities,
		Context:    map[string]any{"classifier": "llm", "model": a.model},
	}, nil
}

// parseClassification accepts the model's reply even when the JSON object
// is wrapped in prose or a code fence.
func parseClassification(content string) (*classifyResponse, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in classification reply: %q", content)
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if parsed.Intent == "" {
		return nil, errors.New("classification reply missing intent")
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0
	}
	return &parsed, nil
}

func (a *Adapter) ChatStream(ctx context.Context, history []entity.Message, message string, onChunk func(string) error) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatSystemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("chat stream failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled: %w", ctx.Err())
		default:
		}

		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return full.String(), nil
			}
			return "", fmt.Errorf("stream recv error: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return full.String(), fmt.Errorf("chunk callback: %w", err)
			}
		}
	}
}
