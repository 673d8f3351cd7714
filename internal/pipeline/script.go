package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultScriptModel is the chat model used when none is configured.
	DefaultScriptModel = "gpt-4o-mini"

	scriptTemperature  = 0.8
	mockScriptTemplate = "🎬 Here's a fun, engaging explanation about %s!"
)

// ScriptProvider turns a topic into a short narrative script.
type ScriptProvider interface {
	Generate(ctx context.Context, topic string) (Script, error)
}

// MockScriptProvider returns a deterministic script without any network call.
type MockScriptProvider struct {
	logger *zap.Logger
}

// NewMockScriptProvider creates a mock script provider.
func NewMockScriptProvider(logger *zap.Logger) *MockScriptProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockScriptProvider{logger: logger}
}

// Generate returns the templated script for topic.
func (p *MockScriptProvider) Generate(_ context.Context, topic string) (Script, error) {
	p.logger.Info("mock mode: generating fake script", zap.String("topic", topic))
	return Script{Topic: topic, Content: fmt.Sprintf(mockScriptTemplate, topic)}, nil
}

// OpenAIScriptProvider writes scripts with an OpenAI-compatible chat completion API.
type OpenAIScriptProvider struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIScriptProvider creates a completion-backed provider. An empty baseURL keeps the
// OpenAI default, an empty model falls back to DefaultScriptModel.
func NewOpenAIScriptProvider(apiKey, baseURL, model string, httpClient *http.Client, logger *zap.Logger) *OpenAIScriptProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = DefaultScriptModel
	}
	return &OpenAIScriptProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Generate asks the model for a 30-second script on topic.
func (p *OpenAIScriptProvider) Generate(ctx context.Context, topic string) (Script, error) {
	p.logger.Info("real mode: requesting script completion", zap.String("topic", topic), zap.String("model", p.model))

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: scriptPrompt(topic)},
		},
		Temperature: scriptTemperature,
	})
	if err != nil {
		p.logger.Error("script completion failed", zap.String("topic", topic), zap.Error(err))
		return Script{}, &ScriptError{Cause: err}
	}
	if len(resp.Choices) == 0 {
		p.logger.Error("script completion returned no choices", zap.String("topic", topic))
		return Script{}, &ScriptError{Cause: ErrInvalidResponse}
	}

	return Script{
		Topic:   topic,
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
	}, nil
}

func scriptPrompt(topic string) string {
	return fmt.Sprintf(`You are a creative scriptwriter for educational short videos.
Write a concise, engaging 30-second script on: "%s".
Include:
- Hook (1 line)
- Explanation (3-4 lines)
- Takeaway (1 line)`, topic)
}

// NewScriptProvider picks the mock or the completion-backed provider from cfg.
func NewScriptProvider(cfg Config, httpClient *http.Client, logger *zap.Logger) ScriptProvider {
	if cfg.UseMock {
		return NewMockScriptProvider(logger)
	}
	return NewOpenAIScriptProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, httpClient, logger)
}
