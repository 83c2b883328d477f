// Package llm talks to a local Ollama server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the small instruction model used for routing.
	DefaultModel = "qwen2.5:1.5b"
	// DefaultTimeout bounds a single classification call.
	DefaultTimeout = 10 * time.Second

	generatePath = "/api/generate"
)

// ErrEmptyResponse is returned when the model replies without text.
var ErrEmptyResponse = errors.New("empty model response")

const classifyPrompt = `你是一个分类器，请只输出 vdb/sql/graph 中的一个。
- vdb: 文档、笔记、对话类查询
- sql: 参数、配置、规则表类查询  
- graph: 上下游关系、合作者关系类查询

问题: %s
分类:`

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// OllamaClassifier asks a local model to label a query as vdb, sql, or graph.
type OllamaClassifier struct {
	client *resty.Client
	model  string
	logger *zap.Logger
}

// Option configures an OllamaClassifier.
type Option func(*OllamaClassifier)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *OllamaClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *OllamaClassifier) {
		if model != "" {
			c.model = model
		}
	}
}

// NewOllamaClassifier returns a classifier for the Ollama server at baseURL. A zero timeout
// uses DefaultTimeout. No retries are made: a failed call degrades routing immediately.
func NewOllamaClassifier(baseURL string, timeout time.Duration, opts ...Option) *OllamaClassifier {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &OllamaClassifier{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		model:  DefaultModel,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the model's raw answer, trimmed and lower-cased.
func (c *OllamaClassifier) Classify(ctx context.Context, query string) (string, error) {
	var out generateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:  c.model,
			Prompt: fmt.Sprintf(classifyPrompt, query),
			Stream: false,
		}).
		SetResult(&out).
		Post(generatePath)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama generate: status %d", resp.StatusCode())
	}
	answer := strings.ToLower(strings.TrimSpace(out.Response))
	if answer == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("classifier answered", zap.String("query", query), zap.String("answer", answer))
	return answer, nil
}
