// Package genai provides GenAI-enhanced operations using OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoChoicesReturned is returned when the completion carries no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Default generation parameters.
const (
	DefaultModel       = string(openai.ChatModelGPT4oMini)
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 120
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completions adapts the SDK completion service to chatService.
type completions struct {
	svc *openai.ChatCompletionService
}

func (c completions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI ChatCompletion service for generating short texts.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
	debugMode   bool
	stateDir    string
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	DebugMode   bool
	StateDir    string
}

// Option is a functional option for configuring the GenAI client.
type Option func(*Opts)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode writes every request and response as JSON under stateDir/debug.
func WithDebugMode(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// NewClient initializes a new GenAI client. The API key defaults to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	cli := openai.NewClient(option.WithAPIKey(o.APIKey))
	slog.Debug("GenAI client created", "model", o.Model, "debug", o.DebugMode)
	return &Client{
		chat:        completions{svc: &cli.Chat.Completions},
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
		debugMode:   o.DebugMode,
		stateDir:    o.StateDir,
	}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext is GeneratePrompt bound to ctx.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI completion failed", "error", err, "model", c.model)
		return "", err
	}
	c.writeDebugLog("GeneratePromptWithContext", systemPrompt, userPrompt, resp)
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

type debugParams struct {
	System      string  `json:"system"`
	User        string  `json:"user"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
}

type debugEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Method    string      `json:"method"`
	Model     string      `json:"model"`
	Params    debugParams `json:"params"`
	Response  []string    `json:"response"`
}

// writeDebugLog stores one call under stateDir/debug. Failures are logged only.
func (c *Client) writeDebugLog(method, systemPrompt, userPrompt string, resp openai.ChatCompletion) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI debug: failed to create directory", "error", err, "dir", dir)
		return
	}
	choices := make([]string, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		choices = append(choices, ch.Message.Content)
	}
	now := time.Now()
	data, err := json.MarshalIndent(debugEntry{
		Timestamp: now,
		Method:    method,
		Model:     c.model,
		Params: debugParams{
			System:      systemPrompt,
			User:        userPrompt,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		},
		Response: choices,
	}, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.UTC().Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("GenAI debug: failed to write entry", "error", err)
	}
}
