package openrouter

import (
	"strings"
	"time"

	"github.com/fiszki/kreator/internal/config"
	"github.com/fiszki/kreator/internal/domain"
)

// ChatOptions override the client defaults for one call. Nil pointers and
// zero values fall back to the defaults.
type ChatOptions struct {
	Model            string
	SystemMessage    string
	Schema           *JSONSchema
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	Retries *int
}

// Float returns a pointer to v, for ChatOptions fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for ChatOptions fields.
func Int(v int) *int { return &v }

// JSONSchema asks the model for output conforming to Schema.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// NewJSONSchema builds a strict schema descriptor.
func NewJSONSchema(name string, schema map[string]any) (*JSONSchema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewAIError(domain.ErrValidation, "schema name is required")
	}
	if len(schema) == 0 {
		return nil, domain.NewAIError(domain.ErrValidation, "schema is required")
	}
	return &JSONSchema{Name: name, Strict: true, Schema: schema}, nil
}

// ResponseFormat is the structured-output descriptor of a request.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      float64         `json:"temperature"`
	MaxTokens        int             `json:"max_tokens"`
	TopP             float64         `json:"top_p"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	PresencePenalty  float64         `json:"presence_penalty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
}

// BuildRequest merges opts over defaults. Every parameter falls back
// independently.
func BuildRequest(msgs []Message, opts ChatOptions, defaults config.AIDefaults) ChatRequest {
	req := ChatRequest{
		Model:            defaults.Model,
		Messages:         msgs,
		Temperature:      pick(opts.Temperature, defaults.Temperature),
		MaxTokens:        pick(opts.MaxTokens, defaults.MaxTokens),
		TopP:             pick(opts.TopP, defaults.TopP),
		FrequencyPenalty: pick(opts.FrequencyPenalty, defaults.FrequencyPenalty),
		PresencePenalty:  pick(opts.PresencePenalty, defaults.PresencePenalty),
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Schema != nil {
		req.ResponseFormat = &ResponseFormat{Type: "json_schema", JSONSchema: opts.Schema}
	}
	return req
}

func pick[T any](override *T, def T) T {
	if override != nil {
		return *override
	}
	return def
}
