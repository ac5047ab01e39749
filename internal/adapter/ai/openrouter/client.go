// Package openrouter implements the flashcard completion client on top of
// the OpenRouter chat completions API.
package openrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fiszki/kreator/internal/adapter/ai"
	"github.com/fiszki/kreator/internal/adapter/ai/tokencount"
	"github.com/fiszki/kreator/internal/adapter/observability"
	"github.com/fiszki/kreator/internal/config"
	"github.com/fiszki/kreator/internal/domain"
	obsctx "github.com/fiszki/kreator/internal/observability"
	"github.com/fiszki/kreator/pkg/textx"
)

const (
	providerName = "openrouter"

	MinFlashcards = 1
	MaxFlashcards = 20

	defaultFlashcardTemperature = 0.3
	defaultFlashcardMaxTokens   = 2000
)

// TokenEstimator estimates prompt tokens for a request.
type TokenEstimator interface {
	EstimatePromptTokens(model string, turns ...tokencount.Turn) int
}

// Client is one configured OpenRouter client. It is safe for concurrent use;
// the circuit breaker is the only state shared between calls.
type Client struct {
	cfg      config.Config
	defaults config.AIDefaults
	endpoint string
	hc       *http.Client
	breaker  *ai.CircuitBreaker
	prompts  config.Prompts
	tokens   TokenEstimator
	newTimer func() backoff.Timer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithBreaker replaces the breaker built from config.
func WithBreaker(cb *ai.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithPrompts sets the prompt templates.
func WithPrompts(p config.Prompts) Option {
	return func(c *Client) { c.prompts = p }
}

// WithTokenEstimator enables prompt token estimates.
func WithTokenEstimator(te TokenEstimator) Option {
	return func(c *Client) { c.tokens = te }
}

// WithTimer sets the timer used for backoff waits.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(c *Client) {
		if newTimer != nil {
			c.newTimer = newTimer
		}
	}
}

// New builds a client from cfg. An empty API key is an auth error.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if !cfg.AIEnabled() {
		return nil, domain.NewAIError(domain.ErrAuth, "OPENROUTER_API_KEY is not set")
	}
	base := strings.TrimRight(cfg.OpenRouterBaseURL, "/")
	if base == "" {
		base = "https://openrouter.ai/api/v1"
	}
	c := &Client{
		cfg:      cfg,
		defaults: cfg.AIDefaults(),
		endpoint: base + "/chat/completions",
		hc:       &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: ai.NewCircuitBreaker(providerName, cfg.AIBreakerThreshold, cfg.AIBreakerCooldown,
			ai.WithStateListener(func(open bool) { observability.SetCircuitOpen(providerName, open) })),
		newTimer: func() backoff.Timer { return nil },
	}
	if p, err := config.LoadPrompts(""); err == nil {
		c.prompts = p
	}
	for _, o := range opts {
		o(c)
	}
	observability.SetCircuitOpen(providerName, false)
	slog.Info("openrouter client configured",
		slog.String("provider", providerName),
		slog.String("endpoint", c.endpoint),
		slog.String("model", c.defaults.Model),
		slog.String("api_key", maskKey(cfg.OpenRouterAPIKey)),
		slog.Int("retries", c.defaults.Retries),
		slog.Duration("timeout", c.defaults.Timeout))
	return c, nil
}

// Available reports whether the breaker currently lets calls through.
func (c *Client) Available() bool { return c.breaker.Available() }

// Breaker exposes the client's breaker for readiness reporting.
func (c *Client) Breaker() *ai.CircuitBreaker { return c.breaker }

// Model is the default model of the client.
func (c *Client) Model() string { return c.defaults.Model }

// Chat sends prompt and returns the first completion choice. Errors are
// always *domain.AIError.
func (c *Client) Chat(ctx context.Context, prompt Prompt, opts ChatOptions) (ai.CompletionResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer("ai.openrouter").Start(ctx, "openrouter.chat")
	defer span.End()

	res, err := c.chat(ctx, prompt, opts)
	err = ClassifyMessage(err)
	observability.ObserveAIRequest(providerName, "chat", kindLabel(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kindLabel(err))
		return ai.CompletionResult{}, err
	}
	span.SetAttributes(attribute.String("ai.model", res.Model), attribute.Int("ai.prompt_tokens", res.Usage.PromptTokens))
	return res, nil
}

func (c *Client) chat(ctx context.Context, prompt Prompt, opts ChatOptions) (ai.CompletionResult, error) {
	msgs, err := FormatMessages(prompt, opts.SystemMessage)
	if err != nil {
		return ai.CompletionResult{}, err
	}
	req := BuildRequest(msgs, opts, c.defaults)

	timeout := c.defaults.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	budget := pick(opts.Retries, c.defaults.Retries)
	if budget < 0 {
		budget = 0
	}

	estimate := 0
	if c.tokens != nil {
		turns := make([]tokencount.Turn, len(msgs))
		for i, m := range msgs {
			turns[i] = tokencount.Turn{Role: string(m.Role), Content: m.Content}
		}
		estimate = c.tokens.EstimatePromptTokens(req.Model, turns...)
		observability.ObservePromptTokens(req.Model, estimate)
	}

	lg := obsctx.LoggerFromContext(ctx)
	lg.Debug("calling OpenRouter API",
		slog.String("provider", providerName),
		slog.String("model", req.Model),
		slog.Int("messages", len(msgs)),
		slog.Int("max_tokens", req.MaxTokens),
		slog.Bool("structured", req.ResponseFormat != nil),
		slog.Int("prompt_tokens_estimate", estimate))

	body, err := c.send(ctx, req, timeout, budget)
	if err != nil {
		lg.Error("OpenRouter API call failed",
			slog.String("provider", providerName),
			slog.String("model", req.Model),
			slog.String("kind", kindLabel(err)),
			slog.Any("error", err))
		return ai.CompletionResult{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ai.CompletionResult{}, &domain.AIError{Kind: domain.ErrTransport, Message: "malformed response body", Err: err}
	}
	choice := parsed.Choices[0]
	res := ai.CompletionResult{
		ID:      parsed.ID,
		Model:   parsed.Model,
		Content: ai.MessageText(choice.Message.Content),
		Raw:     body,
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	if parsed.Usage != nil {
		res.Usage = ai.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	if res.Usage.PromptTokens == 0 && estimate > 0 {
		res.Usage.PromptTokens = estimate
		res.Usage.TotalTokens = estimate + res.Usage.CompletionTokens
	}
	if choice.FinishReason == "content_filter" && strings.TrimSpace(res.Content) == "" {
		return ai.CompletionResult{}, &domain.AIError{Kind: domain.ErrContentFilter, Message: "completion withheld by the provider's content filter"}
	}
	if res.Model != req.Model {
		lg.Warn("model substitution detected",
			slog.String("provider", providerName),
			slog.String("requested_model", req.Model),
			slog.String("actual_model", res.Model))
	}
	lg.Info("OpenRouter API call successful",
		slog.String("provider", providerName),
		slog.String("id", res.ID),
		slog.String("model", res.Model),
		slog.Int("content_length", len(res.Content)),
		slog.Int("prompt_tokens", res.Usage.PromptTokens),
		slog.Int("completion_tokens", res.Usage.CompletionTokens))
	return res, nil
}

// GenerationOptions tune GenerateFlashcards. PromptTemplate, when set,
// replaces the configured template; it may use {text} and {count}.
type GenerationOptions struct {
	ChatOptions
	PromptTemplate string
}

// GenerateFlashcards asks the model for count cards about text. count is
// clamped to [1, 20] and is advisory: the result may be shorter or longer.
// Unparseable completions degrade to a single fallback card.
func (c *Client) GenerateFlashcards(ctx context.Context, text string, count int, opts GenerationOptions) ([]domain.GeneratedFlashcard, error) {
	start := time.Now()
	sanitized := textx.SanitizePrompt(text)
	if sanitized == "" {
		return nil, domain.NewAIError(domain.ErrValidation, "text is required")
	}
	count = ClampCount(count)

	tpl := c.prompts.Flashcards
	if strings.TrimSpace(opts.PromptTemplate) != "" {
		tpl = config.PromptTemplate{Template: opts.PromptTemplate}
	}
	prompt := tpl.Render(sanitized, count)

	chatOpts := opts.ChatOptions
	chatOpts.Schema = flashcardSchema()
	if chatOpts.SystemMessage == "" {
		chatOpts.SystemMessage = c.prompts.Flashcards.System
	}
	if chatOpts.Temperature == nil {
		chatOpts.Temperature = Float(defaultFlashcardTemperature)
	}
	if chatOpts.MaxTokens == nil {
		chatOpts.MaxTokens = Int(defaultFlashcardMaxTokens)
	}

	lg := obsctx.LoggerFromContext(ctx)
	lg.Info("generating flashcards",
		slog.String("provider", providerName),
		slog.Int("count", count),
		slog.Int("text_length", len([]rune(sanitized))),
		slog.String("text_preview", textx.Preview(sanitized, 100)))

	res, err := c.Chat(ctx, TextPrompt(prompt), chatOpts)
	if err != nil {
		return nil, err
	}

	cards, strategy := ai.Extract(res)
	degraded := ""
	if strategy.Degraded() {
		degraded = string(strategy)
		lg.Warn("flashcard extraction degraded",
			slog.String("strategy", string(strategy)),
			slog.String("id", res.ID),
			slog.String("content_preview", textx.Preview(res.Content, 200)))
	}
	observability.ObserveFlashcards(len(cards), degraded)
	lg.Info("flashcards generated",
		slog.String("provider", providerName),
		slog.Int("requested", count),
		slog.Int("generated", len(cards)),
		slog.String("strategy", string(strategy)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return cards, nil
}

// ClampCount bounds a requested card count to [MinFlashcards, MaxFlashcards].
func ClampCount(count int) int {
	if count < MinFlashcards {
		return MinFlashcards
	}
	if count > MaxFlashcards {
		return MaxFlashcards
	}
	return count
}

// flashcardSchema requests {"flashcards":[{"front_content","back_content"}]}.
func flashcardSchema() *JSONSchema {
	return &JSONSchema{
		Name:   "flashcards",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"flashcards": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"front_content": map[string]any{"type": "string", "description": "Question or concept on the front of the card"},
							"back_content":  map[string]any{"type": "string", "description": "Answer or explanation on the back of the card"},
						},
						"required":             []string{"front_content", "back_content"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"flashcards"},
			"additionalProperties": false,
		},
	}
}

// Generator adapts the client to domain.FlashcardGenerator with fixed options.
type Generator struct {
	Client  *Client
	Options GenerationOptions
}

var _ domain.FlashcardGenerator = Generator{}

// GenerateFlashcards implements domain.FlashcardGenerator.
func (g Generator) GenerateFlashcards(ctx context.Context, text string, count int) ([]domain.GeneratedFlashcard, error) {
	return g.Client.GenerateFlashcards(ctx, text, count, g.Options)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
