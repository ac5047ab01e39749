package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fiszki/kreator/internal/adapter/observability"
	"github.com/fiszki/kreator/internal/domain"
	obsctx "github.com/fiszki/kreator/internal/observability"
)

const (
	maxResponseBytes = 4 << 20
	// Rate-limit hints longer than this are not waited out in-call.
	maxRateLimitWait = time.Minute
)

// chatResponse is the subset of the completion body the client reads.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// retryPolicy is the backoff.BackOff for one logical call. It counts
// retries against the budget: rate-limited attempts wait the advertised
// hint, other retryable failures wait the exponential schedule.
type retryPolicy struct {
	expo    *backoff.ExponentialBackOff
	budget  int
	retries int
	last    *domain.AIError
}

func (p *retryPolicy) Reset() {
	p.retries = 0
	p.last = nil
}

func (p *retryPolicy) NextBackOff() time.Duration {
	if p.last == nil {
		return backoff.Stop
	}
	if errors.Is(p.last, domain.ErrRateLimit) {
		if p.last.RetryAfter <= 0 || p.last.RetryAfter > maxRateLimitWait || p.retries >= p.budget {
			return backoff.Stop
		}
		p.retries++
		return p.last.RetryAfter
	}
	p.retries++
	if p.retries >= p.budget {
		return backoff.Stop
	}
	return p.delay(p.retries)
}

// delay is the n-th interval of the exponential schedule.
func (p *retryPolicy) delay(n int) time.Duration {
	p.expo.Reset()
	d := p.expo.InitialInterval
	for i := 0; i < n; i++ {
		d = p.expo.NextBackOff()
	}
	return d
}

func (c *Client) newExponential() *backoff.ExponentialBackOff {
	initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	expo.Reset()
	return expo
}

// send performs one logical completion call: breaker gate, attempt,
// classification and retries. It returns the raw response body.
func (c *Client) send(ctx context.Context, req ChatRequest, timeout time.Duration, budget int) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &domain.AIError{Kind: domain.ErrValidation, Message: "encode request", Err: err}
	}
	lg := obsctx.LoggerFromContext(ctx)

	policy := &retryPolicy{expo: c.newExponential(), budget: budget}
	var out []byte
	attempt := 0
	op := func() error {
		if err := c.breaker.Allow(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		body, aerr := c.attempt(ctx, payload, timeout)
		if aerr == nil {
			c.breaker.RecordSuccess()
			out = body
			return nil
		}
		c.breaker.RecordFailure()
		policy.last = aerr
		lg.Warn("ai provider attempt failed",
			slog.String("provider", providerName),
			slog.String("op", "chat"),
			slog.String("model", req.Model),
			slog.Int("attempt", attempt),
			slog.String("kind", kindLabel(aerr)),
			slog.Int("status", aerr.Status),
			slog.String("body", aerr.Body),
			slog.Any("error", aerr.Err))
		if aerr.Retryable() || errors.Is(aerr, domain.ErrRateLimit) {
			return aerr
		}
		return backoff.Permanent(aerr)
	}
	notify := func(err error, wait time.Duration) {
		reason := kindLabel(err)
		observability.RecordAIRetry(reason)
		lg.Info("retrying ai provider call",
			slog.String("provider", providerName),
			slog.String("reason", reason),
			slog.Int("retry", policy.retries),
			slog.Int("budget", budget),
			slog.Duration("wait", wait))
	}

	err = backoff.RetryNotifyWithTimer(op, backoff.WithContext(policy, ctx), notify, c.newTimer())
	if err != nil {
		return nil, classifyRetryExit(err)
	}
	return out, nil
}

// classifyRetryExit makes sure a context error ending a backoff wait is
// still reported as a network failure.
func classifyRetryExit(err error) error {
	if _, ok := domain.AsAIError(err); ok {
		return err
	}
	return classify(0, nil, nil, err)
}

// attempt sends one request bounded by timeout.
func (c *Client) attempt(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, *domain.AIError) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.AIError{Kind: domain.ErrValidation, Message: "build request", Err: err}
	}
	r.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	r.Header.Set("Content-Type", "application/json")
	if c.cfg.OpenRouterReferer != "" {
		r.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
	}
	if c.cfg.OpenRouterTitle != "" {
		r.Header.Set("X-Title", c.cfg.OpenRouterTitle)
	}
	if c.cfg.AppVersion != "" {
		r.Header.Set("X-Application-Version", c.cfg.AppVersion)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		return nil, classify(0, nil, nil, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classify(0, nil, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify(resp.StatusCode, body, resp.Header, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.AIError{Kind: domain.ErrTransport, Status: resp.StatusCode, Message: "malformed response body", Body: readSnippet(body, bodySnippetLimit), Err: err}
	}
	if parsed.Error != nil {
		return nil, classify(resp.StatusCode, body, resp.Header, nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, &domain.AIError{Kind: domain.ErrTransport, Status: resp.StatusCode, Message: "response contained no choices", Body: readSnippet(body, bodySnippetLimit)}
	}
	return body, nil
}
