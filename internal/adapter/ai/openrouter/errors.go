package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiszki/kreator/internal/domain"
)

const bodySnippetLimit = 512

// classify maps one failed attempt to the error taxonomy. err is set for
// failures before a response was read; otherwise status, body and header
// describe the response.
func classify(status int, body []byte, header http.Header, err error) *domain.AIError {
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return &domain.AIError{Kind: domain.ErrNetwork, Message: "request timed out", Err: err}
		case errors.Is(err, context.Canceled):
			return &domain.AIError{Kind: domain.ErrNetwork, Message: "request canceled", Err: err}
		default:
			return &domain.AIError{Kind: domain.ErrNetwork, Message: "connection failed", Err: err}
		}
	}

	msg := upstreamMessage(body)
	snippet := readSnippet(body, bodySnippetLimit)
	ae := &domain.AIError{Status: status, Body: snippet, Message: msg}
	lower := strings.ToLower(msg + " " + snippet)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ae.Kind = domain.ErrAuth
	case status == http.StatusTooManyRequests:
		ae.Kind = domain.ErrRateLimit
		ae.RetryAfter = retryAfter(header, body)
	case mentionsModeration(lower):
		ae.Kind = domain.ErrContentFilter
	case mentionsUnavailableModel(lower):
		ae.Kind = domain.ErrModelUnavailable
	default:
		ae.Kind = domain.ErrTransport
	}
	if ae.Message == "" && status != 0 {
		ae.Message = http.StatusText(status)
	}
	return ae
}

func mentionsModeration(s string) bool {
	return strings.Contains(s, "moderation") || strings.Contains(s, "content_filter") ||
		strings.Contains(s, "content filter") || strings.Contains(s, "flagged")
}

func mentionsUnavailableModel(s string) bool {
	if !strings.Contains(s, "model") && !strings.Contains(s, "endpoints") {
		return false
	}
	for _, p := range []string{"not available", "not found", "no endpoints", "does not exist"} {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// upstreamMessage returns error.message (or a top-level message) from a
// JSON error body.
func upstreamMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	if env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return env.Message
}

// retryAfter reads the wait hint from the Retry-After header (seconds or
// HTTP date) or from retry_after / retryAfter in the body, top level, under
// error, or under error.metadata. Zero means unknown.
func retryAfter(header http.Header, body []byte) time.Duration {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	var doc map[string]any
	if json.Unmarshal(body, &doc) != nil {
		return 0
	}
	scopes := []map[string]any{doc}
	if e, ok := doc["error"].(map[string]any); ok {
		scopes = append(scopes, e)
		if m, ok := e["metadata"].(map[string]any); ok {
			scopes = append(scopes, m)
		}
	}
	for _, s := range scopes {
		for _, k := range []string{"retry_after", "retryAfter"} {
			if d := secondsValue(s[k]); d > 0 {
				return d
			}
		}
	}
	return 0
}

func secondsValue(v any) time.Duration {
	switch x := v.(type) {
	case float64:
		return time.Duration(x * float64(time.Second))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 0
}

// ClassifyMessage returns err unchanged when it already carries a kind and
// otherwise derives one from the error text, defaulting to ErrService.
func ClassifyMessage(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsAIError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &domain.AIError{Kind: domain.ErrNetwork, Err: err}
	}

	s := strings.ToLower(err.Error())
	kind := domain.ErrService
	switch {
	case containsAny(s, "content_filter", "moderation", "inappropriate"):
		kind = domain.ErrContentFilter
	case containsAny(s, "401", "403", "authentication", "unauthorized", "api key"):
		kind = domain.ErrAuth
	case containsAny(s, "429", "rate limit"):
		kind = domain.ErrRateLimit
	case containsAny(s, "timeout", "timed out", "network", "abort", "socket", "connection"):
		kind = domain.ErrNetwork
	case strings.Contains(s, "model") && strings.Contains(s, "not available"):
		kind = domain.ErrModelUnavailable
	case containsAny(s, "invalid", "required", "parameter"):
		kind = domain.ErrValidation
	}
	return &domain.AIError{Kind: kind, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// kindLabel names an error kind for metrics and logs.
func kindLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAuth):
		return "auth"
	case errors.Is(err, domain.ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	case errors.Is(err, domain.ErrContentFilter):
		return "content_filter"
	case errors.Is(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "service"
	}
}

// readSnippet returns at most n bytes of b, cut on a rune boundary.
func readSnippet(b []byte, n int) string {
	if n <= 0 || len(b) == 0 {
		return ""
	}
	if len(b) <= n {
		return string(b)
	}
	cut := n
	for cut > 0 && b[cut]&0xC0 == 0x80 {
		cut--
	}
	return string(b[:cut])
}
