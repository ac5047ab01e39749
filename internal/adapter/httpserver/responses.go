// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the source text and flashcard generation endpoints and maps
// domain and AI errors onto a JSON error envelope.
package httpserver

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/internal/usecase"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and code. AI errors are checked first
// because their kinds are not the HTTP sentinels.
func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	msg := err.Error()
	switch {
	case usecase.IsAIUnavailable(err):
		code = http.StatusServiceUnavailable
		codeStr = "AI_SERVICE_UNAVAILABLE"
		msg = "AI service is temporarily unavailable"
		if ae, ok := domain.AsAIError(err); ok && ae.RetryAfter > 0 {
			setRetryAfter(w, ae.RetryAfter)
		}
		if details == nil {
			details = map[string]string{"error": err.Error()}
		}
	case usecase.IsAIGenerationFailure(err):
		code = http.StatusUnprocessableEntity
		codeStr = "AI_GENERATION_FAILED"
		msg = "failed to generate flashcards"
		if details == nil {
			details = map[string]string{"error": err.Error()}
		}
	case errors.Is(err, usecase.ErrInvalidCount):
		code = http.StatusUnprocessableEntity
		codeStr = "INVALID_COUNT_PARAMETER"
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
		codeStr = "RATE_LIMITED"
		var rl *domain.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			setRetryAfter(w, rl.RetryAfter)
		}
	}
	if code >= 500 {
		LoggerFrom(r).Error("request failed", "status", code, "code", codeStr, "error", err)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: msg, Details: details}})
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
