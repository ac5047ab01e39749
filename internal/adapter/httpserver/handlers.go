package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fiszki/kreator/internal/config"
	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Server aggregates handlers dependencies.
type Server struct {
	Cfg         config.Config
	SourceTexts usecase.SourceTextService
	Generate    usecase.GenerateService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	// AICheck is reported by /readyz but never fails it: the API keeps
	// serving source texts while the AI service is down.
	AICheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, texts usecase.SourceTextService, gen usecase.GenerateService, dbCheck, redisCheck, aiCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, SourceTexts: texts, Generate: gen, DBCheck: dbCheck, RedisCheck: redisCheck, AICheck: aiCheck}
}

// acceptsJSON writes 406 and returns false when the client refuses JSON.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
	return false
}

// ownerID returns the caller's id from X-User-Id or the configured default.
func (s *Server) ownerID(r *http.Request) (string, error) {
	id := SanitizeString(r.Header.Get("X-User-Id"))
	if id == "" {
		id = s.Cfg.DefaultUserID
	}
	if res := ValidateUserID(id); !res.Valid {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidArgument, res.Errors[0].Message)
	}
	return id, nil
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "PAYLOAD_TOO_LARGE", Message: "request body too large", Details: map[string]any{"limit": mbe.Limit}}})
		return
	}
	writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
}

// CreateSourceTextHandler stores a source text for the caller.
func (s *Server) CreateSourceTextHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		owner, err := s.ownerID(r)
		if err != nil {
			writeError(w, r, err, map[string]string{"user_id": "invalid"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req struct {
			Content string `json:"content" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBodyError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		st, err := s.SourceTexts.CreateSourceText(r.Context(), req.Content, owner)
		if err != nil {
			var details interface{}
			if errors.Is(err, domain.ErrInvalidArgument) {
				details = map[string]string{"content": "length"}
			}
			writeError(w, r, err, details)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

// GenerateFlashcardsHandler generates and saves flashcards for a source
// text. An empty body or a missing count asks for the default count.
func (s *Server) GenerateFlashcardsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := SanitizeString(chi.URLParam(r, "id"))
		if res := ValidateSourceTextID(id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, res.Errors[0].Message), res.Errors)
			return
		}
		owner, err := s.ownerID(r)
		if err != nil {
			writeError(w, r, err, map[string]string{"user_id": "invalid"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req struct {
			Count *int `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			var ute *json.UnmarshalTypeError
			if errors.As(err, &ute) && ute.Field == "count" {
				writeError(w, r, usecase.ErrInvalidCount, map[string]string{"count": "integer"})
				return
			}
			writeBodyError(w, r, err)
			return
		}
		count := usecase.DefaultFlashcardCount
		if req.Count != nil {
			count = *req.Count
		}
		res, err := s.Generate.Generate(r.Context(), id, owner, count)
		if err != nil {
			if !usecase.IsAIUnavailable(err) {
				LoggerFrom(r).Warn("generate flashcards failed", slog.String("source_text_id", id), slog.Any("error", err))
			}
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

type readinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

func runCheck(ctx context.Context, name string, fn func(context.Context) error) readinessCheck {
	if err := fn(ctx); err != nil {
		return readinessCheck{Name: name, Details: err.Error()}
	}
	return readinessCheck{Name: name, OK: true}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and the AI service.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]readinessCheck, 0, 3)
		ok := true
		if s.DBCheck != nil {
			c := runCheck(ctx, "db", s.DBCheck)
			ok = ok && c.OK
			checks = append(checks, c)
		}
		if s.RedisCheck != nil {
			c := runCheck(ctx, "redis", s.RedisCheck)
			ok = ok && c.OK
			checks = append(checks, c)
		}
		if s.AICheck != nil {
			checks = append(checks, runCheck(ctx, "ai", s.AICheck))
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
