package openrouter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/fiszki/kreator/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:             "prod",
		OpenRouterAPIKey:   "sk-or-v1-test-key",
		OpenRouterBaseURL:  baseURL,
		OpenRouterModel:    "openai/gpt-4o-mini",
		OpenRouterReferer:  "https://fiszki.test",
		OpenRouterTitle:    "Fiszki",
		AppVersion:         "1.2.3",
		AITemperature:      0.7,
		AIMaxTokens:        1000,
		AITopP:             1,
		AITimeout:          2 * time.Second,
		AIRetries:          3,
		AIBreakerThreshold: 50,
		AIBreakerCooldown:  30 * time.Second,
	}
}

// waitRecorder replaces backoff sleeps with instant timers and records the
// requested durations.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) Waits() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

func (w *waitRecorder) newTimer() backoff.Timer {
	return &instantTimer{rec: w, c: make(chan time.Time, 1)}
}

type instantTimer struct {
	rec *waitRecorder
	c   chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.rec.mu.Lock()
	t.rec.waits = append(t.rec.waits, d)
	t.rec.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// upstream serves handler and counts hits; n is the 1-based hit number.
func upstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, n int)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		handler(w, r, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeCompletion(w http.ResponseWriter, content any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    "gen-123",
		"model": "openai/gpt-4o-mini",
		"choices": []map[string]any{{
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	})
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, cfg config.Config, opts ...Option) (*Client, *waitRecorder) {
	t.Helper()
	rec := &waitRecorder{}
	c, err := New(cfg, append([]Option{WithTimer(rec.newTimer)}, opts...)...)
	require.NoError(t, err)
	return c, rec
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return body
}
