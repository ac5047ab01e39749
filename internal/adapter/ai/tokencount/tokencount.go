// Package tokencount estimates prompt sizes for chat completion requests.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken, with cl100k_base as
// the fallback encoding for models tiktoken does not know about. BPE ranks
// are loaded from the embedded offline loader, so counting never touches the
// network.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// Turn is one chat message as seen by the counter.
type Turn struct {
	Role    string
	Content string
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	loaderOnce.Do(func() { tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader()) })
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// getEncodingForModel returns the appropriate tiktoken encoding for a model.
// It caches encodings for performance.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalizedModel),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// normalizeModelName converts OpenRouter model IDs to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// e.g. "openai/gpt-4o-mini", "meta-llama/llama-3.1-8b-instruct:free"
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// cl100k_base is a reasonable approximation for llama, mistral,
		// claude, gemma and the rest.
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in a text string for a given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts prompt tokens for a chat completion request,
// including the per-message overhead of OpenAI-compatible APIs.
// See: https://github.com/openai/openai-cookbook/blob/main/examples/How_to_count_tokens_with_tiktoken.ipynb
func (c *Counter) CountChatTokens(model string, turns ...Turn) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}

	const tokensPerMessage = 3
	numTokens := 0
	for _, t := range turns {
		numTokens += tokensPerMessage
		numTokens += len(enc.Encode(t.Role, nil, nil))
		numTokens += len(enc.Encode(t.Content, nil, nil))
	}
	// Every reply is primed with <|start|>assistant<|message|>
	numTokens += 3
	return numTokens, nil
}

// EstimatePromptTokens is CountChatTokens that never fails: when no
// encoding can be loaded it falls back to roughly four characters per token.
func (c *Counter) EstimatePromptTokens(model string, turns ...Turn) int {
	n, err := c.CountChatTokens(model, turns...)
	if err == nil {
		return n
	}
	slog.Warn("failed to count prompt tokens, using estimate",
		slog.String("model", model),
		slog.Any("error", err))
	return roughEstimate(turns)
}

func roughEstimate(turns []Turn) int {
	chars := 0
	for _, t := range turns {
		chars += len(t.Role) + len(t.Content)
	}
	return chars/4 + 4*len(turns) + 3
}
