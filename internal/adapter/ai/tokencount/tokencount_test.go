package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int
		maxCount int
	}{
		{
			name:     "simple text with gpt-4",
			text:     "Hello, world!",
			model:    "gpt-4",
			minCount: 3,
			maxCount: 5,
		},
		{
			name:     "openrouter id",
			text:     "The quick brown fox jumps over the lazy dog.",
			model:    "openai/gpt-4o-mini",
			minCount: 8,
			maxCount: 12,
		},
		{
			name:     "free llama model (uses gpt-4 encoding)",
			text:     "Hello, world!",
			model:    "meta-llama/llama-3.1-8b-instruct:free",
			minCount: 3,
			maxCount: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := counter.CountTokens(tt.text, tt.model)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestCountChatTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	one, err := counter.CountChatTokens("openai/gpt-4o-mini", Turn{Role: "user", Content: "Create 5 flashcards."})
	require.NoError(t, err)
	two, err := counter.CountChatTokens("openai/gpt-4o-mini",
		Turn{Role: "system", Content: "You are helpful."},
		Turn{Role: "user", Content: "Create 5 flashcards."})
	require.NoError(t, err)
	assert.Greater(t, two, one)

	empty, err := counter.CountChatTokens("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 3, empty)
}

func TestEstimatePromptTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	n := counter.EstimatePromptTokens("anthropic/claude-3-haiku", Turn{Role: "user", Content: strings.Repeat("lorem ipsum ", 200)})
	assert.Greater(t, n, 200)
}

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"openai/gpt-4o-mini":                    "gpt-4o",
		"GPT-4o":                                "gpt-4o",
		"openai/gpt-3.5-turbo":                  "gpt-3.5-turbo",
		"meta-llama/llama-3.1-8b-instruct:free": "gpt-4",
		"anthropic/claude-3-haiku":              "gpt-4",
		"mistral":                               "gpt-4",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeModelName(in), in)
	}
}

func TestEncodingCache(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	_, err := counter.CountTokens("a", "openai/gpt-4o-mini")
	require.NoError(t, err)
	_, err = counter.CountTokens("b", "gpt-4o")
	require.NoError(t, err)

	counter.mu.RLock()
	defer counter.mu.RUnlock()
	assert.Len(t, counter.encodingCache, 1)
}

func TestRoughEstimate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, roughEstimate(nil))
	assert.Equal(t, (4+40)/4+4+3, roughEstimate([]Turn{{Role: "user", Content: strings.Repeat("x", 40)}}))
}
