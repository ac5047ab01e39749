package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fiszki/kreator/internal/config"
)

func TestParseOrigins(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ", []string{"*"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseOrigins(c.in), c.in)
	}
}

func TestGenerationTimeout(t *testing.T) {
	assert.Equal(t, 235*time.Second, generationTimeout(config.Config{HTTPWriteTimeout: 240 * time.Second}))
	assert.Equal(t, defaultRequestTimeout, generationTimeout(config.Config{HTTPWriteTimeout: 10 * time.Second}))
	assert.Equal(t, defaultRequestTimeout, generationTimeout(config.Config{}))
}
