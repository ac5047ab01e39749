package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the prompt templates used for generation.
type Prompts struct {
	Flashcards PromptTemplate `yaml:"flashcards"`
}

// PromptTemplate is a system message plus a user template with {text} and
// {count} placeholders.
type PromptTemplate struct {
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// LoadPrompts returns the embedded prompts, overridden by the YAML file at
// path when path is non-empty. Fields missing from the file keep their
// embedded values.
func LoadPrompts(path string) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: parse embedded: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: failed to get absolute path: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: failed to read config file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(content, &override); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: failed to parse YAML: %w", err)
	}
	if strings.TrimSpace(override.Flashcards.Template) != "" {
		p.Flashcards.Template = override.Flashcards.Template
	}
	if strings.TrimSpace(override.Flashcards.System) != "" {
		p.Flashcards.System = override.Flashcards.System
	}
	return p, nil
}

// Render substitutes the first {text} and {count} placeholders.
func (t PromptTemplate) Render(text string, count int) string {
	out := strings.Replace(t.Template, "{text}", text, 1)
	return strings.Replace(out, "{count}", strconv.Itoa(count), 1)
}
