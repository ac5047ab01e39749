package openrouter

import (
	"strings"

	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/pkg/textx"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one role-tagged chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a TextPrompt or a Conversation.
type Prompt interface {
	messages() []Message
}

// TextPrompt is a single user message.
type TextPrompt string

func (p TextPrompt) messages() []Message {
	return []Message{{Role: RoleUser, Content: string(p)}}
}

// Conversation is an ordered list of messages sent as is.
type Conversation []Message

func (c Conversation) messages() []Message { return c }

// FormatMessages sanitizes the prompt into the message list sent upstream,
// with systemMessage, when non-empty, prepended as a system message.
func FormatMessages(prompt Prompt, systemMessage string) ([]Message, error) {
	var out []Message
	if strings.TrimSpace(systemMessage) != "" {
		out = append(out, Message{Role: RoleSystem, Content: textx.SanitizePrompt(systemMessage)})
	}
	if prompt != nil {
		for _, m := range prompt.messages() {
			out = append(out, Message{Role: m.Role, Content: textx.SanitizePrompt(m.Content)})
		}
	}

	if len(out) == 0 {
		return nil, domain.NewAIError(domain.ErrValidation, "at least one message is required")
	}
	for i, m := range out {
		if !m.Role.valid() {
			return nil, domain.NewAIError(domain.ErrValidation, "message %d: invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, domain.NewAIError(domain.ErrValidation, "message %d: content is empty", i)
		}
	}
	return out, nil
}
