package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func invalid(field, code, msg string) ValidationResult {
	return ValidationResult{Errors: []ValidationError{{Field: field, Code: code, Message: msg}}}
}

// ValidateSourceTextID checks that id is a UUID.
func ValidateSourceTextID(id string) ValidationResult {
	if id == "" {
		return invalid("id", "REQUIRED", "Source text ID is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid("id", "INVALID_FORMAT", "Source text ID must be a UUID")
	}
	return ValidationResult{Valid: true}
}

var validUserID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateUserID checks an owner id taken from the X-User-Id header.
func ValidateUserID(id string) ValidationResult {
	if id == "" {
		return invalid("user_id", "REQUIRED", "User ID is required")
	}
	if len(id) > 100 {
		return invalid("user_id", "TOO_LONG", "User ID is too long (max 100 characters)")
	}
	if !validUserID.MatchString(id) {
		return invalid("user_id", "INVALID_FORMAT", "User ID contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// SanitizeString sanitizes a header or path input
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)

	// Limit length to prevent DoS
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
