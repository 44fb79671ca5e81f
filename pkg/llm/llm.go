// Package llm defines the completion service contract consumed by the plan synthesizer.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks for a completion constrained to a JSON schema.
type CompletionRequest struct {
	Messages   []Message      `json:"messages"`
	SchemaName string         `json:"schema_name"`
	Schema     map[string]any `json:"schema"`
}

type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// Completer is the LLM completion service.
type Completer interface {
	Complete(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)
}

// ErrEmptyCompletion is returned when the service answers without content.
var ErrEmptyCompletion = errors.New("empty completion")

// ErrResponseTooLarge is returned when the service answers with an oversized body.
var ErrResponseTooLarge = errors.New("completion response too large")

// ParseError reports that the model output could not be read as the requested shape.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse completion: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError checks if an error is a completion parse error.
func IsParseError(err error) bool {
	var parseErr *ParseError

	return errors.As(err, &parseErr)
}
