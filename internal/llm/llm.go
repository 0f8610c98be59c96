// Package llm provides chat-completion backends used for coaching replies and
// context distillation.
package llm

import (
	"context"
	"errors"
)

// ErrUpstream marks failures of the generation backend: transport errors,
// timeouts and non-2xx responses.
var ErrUpstream = errors.New("upstream generation error")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single non-streaming completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Generator is a chat-completion backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
