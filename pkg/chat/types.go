// Package chat is the boundary over remote chat-completion endpoints.
package chat

import "context"

// Message roles used by the prompts in this module.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transport sends one ordered message list to a model and returns the
// assistant's raw reply. Implementations make exactly one round trip per call
// and never retry.
type Transport interface {
	Send(ctx context.Context, credential, model string, messages []Message) (string, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, credential, model string, messages []Message) (string, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, credential, model string, messages []Message) (string, error) {
	return f(ctx, credential, model, messages)
}
