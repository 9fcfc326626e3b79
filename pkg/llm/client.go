// Package llm provides the chat-completion client used by direct experts,
// external experts, and the summarizer. The wire protocol is the OpenAI
// chat completions API, which every supported backend speaks.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single non-streaming completion call.
// Temperature and MaxTokens of zero mean "use the provider default".
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client issues chat completions. Implementations must honor context
// cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
