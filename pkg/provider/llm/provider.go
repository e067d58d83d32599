// Package llm is the text-generation seam behind the companion's guide
// content. Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    string
	Content string
}

// Usage is the token accounting reported by the backend, when it has one.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a single non-streaming generation.
type CompletionRequest struct {
	Messages []Message

	// SystemPrompt, when set, is sent ahead of Messages.
	SystemPrompt string

	// Temperature of zero means the provider default.
	Temperature float64

	// MaxTokens of zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the generated text.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider produces completions.
type Provider interface {
	// Complete sends req and waits for the whole response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model names the model requests are sent to.
	Model() string
}

// UserPrompt returns a request holding a single user message.
func UserPrompt(text string, temperature float64) CompletionRequest {
	return CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: temperature,
	}
}
