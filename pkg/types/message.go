// Package types defines the primitives shared between LLM providers and
// their callers: chat messages, token usage, and model metadata.
package types

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	// RoleSystem is the system instruction role.
	RoleSystem MessageRole = "system"

	// RoleUser is the end-user role.
	RoleUser MessageRole = "user"

	// RoleAssistant is the model response role.
	RoleAssistant MessageRole = "assistant"
)

// Message is a single chat message exchanged with an LLM.
type Message struct {
	// Role indicates who authored the message.
	Role MessageRole `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// Usage records token consumption for one LLM API call.
type Usage struct {
	// PromptTokens is the number of tokens in the input/prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the generated response.
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined prompt and completion token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	// Provider is the backing service identifier (e.g. "openai").
	Provider string

	// Name is the model name as sent on the wire.
	Name string

	// Metadata holds provider-specific details such as a custom base URL.
	Metadata map[string]interface{}
}
