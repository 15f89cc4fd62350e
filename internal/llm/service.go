// Package llm maintains a trimmed conversation history and streams chat
// completions from one of two remote providers, parsing each provider's SSE
// wire format incrementally into a single accumulated answer.
package llm

import "context"

// Provider constants for the two supported chat-completion providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default models used when the caller sets none.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// MaxHistory bounds the conversation history. Oldest entries are evicted
// first whenever an append would exceed the bound.
const MaxHistory = 20

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the final accumulated answer of one provider round-trip.
type ChatResponse struct {
	Content    string
	TokensUsed int
}

// TokenSource is the auth collaborator: it produces access tokens, refreshes
// them on demand, and declares which provider the credentials belong to.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	Provider() string
}

// Service is the chat contract the orchestration layer depends on.
type Service interface {
	Chat(ctx context.Context, userText string) (*ChatResponse, error)
	SetSystemPrompt(prompt string)
	ClearHistory()
	History() []Message
	SetModel(model string)
	Model() string
}

// StaticTokenSource adapts a fixed API key to the TokenSource contract.
// Refresh is a no-op; a 401 with a static key is terminal.
type StaticTokenSource struct {
	Token        string
	ProviderName string
}

func (s *StaticTokenSource) AccessToken(context.Context) (string, error) { return s.Token, nil }
func (s *StaticTokenSource) Refresh(context.Context) error              { return nil }
func (s *StaticTokenSource) Provider() string                           { return s.ProviderName }
