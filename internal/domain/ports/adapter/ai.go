package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Task labels for the storyboard stages.
const (
	TaskScenes = "scenes"
	TaskShots  = "shots"
)

// ChatRequest is one LLM call. JSON asks the provider for a JSON-only reply.
type ChatRequest struct {
	Task            string // short label for logs and offline adapters, e.g. "scenes"
	Model           string
	Messages        []Message
	JSON            bool
	Temperature     float64
	MaxOutputTokens int
}

type ChatResponse struct {
	Text  string
	Usage Usage
}

// AIServiceAdapter is the port for LLM text generation used by the
// narrative and shot stages.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
