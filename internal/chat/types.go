// Package chat holds the OpenAI-compatible wire types shared by the relay
// stages and the upstream client.
package chat

// Role values accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body POSTed to <baseUrl>/chat/completions.
// One is built per stage and never mutated afterwards.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// StreamChunk is the JSON object carried by one upstream "data: " line.
// Only the fields the relay reads are declared.
type StreamChunk struct {
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice is one choice within a StreamChunk. Delta is a pointer so an
// absent delta can be told apart from an empty one.
type StreamChoice struct {
	Delta *StreamDelta `json:"delta"`
}

// StreamDelta carries the incremental text of a chunk.
type StreamDelta struct {
	ReasoningContent string `json:"reasoning_content,omitempty"`
	Content          string `json:"content,omitempty"`
}

// DeltaEvent is the decoded unit produced per upstream stream line.
// An empty field means "not present".
type DeltaEvent struct {
	ReasoningText string
	ContentText   string
}
