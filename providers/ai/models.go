package ai

import "time"

/*
	##### CONVERSATION HISTORY #####
*/

// MessageRole represents the role of a stored message; compatible with string
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // Session instruction/persona, always the first message
	RoleUser      MessageRole = "user"      // End-user message
	RoleAssistant MessageRole = "assistant" // Generated reply
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in a conversation history.
// Messages are values: stores copy them in and out and never edit them in place.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage returns a message stamped with the given time.
func NewMessage(role MessageRole, content string, at time.Time) Message {
	return Message{Role: role, Content: content, Timestamp: at}
}

/*
	##### PROVIDER INPUT #####
*/

// Party is the two-party role taxonomy of the generation contract.
type Party string

const (
	PartyRequester Party = "requester" // The side asking: end-user turns, inline instructions
	PartyResponder Party = "responder" // The model side
)

// Turn is one entry of the formatted conversation sent to a provider.
type Turn struct {
	Party Party  `json:"party"`
	Text  string `json:"text"`
}

// ChatRequest represents a request to generate the next reply of a conversation
type ChatRequest struct {
	Model            string            `json:"model,omitempty"`             // Model name or identifier
	Instruction      string            `json:"instruction,omitempty"`       // Optional dedicated instruction slot
	Turns            []Turn            `json:"turns"`                       // Ordered conversation turns
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"` // Optional generation configuration
}

type GenerationConfig struct {
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"` // Maximum tokens of the generated reply
	Temperature     *float32 `json:"temperature,omitempty"`       // Sampling temperature [0..2]. nil => provider default; 0 is a valid setting.
}

/*
	##### PROVIDER OUTPUT #####
*/

type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse represents a single generated reply
type ChatResponse struct {
	Id           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`

	// Refusal carries the provider's block reason when the prompt was rejected.
	Refusal string `json:"refusal,omitempty"`
}
