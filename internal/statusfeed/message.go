package statusfeed

import (
	"encoding/json"

	"github.com/turtacn/lspbridge/internal/connection"
)

// Message types
const (
	TypeStatus  = "status"
	TypeContext = "context"
	TypePrompt  = "prompt"
	TypeAnswer  = "answer"
	TypeCommand = "command"
	TypeError   = "error"
)

// Prompt kinds
const (
	KindInfo             = "info"
	KindError            = "error"
	KindSelectExecutable = "select_executable"
)

// Message is the envelope for everything sent over the feed.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a Message with payload marshalled to JSON.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: data}, nil
}

type StatusPayload = connection.StatusView

type ContextPayload struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

type PromptPayload struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Message string   `json:"message,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Setting string   `json:"setting,omitempty"`
}

// AnswerPayload resolves a prompt. Path answers a select_executable prompt;
// an empty Action or Path dismisses it.
type AnswerPayload struct {
	ID     string `json:"id"`
	Action string `json:"action,omitempty"`
	Path   string `json:"path,omitempty"`
}

type CommandPayload struct {
	Name string `json:"name"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Personal.AI order the ending
