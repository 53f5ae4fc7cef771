package types

import "time"

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerSystem    Speaker = "system"
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one prior exchange in the conversation history.
type Turn struct {
	Role      Speaker   `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewTurn creates a turn stamped with the current time.
func NewTurn(role Speaker, text string) Turn {
	return Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewUserTurn creates a user turn.
func NewUserTurn(text string) Turn {
	return NewTurn(SpeakerUser, text)
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(text string) Turn {
	return NewTurn(SpeakerAssistant, text)
}

// ContextDocument is a reference to a retrieved knowledge-base document.
type ContextDocument struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}
