package domain

import "time"

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	ContextChallengeID string    `json:"contextChallengeId,omitempty"`
	Messages           []Message `json:"messages"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// ChatState is the persisted conversation document.
type ChatState struct {
	Conversations        []Conversation `json:"conversations"`
	ActiveConversationID *string        `json:"activeConversationId"`
}
