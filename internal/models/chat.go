package models

import (
	"time"
)

// LastMessage is the denormalized summary kept on a Conversation. It always
// mirrors the most recently committed Message for the pair.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the durable per-participant-pair chat summary. UserID1 and
// UserID2 are stored in canonical sorted order so the pair is unique regardless
// of who sent first.
type Conversation struct {
	ID          string       `json:"id"`
	UserID1     string       `json:"userId1"`
	UserID2     string       `json:"userId2"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserID1 == userID || c.UserID2 == userID
}

// Message is a single persisted chat line belonging to a Conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chatId"`
	FromID         string    `json:"fromUserId"`
	ToID           string    `json:"toUserId"`
	Text           string    `json:"text"`
	Seen           bool      `json:"seen"`
	CreatedAt      time.Time `json:"createdAt"`
}
