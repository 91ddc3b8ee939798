// Package models defines the chat domain types shared across Charla.
package models

import (
	"time"
)

// User is a registered profile, looked up by email. Email is the
// human-facing identifier used everywhere in the system; the store keys
// profile documents by it.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conversation is a two-party chat. Participants holds exactly two emails
// in ascending lexicographic order, matching the canonical id derivation.
// Conversations are created once and never mutated or deleted.
type Conversation struct {
	ID               string            `json:"id"`
	Participants     [2]string         `json:"participants"`
	ParticipantNames map[string]string `json:"participantsData"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// OtherParticipant returns the participant that is not self. When self is
// not a participant the first entry is returned; callers filter by
// membership before relying on this.
func (c *Conversation) OtherParticipant(self string) string {
	if c.Participants[0] == self {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// HasParticipant reports whether email is one of the two participants.
func (c *Conversation) HasParticipant(email string) bool {
	return c.Participants[0] == email || c.Participants[1] == email
}

// Message is a single chat message. Timestamp is assigned by the store at
// commit time so ordering holds regardless of client clock skew. Messages
// are append-only.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}
