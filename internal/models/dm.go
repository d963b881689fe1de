package models

import "time"

// ConversationTypeDirect is the only conversation type this service creates.
const ConversationTypeDirect = "direct"

// Universe is a user-owned persona; it is one side of a conversation.
type Universe struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Active  bool   `json:"active"`
}

// DMConversation is a direct conversation between two universes, stored
// with UniverseLow < UniverseHigh.
type DMConversation struct {
	ID           string    `json:"id"`
	UniverseLow  string    `json:"universeLow"`
	UniverseHigh string    `json:"universeHigh"`
	CreatedBy    string    `json:"createdBy"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Participants returns both sides, low first.
func (c *DMConversation) Participants() [2]string {
	return [2]string{c.UniverseLow, c.UniverseHigh}
}

type DMParticipant struct {
	ConversationID string    `json:"conversationId"`
	UniverseID     string    `json:"universeId"`
	JoinedAt       time.Time `json:"joinedAt"`
}

type DMMessage struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	SenderUniverseID string    `json:"senderUniverseId"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"createdAt"`
}
