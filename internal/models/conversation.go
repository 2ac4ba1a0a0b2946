package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a tenant<->agent thread scoped to one property. There is
// exactly one per (property, tenant) pair.
type Conversation struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	PropertyID    uuid.UUID    `json:"property_id" db:"property_id"`
	PropertyTitle string       `json:"property_title" db:"property_title"`
	TenantID      uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	AgentID       uuid.UUID    `json:"agent_id" db:"agent_id"`
	TenantName    string       `json:"tenant_name" db:"tenant_name"`
	AgentName     string       `json:"agent_name" db:"agent_name"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
	LastMessage   *LastMessage `json:"last_message,omitempty"`
	UnreadCount   int          `json:"unread_count"`
}

// LastMessage is the preview shown in the conversation list.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SenderID  uuid.UUID `json:"sender_id"`
}

// HasParticipant reports whether userID is the tenant or the agent.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (c.TenantID == userID || c.AgentID == userID)
}

type CreateChatRequest struct {
	PropertyID uuid.UUID  `json:"property_id" binding:"required"`
	TenantID   *uuid.UUID `json:"tenant_id,omitempty"`
}

type CreateChatResponse struct {
	ChatID uuid.UUID `json:"chat_id"`
}
