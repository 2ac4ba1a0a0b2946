package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
)

const (
	MessageTypeText = "text"

	// MaxMessageLength is measured in characters, not bytes.
	MaxMessageLength = 1000
)

type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ChatID      uuid.UUID `json:"chat_id" db:"chat_id"`
	SenderID    uuid.UUID `json:"sender_id" db:"sender_id"`
	Content     string    `json:"content" db:"content"`
	MessageType string    `json:"message_type" db:"message_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Before orders messages by created_at, then id, so equal timestamps still
// sort deterministically.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return strings.Compare(m.ID.String(), other.ID.String()) < 0
}

// NormalizeContent trims content and checks it against the message length
// contract.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apperr.Validation("content", "message cannot be empty")
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxMessageLength {
		return "", apperr.Validation("content", "message is too long (%d/%d characters)", n, MaxMessageLength)
	}
	return trimmed, nil
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type TypingIndicator struct {
	ChatID   uuid.UUID `json:"chat_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

// ReadReceipt is published when a participant reads a chat.
type ReadReceipt struct {
	ChatID   uuid.UUID `json:"chat_id"`
	ReaderID uuid.UUID `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}
