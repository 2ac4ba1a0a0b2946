package models

import "github.com/google/uuid"

// WebSocket event types
const (
	// client -> server
	EventChatOpen    = "chat.open"
	EventChatClose   = "chat.close"
	EventMessageSend = "message.send"
	EventMessageRead = "message.read"
	EventTypingStart = "typing.start"
	EventTypingStop  = "typing.stop"

	// server -> client
	EventConversations    = "conversations.update"
	EventMessagesSnapshot = "messages.snapshot"
	EventMessageNew       = "message.new"
	EventTypingUpdate     = "typing.update"
	EventReadReceipt      = "message.read_receipt"
	EventPresenceUpdate   = "presence.update"
	EventNotification     = "notification"
	EventError            = "error"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// WSChatPayload addresses a single chat (open, close, read, typing).
type WSChatPayload struct {
	ChatID uuid.UUID `json:"chat_id"`
}

type WSMessageSendPayload struct {
	ChatID  uuid.UUID `json:"chat_id"`
	Content string    `json:"content"`
}

type WSMessagesSnapshot struct {
	ChatID   uuid.UUID   `json:"chat_id"`
	Messages []Message   `json:"messages"`
	Typing   []uuid.UUID `json:"typing,omitempty"`
}

type WSErrorPayload struct {
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`
	ChatID  *uuid.UUID `json:"chat_id,omitempty"`
}
