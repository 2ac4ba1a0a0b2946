// Package notify is the in-process bus for user-facing notices such as
// failed sends or rejected inventory changes. A Bus is created once and
// passed to whoever publishes or listens; there is no package-level state.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	UserID    uuid.UUID `json:"user_id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Handler func(Notification)

type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe adds h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers n to every subscriber on the caller's goroutine. A nil
// Bus drops the notification.
func (b *Bus) Publish(n Notification) {
	if b == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}

// Error publishes an error-level notification to userID.
func (b *Bus) Error(userID uuid.UUID, title, message string) {
	b.Publish(Notification{UserID: userID, Level: LevelError, Title: title, Message: message})
}

// Success publishes a success-level notification to userID.
func (b *Bus) Success(userID uuid.UUID, title, message string) {
	b.Publish(Notification{UserID: userID, Level: LevelSuccess, Title: title, Message: message})
}
