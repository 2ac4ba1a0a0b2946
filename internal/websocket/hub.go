package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"go.uber.org/zap"
)

// PresenceStore records who is connected. *cache.RedisClient implements it.
type PresenceStore interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// Hub maintains the set of active clients. A user may hold several
// connections at once, one per open tab or device.
type Hub struct {
	// Registered clients, by user
	clients map[uuid.UUID]map[*Client]struct{}

	// Messages for every connected client
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed once Run has returned
	done chan struct{}

	// Presence store, may be nil
	presence PresenceStore

	logger *zap.Logger

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(presence PresenceStore, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		presence:   presence,
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			conns, ok := h.clients[client.userID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.userID] = conns
			}
			conns[client] = struct{}{}
			first := len(conns) == 1
			h.mu.Unlock()

			if first {
				h.setPresence(ctx, client.userID, "online")
			}
			h.logger.Debug("client registered", zap.String("user_id", client.userID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			last := false
			if conns, ok := h.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
				}
				if len(conns) == 0 {
					delete(h.clients, client.userID)
					last = true
				}
			}
			h.mu.Unlock()

			if last {
				h.setPresence(ctx, client.userID, "offline")
			}
			h.logger.Debug("client unregistered", zap.String("user_id", client.userID.String()))

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, conns := range h.clients {
				for client := range conns {
					select {
					case client.send <- message:
					default:
						// slow client, drop the frame
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// add hands c to Run. It reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove hands c to Run, or returns at once if the hub has stopped.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) setPresence(ctx context.Context, userID uuid.UUID, status string) {
	if h.presence != nil {
		var err error
		if status == "online" {
			err = h.presence.SetUserOnline(ctx, userID)
		} else {
			err = h.presence.SetUserOffline(ctx, userID)
		}
		if err != nil {
			h.logger.Warn("failed to store presence", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	data, err := json.Marshal(models.WSMessage{
		Event: models.EventPresenceUpdate,
		Payload: models.UserPresence{
			UserID:   userID,
			Status:   status,
			LastSeen: time.Now(),
		},
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for client := range conns {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}

// AttachNotifications forwards every bus notification to the connections of
// its user. The returned function detaches the hub.
func (h *Hub) AttachNotifications(bus *notify.Bus) func() {
	return bus.Subscribe(func(n notify.Notification) {
		if err := h.SendToUser(n.UserID, models.WSMessage{Event: models.EventNotification, Payload: n}); err != nil {
			h.logger.Warn("failed to forward notification", zap.Error(err))
		}
	})
}

// SendToUser sends a message to every connection of a user
func (h *Hub) SendToUser(userID uuid.UUID, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, skip
		}
	}

	return nil
}

// GetOnlineUsers returns the list of online user IDs
func (h *Hub) GetOnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]uuid.UUID, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}

	return userIDs
}

// IsUserOnline checks if a user is online
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID]) > 0
}
