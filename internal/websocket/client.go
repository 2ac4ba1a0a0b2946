package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/chat"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10240 // 10KB

	// How often parked sends are retried
	queueInterval = time.Second
)

// ActionLimiter is a limiter shared across server instances.
// *cache.RedisClient implements it.
type ActionLimiter interface {
	AllowAction(ctx context.Context, userID uuid.UUID, action string, rate int, burst int) (bool, error)
}

// Options tune every client a Handler creates.
type Options struct {
	// Inbound frames per second per connection
	MessagesPerSec int

	// Optional cross-instance limit applied to message.send
	Limiter ActionLimiter

	// Park sends that fail with a retryable error and retry them later
	OfflineQueue bool
	Retry        resilience.Options
}

// Client is one WebSocket connection. It owns a conversation directory and
// one message stream per chat the peer has opened.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      uuid.UUID
	email       string
	connectedAt time.Time

	chat      *chat.Service
	directory *chat.Directory
	queue     *chat.OutboundQueue

	mu      sync.Mutex
	streams map[uuid.UUID]*chat.Stream

	limiter *rate.Limiter
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewClient creates a new WebSocket client
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	userID uuid.UUID,
	email string,
	svc *chat.Service,
	opts Options,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	perSec := opts.MessagesPerSec
	if perSec <= 0 {
		perSec = 20
	}
	opts.MessagesPerSec = perSec

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		userID:      userID,
		email:       email,
		connectedAt: time.Now(),
		chat:        svc,
		streams:     make(map[uuid.UUID]*chat.Stream),
		limiter:     rate.NewLimiter(rate.Limit(perSec), perSec),
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With(zap.String("user_id", userID.String())),
	}

	if opts.OfflineQueue {
		c.queue = chat.NewOutboundQueue(svc.Send, opts.Retry, c.logger)
		c.queue.OnSent = func(_ chat.PendingMessage, msg *models.Message) {
			c.emit(models.EventMessageNew, msg)
		}
		c.queue.OnDropped = func(p chat.PendingMessage, err error) {
			chatID := p.ChatID
			c.sendError(err, &chatID)
		}
	}
	return c
}

// Start loads the conversation list and keeps the peer informed of changes.
func (c *Client) Start() {
	c.directory = c.chat.NewDirectory(c.userID)
	c.directory.OnChange(func(list []models.Conversation) {
		c.emit(models.EventConversations, list)
	})

	go func() {
		if err := c.directory.Start(c.ctx); err != nil {
			c.sendError(err, nil)
		}
	}()

	if c.queue != nil {
		go c.queue.Run(c.ctx, queueInterval)
	}
}

// close stops the directory, every open stream and the retry queue.
func (c *Client) close() {
	c.cancel()
	if c.directory != nil {
		c.directory.Close()
	}

	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[uuid.UUID]*chat.Stream)
	c.mu.Unlock()

	for _, st := range streams {
		st.Close()
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.close()
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendErrorMessage("too many messages, slow down", "rate_limited", nil)
			continue
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(data []byte) {
	var wsMsg struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendErrorMessage("Invalid message format", "bad_request", nil)
		return
	}

	switch wsMsg.Event {
	case models.EventChatOpen:
		c.handleChatOpen(wsMsg.Payload)

	case models.EventChatClose:
		c.handleChatClose(wsMsg.Payload)

	case models.EventMessageSend:
		c.handleMessageSend(wsMsg.Payload)

	case models.EventMessageRead:
		c.handleMessageRead(wsMsg.Payload)

	case models.EventTypingStart:
		c.handleTyping(wsMsg.Payload, true)

	case models.EventTypingStop:
		c.handleTyping(wsMsg.Payload, false)

	default:
		c.sendErrorMessage("Unknown event type", "bad_request", nil)
	}
}

func (c *Client) decodeChat(payload json.RawMessage) (uuid.UUID, bool) {
	var req models.WSChatPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ChatID == uuid.Nil {
		c.sendErrorMessage("Invalid chat payload", "bad_request", nil)
		return uuid.Nil, false
	}
	return req.ChatID, true
}

// handleChatOpen starts a stream for the chat and replies with its snapshot.
// Opening an already open chat only repeats the snapshot.
func (c *Client) handleChatOpen(payload json.RawMessage) {
	chatID, ok := c.decodeChat(payload)
	if !ok {
		return
	}

	c.mu.Lock()
	st, open := c.streams[chatID]
	c.mu.Unlock()

	if !open {
		st = c.chat.NewStream(chatID, c.userID)
		st.OnMessage(func(m models.Message) { c.emit(models.EventMessageNew, m) })
		st.OnTyping(func(t models.TypingIndicator) { c.emit(models.EventTypingUpdate, t) })
		st.OnRead(func(r models.ReadReceipt) { c.emit(models.EventReadReceipt, r) })

		if err := st.Start(c.ctx); err != nil {
			st.Close()
			c.sendError(err, &chatID)
			return
		}

		c.mu.Lock()
		if existing, raced := c.streams[chatID]; raced {
			c.mu.Unlock()
			st.Close()
			st = existing
		} else {
			c.streams[chatID] = st
			c.mu.Unlock()
		}
	}

	c.emit(models.EventMessagesSnapshot, models.WSMessagesSnapshot{
		ChatID:   chatID,
		Messages: st.Messages(),
		Typing:   st.Typing(),
	})
}

func (c *Client) handleChatClose(payload json.RawMessage) {
	chatID, ok := c.decodeChat(payload)
	if !ok {
		return
	}

	c.mu.Lock()
	st := c.streams[chatID]
	delete(c.streams, chatID)
	c.mu.Unlock()

	if st != nil {
		st.Close()
	}
}

// handleMessageSend posts through the open stream when there is one, so the
// echo is merged there; otherwise it goes straight to the service.
func (c *Client) handleMessageSend(payload json.RawMessage) {
	var req models.WSMessageSendPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ChatID == uuid.Nil {
		c.sendErrorMessage("Invalid message payload", "bad_request", nil)
		return
	}
	chatID := req.ChatID

	if c.opts.Limiter != nil {
		allowed, err := c.opts.Limiter.AllowAction(c.ctx, c.userID, "message.send", c.opts.MessagesPerSec, c.opts.MessagesPerSec)
		if err != nil {
			c.logger.Warn("shared rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			c.sendErrorMessage("too many messages, slow down", "rate_limited", &chatID)
			return
		}
	}

	c.mu.Lock()
	st := c.streams[chatID]
	c.mu.Unlock()

	var msg *models.Message
	var err error
	if st != nil {
		_, err = st.Send(c.ctx, req.Content)
	} else {
		msg, err = c.chat.Send(c.ctx, chatID, c.userID, req.Content)
	}

	if err != nil {
		if c.queue != nil && resilience.Classify(err).Retryable {
			if _, qerr := c.queue.Enqueue(chatID, c.userID, req.Content); qerr == nil {
				c.logger.Info("message parked for retry", zap.String("chat_id", chatID.String()))
				return
			}
		}
		c.sendError(err, &chatID)
		return
	}

	// the stream's OnMessage already delivered it
	if msg != nil {
		c.emit(models.EventMessageNew, msg)
	}
}

func (c *Client) handleMessageRead(payload json.RawMessage) {
	chatID, ok := c.decodeChat(payload)
	if !ok {
		return
	}
	if _, err := c.chat.MarkRead(c.ctx, chatID, c.userID); err != nil {
		c.sendError(err, &chatID)
	}
}

func (c *Client) handleTyping(payload json.RawMessage, typing bool) {
	chatID, ok := c.decodeChat(payload)
	if !ok {
		return
	}
	if err := c.chat.SetTyping(c.ctx, chatID, c.userID, typing); err != nil {
		c.logger.Debug("typing update failed", zap.String("chat_id", chatID.String()), zap.Error(err))
	}
}

// emit queues an event for the peer. Frames are dropped when the peer is
// too slow to drain its buffer.
func (c *Client) emit(event string, payload interface{}) {
	data, err := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	if err != nil {
		c.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	defer func() {
		// send was closed by the hub
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

// sendError reports err to the peer in user-facing terms. Classifying first
// lets storage outages read as connection problems.
func (c *Client) sendError(err error, chatID *uuid.UUID) {
	c.sendErrorMessage(apperr.UserMessage(resilience.Classify(err)), errorCode(err), chatID)
}

// sendErrorMessage sends an error message to the client
func (c *Client) sendErrorMessage(message, code string, chatID *uuid.UUID) {
	c.emit(models.EventError, models.WSErrorPayload{
		Message: message,
		Code:    code,
		ChatID:  chatID,
	})
}

func errorCode(err error) string {
	var (
		authErr     *apperr.AuthenticationError
		permErr     *apperr.PermissionError
		notFoundErr *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return "unauthenticated"
	case errors.As(err, &permErr):
		return "forbidden"
	case apperr.IsValidation(err):
		return "invalid"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case resilience.Classify(err).Retryable:
		return "unavailable"
	default:
		return "internal"
	}
}
