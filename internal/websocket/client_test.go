package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/auth"
	"github.com/padhub/backend/internal/chat"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleChat is a store holding exactly one chat between a tenant and an agent.
type singleChat struct {
	mu        sync.Mutex
	conv      models.Conversation
	messages  []models.Message
	createErr error
}

func newSingleChat() *singleChat {
	return &singleChat{conv: models.Conversation{
		ID:         uuid.New(),
		PropertyID: uuid.New(),
		TenantID:   uuid.New(),
		AgentID:    uuid.New(),
	}}
}

func (s *singleChat) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conv.HasParticipant(userID) {
		return []models.Conversation{}, nil
	}
	return []models.Conversation{s.conv}, nil
}

func (s *singleChat) GetOrCreate(context.Context, uuid.UUID, uuid.UUID) (uuid.UUID, error) {
	return s.conv.ID, nil
}

func (s *singleChat) PropertyAgent(context.Context, uuid.UUID) (uuid.UUID, error) {
	return s.conv.AgentID, nil
}

func (s *singleChat) IsParticipant(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	return chatID == s.conv.ID && s.conv.HasParticipant(userID), nil
}

func (s *singleChat) Create(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.messages = append(s.messages, *m)
	return nil
}

func (s *singleChat) ListByChat(context.Context, uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...), nil
}

func (s *singleChat) MarkChatRead(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	return 0, nil
}

type event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newTestClient(t *testing.T, store *singleChat, userID uuid.UUID, opts Options) *Client {
	t.Helper()
	retry := resilience.Options{
		MaxRetries: 1,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
	opts.Retry = retry
	svc := chat.NewService(store, store, gateway.NewMemoryFeed(nil), retry, notify.NewBus(), nil)
	c := NewClient(NewHub(nil, nil), nil, userID, "", svc, opts, nil)
	t.Cleanup(c.close)
	return c
}

func nextEvent(t *testing.T, c *Client) event {
	t.Helper()
	select {
	case b := <-c.send:
		var e event
		require.NoError(t, json.Unmarshal(b, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no event sent to the client")
		return event{}
	}
}

func frame(t *testing.T, name string, payload any) []byte {
	t.Helper()
	b, err := json.Marshal(models.WSMessage{Event: name, Payload: payload})
	require.NoError(t, err)
	return b
}

func TestClient_RejectsMalformedFrames(t *testing.T) {
	store := newSingleChat()
	c := newTestClient(t, store, store.conv.TenantID, Options{})

	c.handleMessage([]byte("{not json"))
	e := nextEvent(t, c)
	assert.Equal(t, models.EventError, e.Event)

	c.handleMessage(frame(t, "nope", nil))
	e = nextEvent(t, c)
	assert.Equal(t, models.EventError, e.Event)
	assert.Contains(t, string(e.Payload), "bad_request")

	c.handleMessage(frame(t, models.EventChatOpen, map[string]string{}))
	e = nextEvent(t, c)
	assert.Contains(t, string(e.Payload), "Invalid chat payload")
}

func TestClient_OpenSendsSnapshotThenLiveMessages(t *testing.T) {
	store := newSingleChat()
	chatID := store.conv.ID
	c := newTestClient(t, store, store.conv.TenantID, Options{})

	c.handleMessage(frame(t, models.EventChatOpen, models.WSChatPayload{ChatID: chatID}))
	e := nextEvent(t, c)
	require.Equal(t, models.EventMessagesSnapshot, e.Event)

	var snap models.WSMessagesSnapshot
	require.NoError(t, json.Unmarshal(e.Payload, &snap))
	assert.Equal(t, chatID, snap.ChatID)
	assert.Empty(t, snap.Messages)

	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: chatID, Content: "  is the room free?  "}))
	e = nextEvent(t, c)
	require.Equal(t, models.EventMessageNew, e.Event)

	var msg models.Message
	require.NoError(t, json.Unmarshal(e.Payload, &msg))
	assert.Equal(t, "is the room free?", msg.Content)

	// the echo from the feed is merged, not delivered twice
	select {
	case extra := <-c.send:
		t.Fatalf("unexpected extra frame: %s", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClient_OpenForeignChatIsForbidden(t *testing.T) {
	store := newSingleChat()
	c := newTestClient(t, store, uuid.New(), Options{})

	c.handleMessage(frame(t, models.EventChatOpen, models.WSChatPayload{ChatID: store.conv.ID}))
	e := nextEvent(t, c)
	require.Equal(t, models.EventError, e.Event)

	var payload models.WSErrorPayload
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "forbidden", payload.Code)
	require.NotNil(t, payload.ChatID)
	assert.Equal(t, store.conv.ID, *payload.ChatID)
	assert.Empty(t, c.streams)
}

func TestClient_SendWithoutOpenStream(t *testing.T) {
	store := newSingleChat()
	c := newTestClient(t, store, store.conv.AgentID, Options{})

	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: store.conv.ID, Content: "yes"}))
	e := nextEvent(t, c)
	assert.Equal(t, models.EventMessageNew, e.Event)
	assert.Len(t, store.messages, 1)
}

func TestClient_TooLongMessageIsInvalid(t *testing.T) {
	store := newSingleChat()
	c := newTestClient(t, store, store.conv.TenantID, Options{})

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: store.conv.ID, Content: string(long)}))

	var payload models.WSErrorPayload
	e := nextEvent(t, c)
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "invalid", payload.Code)
	assert.Empty(t, store.messages)
}

func TestClient_OfflineQueueParksRetryableFailures(t *testing.T) {
	store := newSingleChat()
	store.createErr = &apperr.DataError{Code: "08006", Message: "connection lost"}
	c := newTestClient(t, store, store.conv.TenantID, Options{OfflineQueue: true})

	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: store.conv.ID, Content: "hello"}))
	assert.Equal(t, 1, c.queue.Len())
	assert.Zero(t, len(c.send))

	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()

	assert.Equal(t, 1, c.queue.Flush(context.Background()))
	e := nextEvent(t, c)
	assert.Equal(t, models.EventMessageNew, e.Event)
}

func TestClient_RetryableFailureWithoutQueueIsReported(t *testing.T) {
	store := newSingleChat()
	store.createErr = &apperr.DataError{Code: "08006", Message: "connection lost"}
	c := newTestClient(t, store, store.conv.TenantID, Options{})

	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: store.conv.ID, Content: "hello"}))

	var payload models.WSErrorPayload
	e := nextEvent(t, c)
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "unavailable", payload.Code)
	assert.Equal(t, apperr.MessageNetwork, payload.Message)
}

type denyAll struct{}

func (denyAll) AllowAction(context.Context, uuid.UUID, string, int, int) (bool, error) {
	return false, nil
}

func TestClient_SharedLimiterRejectsSend(t *testing.T) {
	store := newSingleChat()
	c := newTestClient(t, store, store.conv.TenantID, Options{Limiter: denyAll{}})

	c.handleMessage(frame(t, models.EventMessageSend, models.WSMessageSendPayload{ChatID: store.conv.ID, Content: "hello"}))

	var payload models.WSErrorPayload
	e := nextEvent(t, c)
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "rate_limited", payload.Code)
	assert.Empty(t, store.messages)
}

func TestClient_CloseChatStopsStream(t *testing.T) {
	store := newSingleChat()
	chatID := store.conv.ID
	c := newTestClient(t, store, store.conv.TenantID, Options{})

	c.handleMessage(frame(t, models.EventChatOpen, models.WSChatPayload{ChatID: chatID}))
	nextEvent(t, c)
	require.Len(t, c.streams, 1)

	c.handleMessage(frame(t, models.EventChatClose, models.WSChatPayload{ChatID: chatID}))
	assert.Empty(t, c.streams)
}

func TestHandleWebSocket_RequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtService := auth.NewJWTService("secret", 1)
	h := NewHandler(NewHub(nil, nil), jwtService, nil, Options{}, nil, nil)

	for _, url := range []string{"/ws", "/ws?token=garbage"} {
		w := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(w)
		ctx.Request = httptest.NewRequest(http.MethodGet, url, nil)

		h.HandleWebSocket(ctx)
		assert.Equal(t, http.StatusUnauthorized, w.Code, url)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(NewHub(nil, nil), nil, nil, Options{}, []string{"*.padhub.app"}, nil)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://www.padhub.app")
	assert.True(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://padhub.evil")
	assert.False(t, h.checkOrigin(r))
}
