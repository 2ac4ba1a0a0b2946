package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/resilience"
)

var epoch = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type chatKey struct {
	property uuid.UUID
	tenant   uuid.UUID
}

type fakeConversations struct {
	mu     sync.Mutex
	chats  map[uuid.UUID]*models.Conversation
	byKey  map[chatKey]uuid.UUID
	agents map[uuid.UUID]uuid.UUID

	listErrs   []error
	listCalls  int
	storeCalls int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		chats:  make(map[uuid.UUID]*models.Conversation),
		byKey:  make(map[chatKey]uuid.UUID),
		agents: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeConversations) addProperty(agentID uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.agents[id] = agentID
	return id
}

func (f *fakeConversations) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.storeCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := []models.Conversation{}
	for _, c := range f.chats {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeConversations) GetOrCreate(_ context.Context, propertyID, tenantID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	key := chatKey{propertyID, tenantID}
	if id, ok := f.byKey[key]; ok {
		return id, nil
	}
	agentID, ok := f.agents[propertyID]
	if !ok {
		return uuid.Nil, &apperr.NotFoundError{Resource: "property"}
	}
	id := uuid.New()
	at := epoch.Add(time.Duration(len(f.chats)) * time.Minute)
	f.chats[id] = &models.Conversation{
		ID:         id,
		PropertyID: propertyID,
		TenantID:   tenantID,
		AgentID:    agentID,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	f.byKey[key] = id
	return id, nil
}

func (f *fakeConversations) PropertyAgent(_ context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	agentID, ok := f.agents[propertyID]
	if !ok {
		return uuid.Nil, &apperr.NotFoundError{Resource: "property"}
	}
	return agentID, nil
}

func (f *fakeConversations) IsParticipant(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	c, ok := f.chats[chatID]
	return ok && c.HasParticipant(userID), nil
}

func (f *fakeConversations) touch(chatID uuid.UUID, at time.Time, msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chats[chatID]; ok {
		c.UpdatedAt = at
		c.LastMessage = &models.LastMessage{Content: msg.Content, CreatedAt: at, SenderID: msg.SenderID}
	}
}

type fakeMessages struct {
	mu          sync.Mutex
	convs       *fakeConversations
	byChat      map[uuid.UUID][]models.Message
	createErr   error
	createCalls int
	seq         int
	onList      func()
}

func newFakeMessages(convs *fakeConversations) *fakeMessages {
	return &fakeMessages{convs: convs, byChat: make(map[uuid.UUID][]models.Message)}
}

func (f *fakeMessages) Create(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	f.createCalls++
	if f.createErr != nil {
		f.mu.Unlock()
		return f.createErr
	}
	f.seq++
	m.CreatedAt = epoch.Add(time.Hour + time.Duration(f.seq)*time.Second)
	m.UpdatedAt = m.CreatedAt
	f.byChat[m.ChatID] = append(f.byChat[m.ChatID], *m)
	f.mu.Unlock()

	f.convs.touch(m.ChatID, m.CreatedAt, m)
	return nil
}

func (f *fakeMessages) ListByChat(_ context.Context, chatID uuid.UUID) ([]models.Message, error) {
	f.mu.Lock()
	onList := f.onList
	f.mu.Unlock()
	if onList != nil {
		onList()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Message(nil), f.byChat[chatID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out, nil
}

func (f *fakeMessages) MarkChatRead(_ context.Context, chatID, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.byChat[chatID] {
		if m.SenderID != userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) seed(chatID, senderID uuid.UUID, content string, at time.Time) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	f.byChat[chatID] = append(f.byChat[chatID], m)
	return m
}

func noWaitRetry() resilience.Options {
	return resilience.Options{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Multiplier: 2,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

type harness struct {
	svc      *Service
	convs    *fakeConversations
	messages *fakeMessages
	feed     *gateway.MemoryFeed
	bus      *notify.Bus

	tenant   uuid.UUID
	agent    uuid.UUID
	property uuid.UUID
}

func newHarness() *harness {
	convs := newFakeConversations()
	messages := newFakeMessages(convs)
	feed := gateway.NewMemoryFeed(nil)
	bus := notify.NewBus()

	h := &harness{
		svc:      NewService(convs, messages, feed, noWaitRetry(), bus, nil),
		convs:    convs,
		messages: messages,
		feed:     feed,
		bus:      bus,
		tenant:   uuid.New(),
		agent:    uuid.New(),
	}
	h.property = convs.addProperty(h.agent)
	return h
}

func (h *harness) chat() uuid.UUID {
	id, err := h.convs.GetOrCreate(context.Background(), h.property, h.tenant)
	if err != nil {
		panic(err)
	}
	return id
}

func (h *harness) publishMessage(m models.Message) {
	evt, err := gateway.NewChangeEvent(gateway.TableMessages, gateway.EventInsert, m)
	if err != nil {
		panic(err)
	}
	if err := h.feed.Publish(context.Background(), evt); err != nil {
		panic(err)
	}
}
