package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"go.uber.org/zap"
)

// Stream is the live, ordered message list of one chat as seen by one user.
// Messages are merged by id, so duplicate and out-of-order deliveries from
// the feed are absorbed.
type Stream struct {
	svc    *Service
	chatID uuid.UUID
	userID uuid.UUID
	key    string
	logger *zap.Logger

	mu       sync.RWMutex
	state    State
	err      error
	sending  int
	messages []models.Message
	seen     map[uuid.UUID]struct{}
	typing   map[uuid.UUID]struct{}
	closed   bool

	onMessage func(models.Message)
	onTyping  func(models.TypingIndicator)
	onRead    func(models.ReadReceipt)

	unsubscribes []func()
}

func (s *Service) NewStream(chatID, userID uuid.UUID) *Stream {
	return &Stream{
		svc:    s,
		chatID: chatID,
		userID: userID,
		key:    "stream:" + uuid.NewString(),
		logger: s.logger.With(zap.String("chat_id", chatID.String()), zap.String("user_id", userID.String())),
		state:  StateLoading,
		seen:   make(map[uuid.UUID]struct{}),
		typing: make(map[uuid.UUID]struct{}),
	}
}

func (st *Stream) ChatID() uuid.UUID { return st.chatID }

// Start subscribes before fetching history so nothing inserted in between
// is missed; the merge drops whatever arrives twice.
func (st *Stream) Start(ctx context.Context) error {
	subs := []struct {
		suffix string
		filter gateway.TableFilter
		fn     gateway.Handler
	}{
		{":insert", gateway.ChatFilter(gateway.TableMessages, st.chatID, gateway.EventInsert), st.handleInsert},
		{":read", gateway.ChatFilter(gateway.TableMessages, st.chatID, gateway.EventUpdate), st.handleRead},
		{":typing", gateway.ChatFilter(gateway.TableTyping, st.chatID), st.handleTyping},
	}
	for _, sub := range subs {
		unsubscribe, err := st.svc.feed.Subscribe(st.key+sub.suffix, sub.filter, sub.fn)
		if err != nil {
			st.setFailed(err)
			return err
		}
		st.mu.Lock()
		st.unsubscribes = append(st.unsubscribes, unsubscribe)
		st.mu.Unlock()
	}

	history, err := st.svc.Messages(ctx, st.chatID, st.userID)
	if err != nil {
		st.setFailed(err)
		return err
	}

	typing, err := st.svc.TypingUsers(ctx, st.chatID)
	if err != nil {
		st.logger.Debug("typing users unavailable", zap.Error(err))
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	for _, msg := range history {
		st.mergeLocked(msg)
	}
	for _, id := range typing {
		if id != st.userID {
			st.typing[id] = struct{}{}
		}
	}
	st.state = StateReady
	st.err = nil
	return nil
}

// Send posts content as the stream owner. Validation failures return before
// any store call. On failure the error is kept in Err until the next success
// or DismissError; nothing is retried.
func (st *Stream) Send(ctx context.Context, content string) (*models.Message, error) {
	st.mu.Lock()
	st.sending++
	st.mu.Unlock()

	msg, err := st.svc.Send(ctx, st.chatID, st.userID, content)

	st.mu.Lock()
	st.sending--
	if err != nil {
		st.err = err
		st.mu.Unlock()
		return nil, err
	}
	st.err = nil
	added := !st.closed && st.mergeLocked(*msg)
	onMessage := st.onMessage
	st.mu.Unlock()

	if added && onMessage != nil {
		onMessage(*msg)
	}
	return msg, nil
}

// Sending reports whether a send is in flight.
func (st *Stream) Sending() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sending > 0
}

func (st *Stream) State() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}

func (st *Stream) Err() error {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.err
}

func (st *Stream) DismissError() {
	st.mu.Lock()
	st.err = nil
	st.mu.Unlock()
}

// Messages returns a copy of the messages, oldest first.
func (st *Stream) Messages() []models.Message {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]models.Message, len(st.messages))
	copy(out, st.messages)
	return out
}

// Typing returns the other participants currently typing.
func (st *Stream) Typing() []uuid.UUID {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(st.typing))
	for id := range st.typing {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (st *Stream) SetTyping(ctx context.Context, typing bool) error {
	return st.svc.SetTyping(ctx, st.chatID, st.userID, typing)
}

// MarkRead marks every received message in the chat as read.
func (st *Stream) MarkRead(ctx context.Context) (int64, error) {
	return st.svc.MarkRead(ctx, st.chatID, st.userID)
}

func (st *Stream) OnMessage(fn func(models.Message)) {
	st.mu.Lock()
	st.onMessage = fn
	st.mu.Unlock()
}

func (st *Stream) OnTyping(fn func(models.TypingIndicator)) {
	st.mu.Lock()
	st.onTyping = fn
	st.mu.Unlock()
}

func (st *Stream) OnRead(fn func(models.ReadReceipt)) {
	st.mu.Lock()
	st.onRead = fn
	st.mu.Unlock()
}

// Close releases every subscription. Safe to call more than once.
func (st *Stream) Close() {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	st.closed = true
	unsubscribes := st.unsubscribes
	st.unsubscribes = nil
	st.onMessage, st.onTyping, st.onRead = nil, nil, nil
	st.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}

func (st *Stream) handleInsert(evt gateway.ChangeEvent) {
	var msg models.Message
	if err := evt.Decode(&msg); err != nil || msg.ID == uuid.Nil {
		st.logger.Warn("ignoring malformed message event", zap.Error(err))
		return
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	added := st.mergeLocked(msg)
	// a message from someone means they stopped typing
	delete(st.typing, msg.SenderID)
	onMessage := st.onMessage
	st.mu.Unlock()

	if added && onMessage != nil {
		onMessage(msg)
	}
}

func (st *Stream) handleTyping(evt gateway.ChangeEvent) {
	var ind models.TypingIndicator
	if err := evt.Decode(&ind); err != nil {
		return
	}
	if ind.UserID == st.userID {
		return
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	if ind.IsTyping {
		st.typing[ind.UserID] = struct{}{}
	} else {
		delete(st.typing, ind.UserID)
	}
	onTyping := st.onTyping
	st.mu.Unlock()

	if onTyping != nil {
		onTyping(ind)
	}
}

func (st *Stream) handleRead(evt gateway.ChangeEvent) {
	var receipt models.ReadReceipt
	if err := evt.Decode(&receipt); err != nil || receipt.ReaderID == uuid.Nil {
		return
	}

	st.mu.RLock()
	closed, onRead := st.closed, st.onRead
	st.mu.RUnlock()

	if !closed && onRead != nil {
		onRead(receipt)
	}
}

// mergeLocked inserts msg at its ordered position unless its id was already
// seen. Callers hold st.mu.
func (st *Stream) mergeLocked(msg models.Message) bool {
	if _, ok := st.seen[msg.ID]; ok {
		return false
	}
	st.seen[msg.ID] = struct{}{}

	i := sort.Search(len(st.messages), func(i int) bool {
		return msg.Before(&st.messages[i])
	})
	st.messages = append(st.messages, models.Message{})
	copy(st.messages[i+1:], st.messages[i:])
	st.messages[i] = msg
	return true
}

func (st *Stream) setFailed(err error) {
	st.mu.Lock()
	st.err = err
	if st.state == StateLoading {
		st.state = StateErrored
	}
	st.mu.Unlock()
}
