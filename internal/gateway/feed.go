// Package gateway carries row-change events from writers to the live views
// that follow them. Delivery is at-least-once and unordered: subscribers must
// tolerate duplicates and late arrivals.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Tables with change events.
const (
	TableMessages = "messages"
	TableTyping   = "typing"
	TableBeds     = "beds"
	TableRooms    = "rooms"
)

// ChangeEvent describes one row change. Record is the row as JSON.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	Record     json.RawMessage `json:"record"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewChangeEvent marshals record into a ChangeEvent.
func NewChangeEvent(table string, typ EventType, record any) (ChangeEvent, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("gateway: marshal %s record: %w", table, err)
	}
	return ChangeEvent{Table: table, Type: typ, Record: data, OccurredAt: time.Now()}, nil
}

// Decode unmarshals the event record into v.
func (e ChangeEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Record, v); err != nil {
		return fmt.Errorf("gateway: decode %s record: %w", e.Table, err)
	}
	return nil
}

// TableFilter selects events by table, optionally by event type and by one
// column equality, e.g. {Table: "messages", Column: "chat_id", Value: id}.
type TableFilter struct {
	Table  string
	Events []EventType
	Column string
	Value  string
}

// ChatFilter matches events on table whose chat_id is chatID.
func ChatFilter(table string, chatID uuid.UUID, events ...EventType) TableFilter {
	return TableFilter{Table: table, Events: events, Column: "chat_id", Value: chatID.String()}
}

// Matches reports whether evt passes the filter.
func (f TableFilter) Matches(evt ChangeEvent) bool {
	if f.Table != "" && f.Table != evt.Table {
		return false
	}
	if len(f.Events) > 0 {
		found := false
		for _, t := range f.Events {
			if t == evt.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Column == "" {
		return true
	}

	var row map[string]any
	if err := json.Unmarshal(evt.Record, &row); err != nil {
		return false
	}
	v, ok := row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Handler receives matching events. It runs on the delivering goroutine and
// must not block for long.
type Handler func(ChangeEvent)

// Feed publishes change events and fans them out to subscribers.
type Feed interface {
	Publish(ctx context.Context, evt ChangeEvent) error
	// Subscribe registers onEvent under channelKey. Registering the same key
	// again replaces the earlier handler. The returned function unsubscribes
	// and is safe to call more than once.
	Subscribe(channelKey string, filter TableFilter, onEvent Handler) (unsubscribe func(), err error)
}

type subscription struct {
	id      uint64
	filter  TableFilter
	handler Handler
}

// registry is the local fan-out shared by every Feed implementation.
type registry struct {
	mu     sync.RWMutex
	subs   map[string]subscription
	nextID uint64
	logger *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registry{subs: make(map[string]subscription), logger: logger}
}

func (r *registry) add(key string, filter TableFilter, h Handler) (func(), error) {
	if key == "" {
		return nil, fmt.Errorf("gateway: channel key is required")
	}
	if h == nil {
		return nil, fmt.Errorf("gateway: handler is required")
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[key] = subscription{id: id, filter: filter, handler: h}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			// only remove our own registration, not a later replacement
			if cur, ok := r.subs[key]; ok && cur.id == id {
				delete(r.subs, key)
			}
			r.mu.Unlock()
		})
	}, nil
}

func (r *registry) dispatch(evt ChangeEvent) {
	r.mu.RLock()
	matched := make([]Handler, 0, len(r.subs))
	for _, s := range r.subs {
		if s.filter.Matches(evt) {
			matched = append(matched, s.handler)
		}
	}
	r.mu.RUnlock()

	for _, h := range matched {
		r.safeCall(h, evt)
	}
}

func (r *registry) safeCall(h Handler, evt ChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("change handler panicked",
				zap.String("table", evt.Table),
				zap.Any("panic", rec),
			)
		}
	}()
	h(evt)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
