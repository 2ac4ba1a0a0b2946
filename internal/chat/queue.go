package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/resilience"
	"go.uber.org/zap"
)

// SendFunc matches Service.Send.
type SendFunc func(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, error)

// PendingMessage is a send parked in the OutboundQueue.
type PendingMessage struct {
	ID          uuid.UUID
	ChatID      uuid.UUID
	SenderID    uuid.UUID
	Content     string
	Attempts    int
	NextAttempt time.Time
	LastErr     error
}

// OutboundQueue holds sends that failed with a retryable error and retries
// them with exponential backoff. Delivery is best effort: an entry is
// dropped after MaxRetries failed retries or on a non-retryable error.
type OutboundQueue struct {
	send   SendFunc
	opts   resilience.Options
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	items []*PendingMessage

	OnSent    func(PendingMessage, *models.Message)
	OnDropped func(PendingMessage, error)
}

func NewOutboundQueue(send SendFunc, opts resilience.Options, logger *zap.Logger) *OutboundQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboundQueue{send: send, opts: opts, now: time.Now, logger: logger}
}

// Enqueue parks a message for later delivery. Invalid content is rejected
// immediately since retrying cannot fix it.
func (q *OutboundQueue) Enqueue(chatID, senderID uuid.UUID, content string) (PendingMessage, error) {
	content, err := models.NormalizeContent(content)
	if err != nil {
		return PendingMessage{}, err
	}

	p := &PendingMessage{
		ID:          uuid.New(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		NextAttempt: q.now(),
	}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	return *p, nil
}

// Len returns the number of parked messages.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush attempts every due entry once, in enqueue order, and returns how
// many were delivered.
func (q *OutboundQueue) Flush(ctx context.Context) int {
	now := q.now()

	q.mu.Lock()
	due := make([]*PendingMessage, 0, len(q.items))
	for _, p := range q.items {
		if !p.NextAttempt.After(now) {
			due = append(due, p)
		}
	}
	q.mu.Unlock()

	sent := 0
	for _, p := range due {
		if ctx.Err() != nil {
			break
		}

		msg, err := q.send(ctx, p.ChatID, p.SenderID, p.Content)
		if err == nil {
			q.remove(p)
			sent++
			if q.OnSent != nil {
				q.OnSent(*p, msg)
			}
			continue
		}

		q.mu.Lock()
		p.LastErr = err
		p.Attempts++
		classified := resilience.Classify(err)
		drop := !classified.Retryable || p.Attempts > q.maxRetries()
		if !drop {
			p.NextAttempt = q.now().Add(q.opts.Delay(p.Attempts - 1))
		}
		snapshot := *p
		q.mu.Unlock()

		if drop {
			q.remove(p)
			q.logger.Warn("dropping queued message",
				zap.String("chat_id", p.ChatID.String()),
				zap.Int("attempts", snapshot.Attempts),
				zap.Error(err),
			)
			if q.OnDropped != nil {
				q.OnDropped(snapshot, err)
			}
		}
	}
	return sent
}

// Run flushes the queue every interval until ctx is cancelled.
func (q *OutboundQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}

func (q *OutboundQueue) maxRetries() int {
	if q.opts.MaxRetries <= 0 {
		return resilience.DefaultMaxRetries
	}
	return q.opts.MaxRetries
}

func (q *OutboundQueue) remove(target *PendingMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.items {
		if p == target {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
