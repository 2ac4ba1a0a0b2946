package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"go.uber.org/zap"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// Directory is the live conversation list of one signed-in user. Any change
// on the messages table triggers a full reload.
type Directory struct {
	svc    *Service
	userID uuid.UUID
	key    string
	logger *zap.Logger

	mu            sync.RWMutex
	state         State
	err           error
	conversations []models.Conversation
	onChange      func([]models.Conversation)
	closed        bool

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	reloadMu sync.Mutex
	pending  bool
	running  bool
}

func (s *Service) NewDirectory(userID uuid.UUID) *Directory {
	return &Directory{
		svc:    s,
		userID: userID,
		key:    "directory:" + uuid.NewString(),
		logger: s.logger.With(zap.String("user_id", userID.String())),
		state:  StateLoading,
	}
}

// Start subscribes to message changes and performs the initial load. The
// directory stays alive until Close or until ctx is cancelled.
func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	unsubscribe, err := d.svc.feed.Subscribe(d.key, gateway.TableFilter{Table: gateway.TableMessages}, d.handleChange)
	if err != nil {
		d.fail(err)
		return err
	}
	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()

	return d.reload(d.ctx)
}

// List returns a copy of the conversations, most recently active first.
func (d *Directory) List() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

func (d *Directory) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Err returns the last load failure, if any.
func (d *Directory) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// OnChange registers fn to receive the list after every successful load.
func (d *Directory) OnChange(fn func([]models.Conversation)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// CreateOrGetChat returns the chat for propertyID and tenantID on behalf of
// the directory owner, defaulting the tenant to the owner, and refreshes the
// list.
func (d *Directory) CreateOrGetChat(ctx context.Context, propertyID uuid.UUID, tenantID *uuid.UUID) (uuid.UUID, error) {
	tenant := d.userID
	if tenantID != nil {
		tenant = *tenantID
	}
	if tenant == uuid.Nil {
		return uuid.Nil, &apperr.AuthenticationError{}
	}

	chatID, err := d.svc.CreateOrGetChat(ctx, d.userID, propertyID, tenant)
	if err != nil {
		return uuid.Nil, err
	}
	if err := d.reload(ctx); err != nil {
		d.logger.Warn("reload after chat creation failed", zap.Error(err))
	}
	return chatID, nil
}

// Close releases the subscription. Loads still in flight are discarded.
func (d *Directory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubscribe, cancel := d.unsubscribe, d.cancel
	d.onChange = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

// handleChange coalesces bursts of events into at most one extra reload.
func (d *Directory) handleChange(gateway.ChangeEvent) {
	d.reloadMu.Lock()
	if d.running {
		d.pending = true
		d.reloadMu.Unlock()
		return
	}
	d.running = true
	d.reloadMu.Unlock()

	go func() {
		for {
			if err := d.reload(d.ctx); err != nil {
				d.logger.Warn("conversation reload failed", zap.Error(err))
			}

			d.reloadMu.Lock()
			if !d.pending {
				d.running = false
				d.reloadMu.Unlock()
				return
			}
			d.pending = false
			d.reloadMu.Unlock()
		}
	}()
}

func (d *Directory) reload(ctx context.Context) error {
	if ctx == nil || ctx.Err() != nil {
		return nil
	}

	conversations, err := d.svc.ListConversations(ctx, d.userID)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if err != nil {
		d.err = err
		if d.state == StateLoading {
			d.state = StateErrored
		}
		d.mu.Unlock()
		return err
	}
	d.conversations = conversations
	d.state = StateReady
	d.err = nil
	onChange := d.onChange
	d.mu.Unlock()

	if onChange != nil {
		out := make([]models.Conversation, len(conversations))
		copy(out, conversations)
		onChange(out)
	}
	return nil
}

func (d *Directory) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.state = StateErrored
	d.mu.Unlock()
}
