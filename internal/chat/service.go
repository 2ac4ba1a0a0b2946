// Package chat implements the tenant/agent messaging core: the per-user
// conversation directory, the per-chat message stream and the service both
// of them call.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/resilience"
	"go.uber.org/zap"
)

type ConversationStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	GetOrCreate(ctx context.Context, propertyID, tenantID uuid.UUID) (uuid.UUID, error)
	IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	PropertyAgent(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error)
}

type MessageStore interface {
	Create(ctx context.Context, message *models.Message) error
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error)
	MarkChatRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error)
}

// TypingStore keeps short-lived typing markers. *cache.RedisClient
// implements it.
type TypingStore interface {
	SetTyping(ctx context.Context, chatID, userID uuid.UUID) error
	RemoveTyping(ctx context.Context, chatID, userID uuid.UUID) error
	GetTypingUsers(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
}

type Service struct {
	conversations ConversationStore
	messages      MessageStore
	typing        TypingStore
	feed          gateway.Feed
	retry         resilience.Options
	bus           *notify.Bus
	logger        *zap.Logger
}

func NewService(
	conversations ConversationStore,
	messages MessageStore,
	feed gateway.Feed,
	retry resilience.Options,
	bus *notify.Bus,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.Logger == nil {
		retry.Logger = logger
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		feed:          feed,
		retry:         retry,
		bus:           bus,
		logger:        logger,
	}
}

// SetTypingStore enables persisted typing markers. Without one, typing
// state only travels over the change feed.
func (s *Service) SetTypingStore(t TypingStore) {
	s.typing = t
}

// ListConversations returns userID's chats, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	if userID == uuid.Nil {
		return nil, &apperr.AuthenticationError{}
	}
	return resilience.ExecuteWithRetry(ctx, func(ctx context.Context) ([]models.Conversation, error) {
		return s.conversations.ListForUser(ctx, userID)
	}, s.retry)
}

// CreateOrGetChat returns the single chat for (propertyID, tenantID),
// creating it on first contact. A zero tenantID means the caller. Only the
// tenant or the property's agent may open the chat.
func (s *Service) CreateOrGetChat(ctx context.Context, callerID, propertyID, tenantID uuid.UUID) (uuid.UUID, error) {
	if callerID == uuid.Nil {
		return uuid.Nil, &apperr.AuthenticationError{}
	}
	if tenantID == uuid.Nil {
		tenantID = callerID
	}
	if propertyID == uuid.Nil {
		return uuid.Nil, apperr.Validation("property_id", "property is required")
	}
	if tenantID != callerID {
		agentID, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (uuid.UUID, error) {
			return s.conversations.PropertyAgent(ctx, propertyID)
		}, s.retry)
		if err != nil {
			return uuid.Nil, err
		}
		if agentID != callerID {
			return uuid.Nil, &apperr.PermissionError{Message: "only the tenant or the listing agent can open this chat"}
		}
	}
	return resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (uuid.UUID, error) {
		return s.conversations.GetOrCreate(ctx, propertyID, tenantID)
	}, s.retry)
}

// Messages returns the chat history, oldest first, for a participant.
func (s *Service) Messages(ctx context.Context, chatID, userID uuid.UUID) ([]models.Message, error) {
	if err := s.authorize(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return resilience.ExecuteWithRetry(ctx, func(ctx context.Context) ([]models.Message, error) {
		return s.messages.ListByChat(ctx, chatID)
	}, s.retry)
}

// Send validates content, stores the message and announces it on the feed.
// The insert itself is not retried.
func (s *Service) Send(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, error) {
	content, err := models.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if senderID == uuid.Nil {
		return nil, &apperr.AuthenticationError{}
	}
	if err := s.authorize(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: models.MessageTypeText,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.Error("failed to send message",
			zap.String("chat_id", chatID.String()),
			zap.String("sender_id", senderID.String()),
			zap.Error(err),
		)
		s.bus.Error(senderID, "Message not sent", apperr.UserMessage(err))
		return nil, &apperr.ChatError{Op: "send message", Err: err}
	}

	s.publish(ctx, gateway.TableMessages, gateway.EventInsert, msg)
	return msg, nil
}

// MarkRead records read receipts for every message userID received in
// chatID.
func (s *Service) MarkRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	if err := s.authorize(ctx, chatID, userID); err != nil {
		return 0, err
	}
	n, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (int64, error) {
		return s.messages.MarkChatRead(ctx, chatID, userID)
	}, s.retry)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.publish(ctx, gateway.TableMessages, gateway.EventUpdate, models.ReadReceipt{
			ChatID:   chatID,
			ReaderID: userID,
			ReadAt:   time.Now(),
		})
	}
	return n, nil
}

// SetTyping starts or stops userID's typing indicator in chatID.
func (s *Service) SetTyping(ctx context.Context, chatID, userID uuid.UUID, typing bool) error {
	if err := s.authorize(ctx, chatID, userID); err != nil {
		return err
	}

	if s.typing != nil {
		var err error
		if typing {
			err = s.typing.SetTyping(ctx, chatID, userID)
		} else {
			err = s.typing.RemoveTyping(ctx, chatID, userID)
		}
		if err != nil {
			s.logger.Warn("failed to store typing state", zap.String("chat_id", chatID.String()), zap.Error(err))
		}
	}

	s.publish(ctx, gateway.TableTyping, gateway.EventUpdate, models.TypingIndicator{
		ChatID:   chatID,
		UserID:   userID,
		IsTyping: typing,
	})
	return nil
}

// TypingUsers returns who is currently typing in chatID, if a typing store
// is configured.
func (s *Service) TypingUsers(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	if s.typing == nil {
		return nil, nil
	}
	return s.typing.GetTypingUsers(ctx, chatID)
}

func (s *Service) authorize(ctx context.Context, chatID, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return &apperr.AuthenticationError{}
	}
	ok, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (bool, error) {
		return s.conversations.IsParticipant(ctx, chatID, userID)
	}, s.retry)
	if err != nil {
		return err
	}
	if !ok {
		return &apperr.PermissionError{Message: "not a participant of this chat"}
	}
	return nil
}

// publish announces a change. The write already succeeded, so a feed
// failure only delays live views until their next reload.
func (s *Service) publish(ctx context.Context, table string, typ gateway.EventType, record any) {
	if s.feed == nil {
		return
	}
	evt, err := gateway.NewChangeEvent(table, typ, record)
	if err == nil {
		err = s.feed.Publish(ctx, evt)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to publish change", zap.String("table", table), zap.Error(err))
	}
}
