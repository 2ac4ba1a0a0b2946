package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/padhub/backend/internal/chat"
	"github.com/padhub/backend/internal/models"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewChatHandler(svc *chat.Service, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{chat: svc, logger: logger}
}

// GetConversations returns the current user's chats, most recent first
func (h *ChatHandler) GetConversations(c *gin.Context) {
	conversations, err := h.chat.ListConversations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// CreateChat returns the chat for a property, creating it on first contact.
// The tenant defaults to the caller; naming another tenant is reserved for
// the property's agent.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var tenantID uuid.UUID
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}

	chatID, err := h.chat.CreateOrGetChat(c.Request.Context(), currentUser(c), req.PropertyID, tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.CreateChatResponse{ChatID: chatID})
}

// GetMessages returns a chat's history, oldest first
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	messages, err := h.chat.Messages(c.Request.Context(), chatID, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage posts a message as the current user
func (h *ChatHandler) SendMessage(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "message cannot be empty")
		return
	}

	message, err := h.chat.Send(c.Request.Context(), chatID, currentUser(c), req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// MarkRead marks every message from the other participant as read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	n, err := h.chat.MarkRead(c.Request.Context(), chatID, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}
