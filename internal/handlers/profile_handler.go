package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/middleware"
	"github.com/padhub/backend/internal/models"
	"go.uber.org/zap"
)

type ProfileStore interface {
	Upsert(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type ProfileHandler struct {
	profiles ProfileStore
	logger   *zap.Logger
}

func NewProfileHandler(profiles ProfileStore, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// GetMe returns the caller's profile. Identities are owned by the auth
// provider, so the first request of a new user stores one from the token.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID := currentUser(c)
	if userID == uuid.Nil {
		respondError(c, h.logger, &apperr.AuthenticationError{})
		return
	}

	profile, err := h.profiles.GetByID(c.Request.Context(), userID)
	var notFound *apperr.NotFoundError
	if errors.As(err, &notFound) {
		profile, err = h.createFromClaims(c, userID)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) createFromClaims(c *gin.Context, userID uuid.UUID) (*models.Profile, error) {
	email := c.GetString(middleware.ContextEmail)
	role, _ := c.Get(middleware.ContextRole)

	profile := &models.Profile{ID: userID, Email: email, FullName: email, Role: models.RoleTenant}
	if r, ok := role.(models.Role); ok && r != "" {
		profile.Role = r
	}
	if name, _, found := strings.Cut(email, "@"); found && len(name) >= 2 {
		profile.FullName = name
	}
	if err := profile.Validate(); err != nil {
		return nil, &apperr.ValidationError{Field: "email", Message: err.Error()}
	}

	if err := h.profiles.Upsert(c.Request.Context(), profile); err != nil {
		return nil, err
	}
	h.logger.Info("profile created from token", zap.String("user_id", userID.String()))
	return profile, nil
}
