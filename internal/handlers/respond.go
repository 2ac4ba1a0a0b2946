package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/middleware"
	"github.com/padhub/backend/internal/resilience"
	"go.uber.org/zap"
)

// ErrorResponse sends a standardized error response
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps a service error to its status code and user-facing
// message. Server-side failures are logged with the request path.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	ErrorResponse(c, status, apperr.UserMessage(resilience.Classify(err)))
}

func statusFor(err error) int {
	var (
		authErr     *apperr.AuthenticationError
		permErr     *apperr.PermissionError
		validErr    *apperr.ValidationError
		capErr      *apperr.CapacityError
		conflictErr *apperr.ConflictError
		notFoundErr *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &validErr):
		return http.StatusBadRequest
	case errors.As(err, &capErr), errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	}

	classified := resilience.Classify(err)
	switch {
	case classified.Retryable:
		return http.StatusServiceUnavailable
	case classified.Type == apperr.NetworkTypePermission:
		return http.StatusForbidden
	case classified.Type == apperr.NetworkTypeAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// currentUser returns the authenticated user, or uuid.Nil. Services treat
// uuid.Nil as unauthenticated.
func currentUser(c *gin.Context) uuid.UUID {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// pathID parses a uuid path parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
