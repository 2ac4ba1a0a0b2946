package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/padhub/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageError_PostgresCodeIsKept(t *testing.T) {
	err := storageError("list rooms", &pq.Error{Code: "57P01", Message: "terminating connection"})

	var dataErr *apperr.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "57P01", dataErr.Code)
	assert.Contains(t, dataErr.Message, "list rooms")
}

func TestStorageError_BadConnIsConnectionFailure(t *testing.T) {
	err := storageError("get bed", driver.ErrBadConn)

	var dataErr *apperr.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, codeConnectionFailure, dataErr.Code)
}

func TestStorageError_ContextErrorsPassThrough(t *testing.T) {
	err := storageError("list messages", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var dataErr *apperr.DataError
	assert.False(t, errors.As(err, &dataErr))
}

func TestStorageError_Nil(t *testing.T) {
	assert.NoError(t, storageError("noop", nil))
}

func TestNotFoundOr(t *testing.T) {
	err := notFoundOr("chat", "get chat", sql.ErrNoRows)

	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "chat not found", err.Error())
}

func TestPassAppErr(t *testing.T) {
	capacity := &apperr.CapacityError{RoomID: uuid.New(), Capacity: 2}
	assert.Same(t, capacity, passAppErr(capacity, "create bed"))

	conflict := &apperr.ConflictError{Message: "bed number 1 already exists in this room"}
	assert.Same(t, conflict, passAppErr(conflict, "create bed"))

	var dataErr *apperr.DataError
	assert.ErrorAs(t, passAppErr(errors.New("boom"), "create bed"), &dataErr)
}

func TestIsCode(t *testing.T) {
	assert.True(t, isCode(&pq.Error{Code: "23505"}, codeUniqueViolation))
	assert.False(t, isCode(&pq.Error{Code: "23503"}, codeUniqueViolation))
	assert.False(t, isCode(errors.New("23505"), codeUniqueViolation))
}

func TestUUIDStrings(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []string{a.String(), b.String()}, uuidStrings([]uuid.UUID{a, b}))
}

func TestDecodeAmenities(t *testing.T) {
	assert.Nil(t, decodeAmenities(nil))
	assert.Nil(t, decodeAmenities([]byte("not json")))

	m := decodeAmenities([]byte(`{"utilities":{"water":true}}`))
	require.NotNil(t, m)
	assert.Contains(t, m, "utilities")
}
