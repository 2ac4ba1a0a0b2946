package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	userID := uuid.New()

	var got []Notification
	unsubscribe := bus.Subscribe(func(n Notification) { got = append(got, n) })

	bus.Error(userID, "Message not sent", "check your connection")
	require.Len(t, got, 1)
	assert.Equal(t, userID, got[0].UserID)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "check your connection", got[0].Message)
	assert.False(t, got[0].CreatedAt.IsZero())

	unsubscribe()
	bus.Success(userID, "Saved", "room added")
	assert.Len(t, got, 1)
}

func TestBus_IndependentInstances(t *testing.T) {
	a, b := NewBus(), NewBus()
	calls := 0
	a.Subscribe(func(Notification) { calls++ })

	b.Publish(Notification{Message: "other bus"})
	assert.Zero(t, calls)
}

func TestBus_NilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Error(uuid.New(), "t", "m") })
}
