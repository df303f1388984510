package event_bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishTyped(t *testing.T) {
	bus := NewEventBus()
	var received []string

	SubscribeTyped[GroupDeleted](bus, GroupDeletedEvent, func(e EventT[GroupDeleted]) error {
		received = append(received, "first:"+e.Data.GroupUuid)
		return nil
	})
	SubscribeTyped[GroupDeleted](bus, GroupDeletedEvent, func(e EventT[GroupDeleted]) error {
		received = append(received, "second:"+e.Data.GroupUuid)
		return nil
	})

	err := bus.Publish(NewEvent(context.Background(), GroupDeletedEvent, GroupDeleted{GroupUuid: "g1"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"first:g1", "second:g1"}, received)
}

func TestEventBus_IgnoresOtherPayloadTypes(t *testing.T) {
	bus := NewEventBus()
	called := false
	SubscribeTyped[GroupDeleted](bus, GroupDeletedEvent, func(e EventT[GroupDeleted]) error {
		called = true
		return nil
	})

	err := bus.Publish(NewEvent(context.Background(), GroupDeletedEvent, "not a payload"))

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestEventBus_CollectsHandlerErrorsAndPanics(t *testing.T) {
	bus := NewEventBus()
	handlerErr := errors.New("cascade failed")
	bus.Subscribe(GroupDeletedEvent, func(e Event) error { return handlerErr })
	bus.Subscribe(GroupDeletedEvent, func(e Event) error { panic("boom") })

	err := bus.Publish(NewEvent(context.Background(), GroupDeletedEvent, GroupDeleted{}))

	require.Error(t, err)
	assert.ErrorIs(t, err, handlerErr)
	assert.Contains(t, err.Error(), "2 handler(s) failed")
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	unsubscribe := bus.Subscribe(GroupDeletedEvent, func(e Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(NewEvent(context.Background(), GroupDeletedEvent, GroupDeleted{})))
	unsubscribe()
	require.NoError(t, bus.Publish(NewEvent(context.Background(), GroupDeletedEvent, GroupDeleted{})))

	assert.Equal(t, 1, calls)
}

func TestEventBus_CancelledContext(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(NewEvent(ctx, GroupDeletedEvent, GroupDeleted{}))

	assert.ErrorIs(t, err, context.Canceled)
}
