package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/curro/internal/interfaces"
)

func TestSubscribe_RejectsNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventAutomationEnqueued, nil))
}

func TestPublish_DeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var delivered atomic.Int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		delivered.Add(1)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventAutomationEnqueued, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventAutomationEnqueued, handler))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventAutomationEnqueued}))

	assert.Eventually(t, func() bool {
		return delivered.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublish_UnsubscribedTypeIsNoOp(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventAutomationError}))
}

func TestPublishSync_WaitsAndPropagatesError(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var ran atomic.Bool
	require.NoError(t, svc.Subscribe(interfaces.EventAutomationCompleted, func(ctx context.Context, event interfaces.Event) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventAutomationCompleted, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("observer failed")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventAutomationCompleted})
	assert.Error(t, err)
	assert.True(t, ran.Load(), "sync publish waits for every handler")
}

func TestPublish_PanickingHandlerDoesNotCrash(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	done := make(chan struct{})
	require.NoError(t, svc.Subscribe(interfaces.EventAutomationDequeued, func(ctx context.Context, event interfaces.Event) error {
		defer close(done)
		panic("observer bug")
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventAutomationDequeued}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestClose_StopsPublishAndSubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, svc.Close())

	assert.Error(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventAutomationEnqueued}))
	assert.Error(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventAutomationEnqueued}))
	assert.Error(t, svc.Subscribe(interfaces.EventAutomationEnqueued, func(ctx context.Context, event interfaces.Event) error { return nil }))
}
