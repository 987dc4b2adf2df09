package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jouyai/dashboard-kel/internal/models"
)

func recvSession(t *testing.T, ch <-chan models.Session) models.Session {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session event")
		return models.Session{}
	}
}

func recvMessage(t *testing.T, ch <-chan models.Message) models.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message event")
		return models.Message{}
	}
}

func TestHubDeliversSessionMutations(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	ch, cancel := hub.SubscribeSessions()
	defer cancel()

	session := models.Session{ID: uuid.New(), State: models.StateLiveUnclaimed}
	hub.PublishSession(ctx, session)

	got := recvSession(t, ch)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, models.StateLiveUnclaimed, got.State)
}

func TestHubFansOutToAllSessionSubscribers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	ch1, cancel1 := hub.SubscribeSessions()
	defer cancel1()
	ch2, cancel2 := hub.SubscribeSessions()
	defer cancel2()

	session := models.Session{ID: uuid.New()}
	hub.PublishSession(ctx, session)

	assert.Equal(t, session.ID, recvSession(t, ch1).ID)
	assert.Equal(t, session.ID, recvSession(t, ch2).ID)
}

func TestHubMessageSubscriptionsAreScopedToOneSession(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	watched := uuid.New()
	other := uuid.New()

	ch, cancel := hub.SubscribeMessages(watched)
	defer cancel()

	hub.PublishMessage(ctx, models.Message{ID: "01A", SessionID: other, Body: "elsewhere"})
	hub.PublishMessage(ctx, models.Message{ID: "01B", SessionID: watched, Body: "here"})

	got := recvMessage(t, ch)
	assert.Equal(t, "here", got.Body)
	assert.Equal(t, watched, got.SessionID)

	select {
	case m := <-ch:
		t.Fatalf("unexpected message for other session: %+v", m)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.SubscribeSessions()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Cancel twice must not panic.
	cancel()

	// Publishing after cancel must not reach the closed channel.
	hub.PublishSession(context.Background(), models.Session{ID: uuid.New()})
}

func TestHubKicksSlowSubscribers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	ch, cancel := hub.SubscribeSessions()
	defer cancel()

	// Fill the buffer without draining, then overflow it.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.PublishSession(ctx, models.Session{ID: uuid.New()})
	}

	// Drain: after the buffered events the channel must be closed, which is
	// the signal for a client to resynchronize with a full re-pull.
	received := 0
	for range ch {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestHubSlowMessageSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	sessionID := uuid.New()

	slow, cancelSlow := hub.SubscribeMessages(sessionID)
	defer cancelSlow()
	fast, cancelFast := hub.SubscribeMessages(sessionID)
	defer cancelFast()

	// Fill both buffers, then drain only the fast subscriber.
	for i := 0; i < subscriberBuffer; i++ {
		hub.PublishMessage(ctx, models.Message{
			ID:        fmt.Sprintf("%026d", i),
			SessionID: sessionID,
		})
	}
	for i := 0; i < subscriberBuffer; i++ {
		recvMessage(t, fast)
	}

	// The next publish overflows the slow subscriber and kicks it; the
	// drained one still receives the event.
	hub.PublishMessage(ctx, models.Message{ID: "last", SessionID: sessionID})

	got := recvMessage(t, fast)
	assert.Equal(t, "last", got.ID)

	var slowCount int
	for range slow {
		slowCount++
	}
	assert.Equal(t, subscriberBuffer, slowCount)
}
