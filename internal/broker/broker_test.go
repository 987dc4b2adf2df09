package broker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jouyai/dashboard-kel/internal/models"
	"github.com/jouyai/dashboard-kel/internal/realtime"
	"github.com/jouyai/dashboard-kel/internal/store"
)

func newTestBroker(t *testing.T) *Broker {
	b, _ := newTestBrokerWithHub(t)
	return b
}

func newTestBrokerWithHub(t *testing.T) (*Broker, *realtime.Hub) {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	hub := realtime.NewHub()
	return New(st, hub, zerolog.Nop()), hub
}

func nextSessionEvent(t *testing.T, ch <-chan models.Session) models.Session {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "session channel closed unexpectedly")
		return s
	case <-time.After(time.Second):
		t.Fatal("no session event published")
		return models.Session{}
	}
}

func nextMessageEvent(t *testing.T, ch <-chan models.Message) models.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "message channel closed unexpectedly")
		return m
	case <-time.After(time.Second):
		t.Fatal("no message event published")
		return models.Message{}
	}
}

func TestStartSessionOpensInBotMode(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	session, msg, err := b.StartSession(ctx, "Siti", "Halo, saya ingin bertanya mengenai Surat Domisili.")
	require.NoError(t, err)

	assert.Equal(t, models.StateBot, session.State)
	assert.Nil(t, session.Owner)
	assert.Equal(t, "Siti", session.CitizenName)
	assert.Equal(t, models.SenderCitizen, msg.Sender)
	assert.Equal(t, session.ID, msg.SessionID)
}

func TestStartSessionDefaultsCitizenName(t *testing.T) {
	b := newTestBroker(t)

	session, _, err := b.StartSession(context.Background(), "  ", "Halo")
	require.NoError(t, err)
	assert.Equal(t, "Warga", session.CitizenName)
}

func TestStartSessionRejectsEmptyBody(t *testing.T) {
	b := newTestBroker(t)

	_, _, err := b.StartSession(context.Background(), "Siti", "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCitizenMessageEscalatesBotSession(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	session, _, err := b.StartSession(ctx, "Siti", "Halo")
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, session.State)

	_, err = b.CitizenMessage(ctx, session.ID, "Saya mau bicara dengan petugas")
	require.NoError(t, err)

	fresh, err := b.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiveUnclaimed, fresh.State)
	assert.Nil(t, fresh.Owner)
}

func TestCitizenMessageOnLiveSessionKeepsOwner(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	_, err = b.CitizenMessage(ctx, sessionID, "Masih ada?")
	require.NoError(t, err)

	fresh, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiveClaimed, fresh.State)
	require.NotNil(t, fresh.Owner)
	assert.Equal(t, "andi@kel.go.id", *fresh.Owner)
}

func TestCitizenMessageUnknownSession(t *testing.T) {
	b := newTestBroker(t)

	_, err := b.CitizenMessage(context.Background(), uuid.New(), "Halo")
	assert.ErrorIs(t, err, ErrNotFound)
}

// escalatedSession creates a session waiting in the live queue.
func escalatedSession(t *testing.T, b *Broker) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	session, _, err := b.StartSession(ctx, "Siti", "Halo, saya ingin bertanya mengenai Perekaman KTP.")
	require.NoError(t, err)
	_, err = b.CitizenMessage(ctx, session.ID, "Tolong sambungkan ke petugas")
	require.NoError(t, err)
	return session.ID
}

func TestClaimSetsOwnerAndAppendsHandoff(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	session, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	assert.Equal(t, models.StateLiveClaimed, session.State)
	require.NotNil(t, session.Owner)
	assert.Equal(t, "andi@kel.go.id", *session.Owner)

	msgs, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, models.SenderSystem, last.Sender)
	assert.Equal(t, "Percakapan ini ditangani oleh Staff: andi@kel.go.id", last.Body)
}

func TestClaimIsIdempotentForSameOperator(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	msgsBefore, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)

	session, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)
	require.NotNil(t, session.Owner)
	assert.Equal(t, "andi@kel.go.id", *session.Owner)

	// A repeat claim must not append a second handoff message.
	msgsAfter, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, len(msgsBefore), len(msgsAfter))
}

func TestClaimRejectsSecondOperator(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	_, err = b.Claim(ctx, sessionID, "budi@kel.go.id")
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	fresh, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Owner)
	assert.Equal(t, "andi@kel.go.id", *fresh.Owner)
}

func TestClaimRejectsBotSession(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	session, _, err := b.StartSession(ctx, "Siti", "Halo")
	require.NoError(t, err)

	_, err = b.Claim(ctx, session.ID, "andi@kel.go.id")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClaimUnknownSession(t *testing.T) {
	b := newTestBroker(t)

	_, err := b.Claim(context.Background(), uuid.New(), "andi@kel.go.id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentClaimExactlyOneWinner(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	operators := []string{
		"a@kel.go.id", "b@kel.go.id", "c@kel.go.id", "d@kel.go.id",
		"e@kel.go.id", "f@kel.go.id", "g@kel.go.id", "h@kel.go.id",
	}

	var wg sync.WaitGroup
	results := make([]error, len(operators))
	for i, op := range operators {
		wg.Add(1)
		go func(i int, op string) {
			defer wg.Done()
			_, results[i] = b.Claim(ctx, sessionID, op)
		}(i, op)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, ErrAlreadyOwned)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, len(operators)-1, losses)

	fresh, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, fresh.Claimed())
}

func TestReplyPerformsImplicitClaim(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	msg, err := b.Reply(ctx, sessionID, "andi@kel.go.id", "Baik, saya bantu cek.")
	require.NoError(t, err)
	assert.Equal(t, models.SenderOperator, msg.Sender)

	fresh, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Owner)
	assert.Equal(t, "andi@kel.go.id", *fresh.Owner)

	// The handoff note must land before the reply.
	msgs, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, models.SenderOperator, msgs[len(msgs)-1].Sender)
	assert.Equal(t, models.SenderSystem, msgs[len(msgs)-2].Sender)
}

func TestReplyRejectedWhenOwnedByOther(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	_, err = b.Reply(ctx, sessionID, "budi@kel.go.id", "Halo dari saya juga")
	assert.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestReplyRejectsBotSessionAndEmptyBody(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	session, _, err := b.StartSession(ctx, "Siti", "Halo")
	require.NoError(t, err)

	_, err = b.Reply(ctx, session.ID, "andi@kel.go.id", "Halo")
	assert.ErrorIs(t, err, ErrValidation)

	sessionID := escalatedSession(t, b)
	_, err = b.Reply(ctx, sessionID, "andi@kel.go.id", "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveReturnsSessionToBotMode(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)

	session, err := b.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, session.State)
	assert.Nil(t, session.Owner)

	msgs, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, models.SenderSystem, last.Sender)
	assert.Equal(t, "Sesi live chat diakhiri.", last.Body)
}

func TestResolveIsIdempotent(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)
	_, err = b.Resolve(ctx, sessionID)
	require.NoError(t, err)

	msgsBefore, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)

	session, err := b.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, session.State)

	msgsAfter, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, len(msgsBefore), len(msgsAfter))
}

func TestResolveUnclaimedSession(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	session, err := b.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, session.State)
}

func TestMessagesAreInAppendOrder(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	_, err := b.Reply(ctx, sessionID, "andi@kel.go.id", "Pertama")
	require.NoError(t, err)
	_, err = b.CitizenMessage(ctx, sessionID, "Kedua")
	require.NoError(t, err)
	_, err = b.Reply(ctx, sessionID, "andi@kel.go.id", "Ketiga")
	require.NoError(t, err)

	msgs, err := b.Messages(ctx, sessionID)
	require.NoError(t, err)

	var bodies []string
	for _, m := range msgs {
		if m.Sender != models.SenderSystem {
			bodies = append(bodies, m.Body)
		}
	}
	assert.Equal(t, []string{
		"Halo, saya ingin bertanya mengenai Perekaman KTP.",
		"Tolong sambungkan ke petugas",
		"Pertama",
		"Kedua",
		"Ketiga",
	}, bodies)
}

func TestSessionsAttachTopics(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	withTopic, _, err := b.StartSession(ctx, "Siti", "Halo, saya ingin bertanya mengenai Akta Kelahiran.")
	require.NoError(t, err)
	without, _, err := b.StartSession(ctx, "Budi", "Kantor buka jam berapa?")
	require.NoError(t, err)

	sessions, err := b.Sessions(ctx)
	require.NoError(t, err)

	topics := make(map[uuid.UUID]string, len(sessions))
	for _, s := range sessions {
		topics[s.ID] = s.Topic
	}
	assert.Equal(t, "Akta Kelahiran", topics[withTopic.ID])
	assert.Equal(t, "", topics[without.ID])
}

func TestViewsPartitionPerOperator(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	queued := escalatedSession(t, b)
	mine := escalatedSession(t, b)
	theirs := escalatedSession(t, b)

	_, err := b.Claim(ctx, mine, "andi@kel.go.id")
	require.NoError(t, err)
	_, err = b.Claim(ctx, theirs, "budi@kel.go.id")
	require.NoError(t, err)

	buckets, err := b.Views(ctx, "andi@kel.go.id")
	require.NoError(t, err)

	require.Len(t, buckets.Queue, 1)
	assert.Equal(t, queued, buckets.Queue[0].ID)
	require.Len(t, buckets.Mine, 1)
	assert.Equal(t, mine, buckets.Mine[0].ID)
	require.Len(t, buckets.History, 1)
	assert.Equal(t, theirs, buckets.History[0].ID)
}

func TestMutationsFanOutToSubscribers(t *testing.T) {
	b, hub := newTestBrokerWithHub(t)
	ctx := context.Background()

	sessEvents, cancelSess := hub.SubscribeSessions()
	defer cancelSess()

	session, _, err := b.StartSession(ctx, "Siti", "Halo, saya ingin bertanya mengenai Perekaman KTP.")
	require.NoError(t, err)

	ev := nextSessionEvent(t, sessEvents)
	assert.Equal(t, session.ID, ev.ID)
	assert.Equal(t, models.StateBot, ev.State)

	msgEvents, cancelMsg := hub.SubscribeMessages(session.ID)
	defer cancelMsg()

	_, err = b.CitizenMessage(ctx, session.ID, "Tolong sambungkan ke petugas")
	require.NoError(t, err)
	ev = nextSessionEvent(t, sessEvents)
	assert.Equal(t, models.StateLiveUnclaimed, ev.State)
	m := nextMessageEvent(t, msgEvents)
	assert.Equal(t, models.SenderCitizen, m.Sender)
	assert.Equal(t, "Tolong sambungkan ke petugas", m.Body)

	_, err = b.Claim(ctx, session.ID, "andi@kel.go.id")
	require.NoError(t, err)
	ev = nextSessionEvent(t, sessEvents)
	assert.Equal(t, models.StateLiveClaimed, ev.State)
	require.NotNil(t, ev.Owner)
	assert.Equal(t, "andi@kel.go.id", *ev.Owner)
	m = nextMessageEvent(t, msgEvents)
	assert.Equal(t, models.SenderSystem, m.Sender)

	_, err = b.Reply(ctx, session.ID, "andi@kel.go.id", "Baik, saya bantu cek.")
	require.NoError(t, err)
	ev = nextSessionEvent(t, sessEvents)
	assert.Equal(t, session.ID, ev.ID)
	m = nextMessageEvent(t, msgEvents)
	assert.Equal(t, models.SenderOperator, m.Sender)
	assert.Equal(t, "Baik, saya bantu cek.", m.Body)

	_, err = b.Resolve(ctx, session.ID)
	require.NoError(t, err)
	ev = nextSessionEvent(t, sessEvents)
	assert.Equal(t, models.StateBot, ev.State)
	assert.Nil(t, ev.Owner)
	m = nextMessageEvent(t, msgEvents)
	assert.Equal(t, models.SenderSystem, m.Sender)
	assert.Equal(t, "Sesi live chat diakhiri.", m.Body)

	// One session event per mutation, one message event per append: nothing
	// may be left over.
	select {
	case extra := <-sessEvents:
		t.Fatalf("unexpected extra session event: %+v", extra)
	default:
	}
	select {
	case extra := <-msgEvents:
		t.Fatalf("unexpected extra message event: %+v", extra)
	default:
	}
}

func TestSessionAttachesTopic(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	withTopic, _, err := b.StartSession(ctx, "Siti", "Halo, saya ingin bertanya mengenai Akta Kelahiran.")
	require.NoError(t, err)
	without, _, err := b.StartSession(ctx, "Budi", "Kantor buka jam berapa?")
	require.NoError(t, err)

	got, err := b.Session(ctx, withTopic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Akta Kelahiran", got.Topic)

	got, err = b.Session(ctx, without.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Topic)

	_, err = b.Session(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnerClaimedInvariant(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sessionID := escalatedSession(t, b)

	unclaimed, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, unclaimed.Owner)
	assert.False(t, unclaimed.Claimed())

	_, err = b.Claim(ctx, sessionID, "andi@kel.go.id")
	require.NoError(t, err)
	claimed, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.NotNil(t, claimed.Owner)
	assert.True(t, claimed.Claimed())

	_, err = b.Resolve(ctx, sessionID)
	require.NoError(t, err)
	resolved, err := b.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, resolved.Owner)
	assert.False(t, resolved.Claimed())
}
