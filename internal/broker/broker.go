package broker

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jouyai/dashboard-kel/internal/metrics"
	"github.com/jouyai/dashboard-kel/internal/models"
	"github.com/jouyai/dashboard-kel/internal/realtime"
	"github.com/jouyai/dashboard-kel/internal/store"
)

// System message bodies, matching the wording the public widget and the
// operator console have always shown.
const (
	handoffMessagePrefix = "Percakapan ini ditangani oleh Staff: "
	resolvedMessage      = "Sesi live chat diakhiri."
)

// defaultCitizenName labels sessions opened without a name.
const defaultCitizenName = "Warga"

// Broker routes citizen conversations to at most one operator at a time and
// keeps every operator view consistent through the propagation bus. All
// multi-writer hazards are resolved by the store's conditional claim update;
// the broker itself holds no mutable state.
type Broker struct {
	store  store.DataStore
	bus    realtime.Bus
	logger zerolog.Logger
}

// New creates a broker on top of a durable store and a propagation bus.
func New(st store.DataStore, bus realtime.Bus, logger zerolog.Logger) *Broker {
	return &Broker{store: st, bus: bus, logger: logger}
}

// StartSession opens a conversation for a citizen. The session starts in bot
// mode; the automated assistant answers until the citizen asks again.
func (b *Broker) StartSession(ctx context.Context, citizenName, body string) (*models.Session, *models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, validationErr("message body is required")
	}
	citizenName = strings.TrimSpace(citizenName)
	if citizenName == "" {
		citizenName = defaultCitizenName
	}

	session, err := b.store.CreateSession(ctx, citizenName)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	msg, err := b.store.AppendMessage(ctx, session.ID, models.SenderCitizen, body)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	metrics.SessionsCreated.Inc()
	metrics.MessagesAppended.WithLabelValues(string(models.SenderCitizen)).Inc()

	if fresh := b.publish(ctx, session.ID, msg); fresh != nil {
		session = fresh
	}
	return session, msg, nil
}

// CitizenMessage appends a citizen turn to an existing session. A citizen
// message arriving while the session is still in bot mode escalates it into
// the unclaimed live queue; messages on live sessions leave state and owner
// untouched.
func (b *Broker) CitizenMessage(ctx context.Context, sessionID uuid.UUID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationErr("message body is required")
	}

	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}

	if session.State == models.StateBot {
		if _, err := b.store.EscalateSession(ctx, sessionID); err != nil {
			return nil, storeErr(err)
		}
	}

	msg, err := b.store.AppendMessage(ctx, sessionID, models.SenderCitizen, body)
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.MessagesAppended.WithLabelValues(string(models.SenderCitizen)).Inc()

	b.publish(ctx, sessionID, msg)
	return msg, nil
}

// Claim transfers ownership of an unclaimed live session to the operator.
// Exactly one concurrent claimer wins; losers get ErrAlreadyOwned and should
// refresh their view. Claiming a session already owned by the same operator
// is a no-op and does not append a second handoff message.
func (b *Broker) Claim(ctx context.Context, sessionID uuid.UUID, operator string) (*models.Session, error) {
	if operator == "" {
		return nil, validationErr("operator identity is required")
	}

	won, err := b.store.ClaimSession(ctx, sessionID, operator)
	if err != nil {
		return nil, storeErr(err)
	}

	if !won {
		session, err := b.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, storeErr(err)
		}
		if session.OwnedBy(operator) {
			metrics.Claims.WithLabelValues("repeat").Inc()
			return session, nil
		}
		if session.Claimed() {
			metrics.Claims.WithLabelValues("lost").Inc()
			return nil, ErrAlreadyOwned
		}
		return nil, validationErr("session is not waiting in the live queue")
	}

	metrics.Claims.WithLabelValues("won").Inc()

	msg, err := b.store.AppendMessage(ctx, sessionID, models.SenderSystem, handoffMessagePrefix+operator)
	if err != nil {
		// The claim itself landed; a missing handoff note is recoverable.
		b.logger.Warn().Err(err).Stringer("session", sessionID).Msg("handoff message append failed")
	} else {
		metrics.MessagesAppended.WithLabelValues(string(models.SenderSystem)).Inc()
	}

	session := b.publish(ctx, sessionID, msg)
	if session != nil {
		return session, nil
	}
	return b.store.GetSession(ctx, sessionID)
}

// Reply appends an operator turn. Replying to an unclaimed session performs
// an implicit claim first, so the handoff note lands before the reply.
// Replying to a session owned by another operator is rejected.
func (b *Broker) Reply(ctx context.Context, sessionID uuid.UUID, operator, body string) (*models.Message, error) {
	if operator == "" {
		return nil, validationErr("operator identity is required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationErr("reply body must not be empty")
	}

	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}

	switch session.State {
	case models.StateBot:
		return nil, validationErr("session is in bot mode; claim it from the queue first")
	case models.StateLiveUnclaimed:
		if _, err := b.Claim(ctx, sessionID, operator); err != nil {
			return nil, err
		}
	case models.StateLiveClaimed:
		if !session.OwnedBy(operator) {
			return nil, ErrAlreadyOwned
		}
	}

	msg, err := b.store.AppendMessage(ctx, sessionID, models.SenderOperator, body)
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.MessagesAppended.WithLabelValues(string(models.SenderOperator)).Inc()

	b.publish(ctx, sessionID, msg)
	return msg, nil
}

// Resolve ends a live conversation: the session returns to bot mode, the
// owner is cleared and a closing system message is appended. Deliberately
// unconditional on ownership (any operator can end a session) and idempotent
// when the session is already back in bot mode.
func (b *Broker) Resolve(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}
	if session.State == models.StateBot {
		return session, nil
	}

	if err := b.store.ReleaseSession(ctx, sessionID); err != nil {
		return nil, storeErr(err)
	}

	metrics.Resolves.Inc()

	msg, err := b.store.AppendMessage(ctx, sessionID, models.SenderSystem, resolvedMessage)
	if err != nil {
		b.logger.Warn().Err(err).Stringer("session", sessionID).Msg("closing message append failed")
	} else {
		metrics.MessagesAppended.WithLabelValues(string(models.SenderSystem)).Inc()
	}

	if fresh := b.publish(ctx, sessionID, msg); fresh != nil {
		return fresh, nil
	}
	return b.store.GetSession(ctx, sessionID)
}

// Sessions returns the full registry snapshot, newest activity first, with
// best-effort topics attached.
func (b *Broker) Sessions(ctx context.Context) ([]models.Session, error) {
	sessions, err := b.store.ListSessions(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	greetings, err := b.store.GreetingBodies(ctx)
	if err != nil {
		// Topics are annotations; their absence never blocks a listing.
		b.logger.Warn().Err(err).Msg("greeting scan failed; sessions listed without topics")
		return sessions, nil
	}

	for i := range sessions {
		if body, ok := greetings[sessions[i].ID]; ok {
			sessions[i].Topic = ExtractTopic(body)
		}
	}
	return sessions, nil
}

// Session returns one session with its derived topic attached, without
// scanning the whole registry.
func (b *Broker) Session(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}

	body, err := b.store.GreetingBody(ctx, sessionID)
	if err != nil {
		b.logger.Warn().Err(err).Stringer("session", sessionID).Msg("greeting lookup failed; session returned without topic")
		return session, nil
	}
	session.Topic = ExtractTopic(body)
	return session, nil
}

// Views partitions the registry into the operator's three tabs.
func (b *Broker) Views(ctx context.Context, operator string) (Buckets, error) {
	sessions, err := b.Sessions(ctx)
	if err != nil {
		return Buckets{}, err
	}
	return Partition(sessions, operator), nil
}

// Messages returns a session's full transcript in append order.
func (b *Broker) Messages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	if _, err := b.store.GetSession(ctx, sessionID); err != nil {
		return nil, storeErr(err)
	}
	msgs, err := b.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}
	return msgs, nil
}

// publish pushes the session's fresh state and an optional message onto the
// bus. Returns the fresh session when it could be read.
func (b *Broker) publish(ctx context.Context, sessionID uuid.UUID, msg *models.Message) *models.Session {
	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		b.logger.Warn().Err(err).Stringer("session", sessionID).Msg("post-mutation read failed; skipping fan-out")
		return nil
	}
	b.bus.PublishSession(ctx, *session)
	if msg != nil {
		b.bus.PublishMessage(ctx, *msg)
	}
	return session
}
