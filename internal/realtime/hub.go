package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind is dropped and must resubscribe and re-fetch.
const subscriberBuffer = 32

// Bus fans session and message mutations out to interested operator views.
// Delivery is at-least-once per mutation; per-session message order follows
// append order because messages are immutable and only inserted.
type Bus interface {
	PublishSession(ctx context.Context, session models.Session)
	PublishMessage(ctx context.Context, msg models.Message)
}

type sessionSub struct {
	ch   chan models.Session
	once sync.Once
}

func (s *sessionSub) shutdown() {
	s.once.Do(func() { close(s.ch) })
}

type messageSub struct {
	ch   chan models.Message
	once sync.Once
}

func (s *messageSub) shutdown() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is the in-process propagation channel. It supports exactly the two
// subscription kinds the operator console needs: every session registry
// mutation (coarse), and message inserts for one session (fine).
type Hub struct {
	mu       sync.Mutex
	nextID   uint64
	registry map[uint64]*sessionSub
	perSess  map[uuid.UUID]map[uint64]*messageSub
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		registry: make(map[uint64]*sessionSub),
		perSess:  make(map[uuid.UUID]map[uint64]*messageSub),
	}
}

// SubscribeSessions registers interest in all session registry mutations.
// The returned cancel func releases the subscription and closes the channel.
func (h *Hub) SubscribeSessions() (<-chan models.Session, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	sub := &sessionSub{ch: make(chan models.Session, subscriberBuffer)}
	h.registry[id] = sub

	cancel := func() {
		h.mu.Lock()
		delete(h.registry, id)
		h.mu.Unlock()
		sub.shutdown()
	}
	return sub.ch, cancel
}

// SubscribeMessages registers interest in new messages for one session.
func (h *Hub) SubscribeMessages(sessionID uuid.UUID) (<-chan models.Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	sub := &messageSub{ch: make(chan models.Message, subscriberBuffer)}
	if h.perSess[sessionID] == nil {
		h.perSess[sessionID] = make(map[uint64]*messageSub)
	}
	h.perSess[sessionID][id] = sub

	cancel := func() {
		h.mu.Lock()
		if subs := h.perSess[sessionID]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.perSess, sessionID)
			}
		}
		h.mu.Unlock()
		sub.shutdown()
	}
	return sub.ch, cancel
}

// PublishSession delivers a session mutation to all registry subscribers.
// Subscribers whose buffer is full are disconnected; they resynchronize by
// re-pulling the full listing when they reconnect.
func (h *Hub) PublishSession(ctx context.Context, session models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.registry {
		select {
		case sub.ch <- session:
		default:
			delete(h.registry, id)
			sub.shutdown()
		}
	}
}

// PublishMessage delivers a message insert to that session's subscribers.
func (h *Hub) PublishMessage(ctx context.Context, msg models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.perSess[msg.SessionID] {
		select {
		case sub.ch <- msg:
		default:
			delete(h.perSess[msg.SessionID], id)
			sub.shutdown()
		}
	}
}
