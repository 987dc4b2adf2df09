package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jouyai/dashboard-kel/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// The console is served from a different origin than the API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamSessions pushes every session registry mutation to the client over a
// websocket. The client treats each event as a cue to re-fetch and
// repartition its listing; on reconnect it must re-pull the full snapshot to
// cover anything missed while the socket was down.
func (h *Handler) StreamSessions(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no mutation can slip
	// between the client seeing the upgrade succeed and interest being
	// registered.
	events, cancel := h.hub.SubscribeSessions()
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	metrics.StreamClients.WithLabelValues("registry").Inc()
	defer metrics.StreamClients.WithLabelValues("registry").Dec()

	h.pump(conn, func() (interface{}, bool) {
		ev, ok := <-events
		return ev, ok
	})
}

// StreamSessionMessages pushes new messages for one session. Subscription
// interest is released as soon as the view tears the socket down, so no
// appends reach a detached view.
func (h *Handler) StreamSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	events, cancel := h.hub.SubscribeMessages(sessionID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	metrics.StreamClients.WithLabelValues("session").Inc()
	defer metrics.StreamClients.WithLabelValues("session").Dec()

	h.pump(conn, func() (interface{}, bool) {
		ev, ok := <-events
		return ev, ok
	})
}

// pump writes events to the socket until either side goes away.
func (h *Handler) pump(conn *websocket.Conn, next func() (interface{}, bool)) {
	defer conn.Close()

	done := make(chan struct{})

	// Reader: we never expect client frames, but reading is how gorilla
	// surfaces close and ping/pong handling.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := make(chan interface{})
	go func() {
		defer close(events)
		for {
			ev, ok := next()
			if !ok {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Hub dropped us (slow consumer) or shut down; the
				// client reconnects and re-pulls.
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "resync required"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
