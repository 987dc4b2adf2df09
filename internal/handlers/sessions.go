package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jouyai/dashboard-kel/internal/api/middleware"
	"github.com/jouyai/dashboard-kel/internal/models"
)

// SessionListResponse represents a filtered session listing.
type SessionListResponse struct {
	Sessions []models.Session `json:"sessions"`
}

// MessageListResponse represents a session transcript.
type MessageListResponse struct {
	Session  *models.Session  `json:"session"`
	Messages []models.Message `json:"messages"`
}

// ReplyRequest represents an operator reply.
type ReplyRequest struct {
	Body string `json:"body"`
}

// ListSessions returns the operator's view of the registry. Without a view
// parameter it returns the full snapshot; with view=queue|mine|history it
// returns that bucket only.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	operator := middleware.GetOperatorFromContext(r.Context())
	if operator == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		sessions, err := h.broker.Sessions(r.Context())
		if err != nil {
			h.BrokerError(w, err)
			return
		}
		h.JSON(w, http.StatusOK, SessionListResponse{Sessions: sessions})
		return
	}

	buckets, err := h.broker.Views(r.Context(), operator.Email)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	switch view {
	case "queue":
		h.JSON(w, http.StatusOK, SessionListResponse{Sessions: buckets.Queue})
	case "mine":
		h.JSON(w, http.StatusOK, SessionListResponse{Sessions: buckets.Mine})
	case "history":
		h.JSON(w, http.StatusOK, SessionListResponse{Sessions: buckets.History})
	default:
		h.Error(w, http.StatusBadRequest, "view must be queue, mine or history")
	}
}

// GetSessionMessages returns a session's full transcript in append order.
func (h *Handler) GetSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.broker.Session(r.Context(), sessionID)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	messages, err := h.broker.Messages(r.Context(), sessionID)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MessageListResponse{Session: session, Messages: messages})
}

// ClaimSession takes ownership of an unclaimed live session.
func (h *Handler) ClaimSession(w http.ResponseWriter, r *http.Request) {
	operator := middleware.GetOperatorFromContext(r.Context())
	if operator == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.broker.Claim(r.Context(), sessionID, operator.Email)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, session)
}

// ReplySession appends an operator reply, claiming the session first if it
// is still unclaimed.
func (h *Handler) ReplySession(w http.ResponseWriter, r *http.Request) {
	operator := middleware.GetOperatorFromContext(r.Context())
	if operator == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.broker.Reply(r.Context(), sessionID, operator.Email, req.Body)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// ResolveSession ends a live conversation, returning it to bot mode.
func (h *Handler) ResolveSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.broker.Resolve(r.Context(), sessionID)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, session)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return uuid.Nil, false
	}
	return id, true
}
