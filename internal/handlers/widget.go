package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// StartChatRequest represents the widget's session-opening request.
type StartChatRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// StartChatResponse represents the widget's session-opening response.
type StartChatResponse struct {
	Session *models.Session `json:"session"`
	Message *models.Message `json:"message"`
}

// CitizenMessageRequest represents a follow-up citizen message.
type CitizenMessageRequest struct {
	Message string `json:"message"`
}

// StartChat opens a new citizen conversation in bot mode.
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	var req StartChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, msg, err := h.broker.StartSession(r.Context(), req.Name, req.Message)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, StartChatResponse{Session: session, Message: msg})
}

// PostCitizenMessage appends a citizen message to an existing session,
// escalating bot sessions into the live queue.
func (h *Handler) PostCitizenMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	var req CitizenMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.broker.CitizenMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		h.BrokerError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}
