package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jouyai/dashboard-kel/internal/broker"
	"github.com/jouyai/dashboard-kel/internal/realtime"
	"github.com/jouyai/dashboard-kel/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.DataStore
	broker *broker.Broker
	hub    *realtime.Hub
	redis  *realtime.RedisBus // nil when running single-instance
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(st store.DataStore, b *broker.Broker, hub *realtime.Hub, redis *realtime.RedisBus, logger zerolog.Logger) *Handler {
	return &Handler{store: st, broker: b, hub: hub, redis: redis, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// BrokerError maps broker taxonomy errors onto HTTP statuses. A lost claim
// is a conflict the client resolves by refreshing, not a server failure.
func (h *Handler) BrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrNotFound):
		h.Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, broker.ErrAlreadyOwned):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, broker.ErrValidation):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, broker.ErrStoreUnavailable):
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
	default:
		h.logger.Error().Err(err).Msg("unhandled broker error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
