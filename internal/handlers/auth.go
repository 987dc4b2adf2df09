package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jouyai/dashboard-kel/internal/metrics"
	"github.com/jouyai/dashboard-kel/internal/models"
)

// tokenTTL bounds how long an operator console stays signed in.
const tokenTTL = 12 * time.Hour

// LoginRequest represents the operator login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the operator login response.
type LoginResponse struct {
	Token    string           `json:"token"`
	Operator *models.Operator `json:"operator"`
}

// Login verifies operator credentials and issues an opaque bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	operator, err := h.store.GetOperatorByEmail(r.Context(), req.Email)
	if err != nil {
		metrics.Logins.WithLabelValues("denied").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(req.Password)); err != nil {
		metrics.Logins.WithLabelValues("denied").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := newToken()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if err := h.store.SaveToken(r.Context(), token, operator.ID, time.Now().Add(tokenTTL)); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}

	metrics.Logins.WithLabelValues("ok").Inc()
	h.JSON(w, http.StatusOK, LoginResponse{Token: token, Operator: operator})
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
