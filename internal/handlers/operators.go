package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jouyai/dashboard-kel/internal/models"
	"github.com/jouyai/dashboard-kel/internal/store"
)

// minPasswordLength applies to newly created accounts only; existing hashes
// are never re-checked.
const minPasswordLength = 8

// CreateOperatorRequest represents a staff account creation request.
type CreateOperatorRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ListOperators returns all staff accounts, oldest first.
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.store.ListOperators(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Operator{"operators": ops})
}

// CreateOperator creates a staff account. Any authenticated operator can add
// colleagues; the kelurahan staff is small and mutually trusted.
func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req CreateOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		h.Error(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if _, err := h.store.GetOperatorByEmail(r.Context(), req.Email); err == nil {
		h.Error(w, http.StatusConflict, "an account with this email already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	op, err := h.store.CreateOperator(r.Context(), req.Email, strings.TrimSpace(req.Name), string(hash))
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusCreated, op)
}
