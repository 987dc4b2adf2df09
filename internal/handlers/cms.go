package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jouyai/dashboard-kel/internal/models"
	"github.com/jouyai/dashboard-kel/internal/store"
)

// CreateNewsRequest represents a news post creation request.
type CreateNewsRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateServiceRequest represents a service catalog entry creation request.
type CreateServiceRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
}

// UpsertPageRequest represents a static page write. Writes replace the page.
type UpsertPageRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ListNews returns published news posts, newest first.
func (h *Handler) ListNews(w http.ResponseWriter, r *http.Request) {
	posts, err := h.store.ListNews(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.NewsPost{"news": posts})
}

// CreateNews publishes a news post.
func (h *Handler) CreateNews(w http.ResponseWriter, r *http.Request) {
	var req CreateNewsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	post, err := h.store.CreateNews(r.Context(), req.Title, req.Body)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusCreated, post)
}

// DeleteNews removes a news post.
func (h *Handler) DeleteNews(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid news ID format")
		return
	}

	if err := h.store.DeleteNews(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "news post not found")
			return
		}
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListServices returns the service catalog, newest first.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListServices(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.ServiceEntry{"services": entries})
}

// CreateService adds a service catalog entry.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	entry, err := h.store.CreateService(r.Context(), req.Name, req.Description, req.Requirements)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusCreated, entry)
}

// DeleteService removes a service catalog entry.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid service ID format")
		return
	}

	if err := h.store.DeleteService(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "service not found")
			return
		}
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPages returns all static pages.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Page{"pages": pages})
}

// GetPage returns one static page by slug.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	page, err := h.store.GetPage(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "page not found")
			return
		}
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, page)
}

// UpsertPage creates or replaces a static page.
func (h *Handler) UpsertPage(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "slug")))
	if slug == "" {
		h.Error(w, http.StatusBadRequest, "page slug is required")
		return
	}

	var req UpsertPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	page, err := h.store.UpsertPage(r.Context(), slug, req.Title, req.Body)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, page)
}
