package handlers

import "net/http"

// Stats returns the console landing-page counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.DashboardCounts(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable, please retry")
		return
	}
	h.JSON(w, http.StatusOK, counts)
}
