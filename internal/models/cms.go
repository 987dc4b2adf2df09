package models

import (
	"time"

	"github.com/google/uuid"
)

// NewsPost is a published announcement on the public site.
type NewsPost struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceEntry is one row of the public service catalog (layanan).
type ServiceEntry struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Requirements string    `json:"requirements"`
	CreatedAt    time.Time `json:"created_at"`
}

// Page is a static public-site page (profil, visi-misi, ...) edited from the
// console. Keyed by slug; writes replace the whole page.
type Page struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DashboardCounts are the figures shown on the console's landing page.
type DashboardCounts struct {
	News         int64 `json:"news"`
	Services     int64 `json:"services"`
	Sessions     int64 `json:"sessions"`
	LiveSessions int64 `json:"live_sessions"` // waiting or claimed
	Operators    int64 `json:"operators"`
}
