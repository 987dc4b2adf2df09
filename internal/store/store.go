package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("store: not found")

// GreetingPrefix is the fixed opening line the public chat widget sends when
// a citizen picks a topic. Topic extraction scans for it (case-insensitive).
const GreetingPrefix = "Halo, saya ingin bertanya mengenai "

// DataStore defines the interface for durable storage of chat sessions,
// messages, operators and CMS tables. Both PostgresStore and SQLiteStore
// implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Session registry
	CreateSession(ctx context.Context, citizenName string) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// ListSessions returns all sessions ordered by last activity, newest first.
	ListSessions(ctx context.Context) ([]models.Session, error)
	// EscalateSession moves a session from bot to the unclaimed live queue.
	// Returns false without error if the session was not in bot state.
	EscalateSession(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimSession atomically sets the owner iff the session is currently
	// unclaimed. Returns false without error if the conditional update did
	// not apply; callers inspect the session to find out why.
	ClaimSession(ctx context.Context, id uuid.UUID, owner string) (bool, error)
	// ReleaseSession unconditionally returns a session to bot state and
	// clears its owner.
	ReleaseSession(ctx context.Context, id uuid.UUID) error

	// Message log (append-only)
	AppendMessage(ctx context.Context, sessionID uuid.UUID, sender models.Sender, body string) (*models.Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	// GreetingBodies returns, per session, the earliest citizen message that
	// starts with GreetingPrefix. Sessions without one are absent.
	GreetingBodies(ctx context.Context) (map[uuid.UUID]string, error)
	// GreetingBody returns the earliest such message for one session, or ""
	// when the session has none.
	GreetingBody(ctx context.Context, sessionID uuid.UUID) (string, error)

	// Operators
	CreateOperator(ctx context.Context, email, name, passwordHash string) (*models.Operator, error)
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	ListOperators(ctx context.Context) ([]models.Operator, error)
	CountOperators(ctx context.Context) (int64, error)
	SaveToken(ctx context.Context, token string, operatorID uuid.UUID, expiresAt time.Time) error
	GetOperatorByToken(ctx context.Context, token string) (*models.Operator, error)

	// CMS tables
	CreateNews(ctx context.Context, title, body string) (*models.NewsPost, error)
	ListNews(ctx context.Context) ([]models.NewsPost, error)
	DeleteNews(ctx context.Context, id uuid.UUID) error
	CreateService(ctx context.Context, name, description, requirements string) (*models.ServiceEntry, error)
	ListServices(ctx context.Context) ([]models.ServiceEntry, error)
	DeleteService(ctx context.Context, id uuid.UUID) error
	UpsertPage(ctx context.Context, slug, title, body string) (*models.Page, error)
	GetPage(ctx context.Context, slug string) (*models.Page, error)
	ListPages(ctx context.Context) ([]models.Page, error)

	// DashboardCounts aggregates the console landing-page figures.
	DashboardCounts(ctx context.Context) (*models.DashboardCounts, error)
}
