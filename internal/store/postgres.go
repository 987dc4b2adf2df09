package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY,
		citizen_name TEXT NOT NULL DEFAULT 'Warga',
		state TEXT NOT NULL DEFAULT 'bot',
		owner TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT UNIQUE NOT NULL,
		session_id UUID NOT NULL REFERENCES chat_sessions(id),
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operator_tokens (
		token TEXT PRIMARY KEY,
		operator_id UUID NOT NULL REFERENCES operators(id),
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS news (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		requirements TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		slug TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON chat_sessions(last_activity_at);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_tokens_operator ON operator_tokens(operator_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession creates a new session in bot state.
func (s *PostgresStore) CreateSession(ctx context.Context, citizenName string) (*models.Session, error) {
	session := &models.Session{
		ID:          uuid.New(),
		CitizenName: citizenName,
		State:       models.StateBot,
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.LastActivityAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, citizen_name, state, owner, created_at, last_activity_at)
		VALUES ($1, $2, $3, NULL, $4, $5)
	`, session.ID, session.CitizenName, string(session.State), session.CreatedAt, session.LastActivityAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	var state string
	err := s.pool.QueryRow(ctx, `
		SELECT id, citizen_name, state, owner, created_at, last_activity_at
		FROM chat_sessions WHERE id = $1
	`, id).Scan(
		&session.ID,
		&session.CitizenName,
		&state,
		&session.Owner,
		&session.CreatedAt,
		&session.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.State = models.SessionState(state)
	return session, nil
}

// ListSessions retrieves all sessions, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, citizen_name, state, owner, created_at, last_activity_at
		FROM chat_sessions
		ORDER BY last_activity_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		var state string
		err := rows.Scan(
			&session.ID,
			&session.CitizenName,
			&state,
			&session.Owner,
			&session.CreatedAt,
			&session.LastActivityAt,
		)
		if err != nil {
			return nil, err
		}
		session.State = models.SessionState(state)
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// EscalateSession moves a bot session into the unclaimed live queue.
func (s *PostgresStore) EscalateSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions
		SET state = $1, last_activity_at = $2
		WHERE id = $3 AND state = $4
	`, string(models.StateLiveUnclaimed), time.Now().UTC(), id, string(models.StateBot))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ClaimSession atomically sets the owner iff the session is still unclaimed.
func (s *PostgresStore) ClaimSession(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions
		SET state = $1, owner = $2, last_activity_at = $3
		WHERE id = $4 AND state = $5
	`, string(models.StateLiveClaimed), owner, time.Now().UTC(), id, string(models.StateLiveUnclaimed))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseSession returns a session to bot state and clears its owner.
func (s *PostgresStore) ReleaseSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions
		SET state = $1, owner = NULL, last_activity_at = $2
		WHERE id = $3
	`, string(models.StateBot), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message and bumps the owning session's activity
// timestamp in the same transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, sender models.Sender, body string) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM chat_sessions WHERE id = $1`, sessionID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Sender:    sender,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, sender, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.SessionID, string(msg.Sender), msg.Body, msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE chat_sessions SET last_activity_at = $1 WHERE id = $2
	`, msg.CreatedAt, sessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a session's messages in append order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, sender, body, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var sender string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &sender, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Sender = models.Sender(sender)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GreetingBodies returns the earliest matching greeting message per session.
func (s *PostgresStore) GreetingBodies(ctx context.Context) (map[uuid.UUID]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, body
		FROM chat_messages
		WHERE sender = $1 AND body ILIKE $2
		ORDER BY seq
	`, string(models.SenderCitizen), GreetingPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	greetings := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		if _, ok := greetings[id]; !ok {
			greetings[id] = body
		}
	}

	return greetings, rows.Err()
}

// GreetingBody returns the earliest matching greeting message for one
// session, or "" when there is none.
func (s *PostgresStore) GreetingBody(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var body string
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM chat_messages
		WHERE session_id = $1 AND sender = $2 AND body ILIKE $3
		ORDER BY seq LIMIT 1
	`, sessionID, string(models.SenderCitizen), GreetingPrefix+"%").Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return body, nil
}

// CreateOperator creates a new operator account.
func (s *PostgresStore) CreateOperator(ctx context.Context, email, name, passwordHash string) (*models.Operator, error) {
	op := &models.Operator{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operators (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, op.ID, op.Email, op.Name, op.PasswordHash, op.CreatedAt)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// GetOperatorByEmail retrieves an operator by email.
func (s *PostgresStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM operators WHERE email = $1
	`, email).Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

// ListOperators retrieves all operator accounts, oldest first.
func (s *PostgresStore) ListOperators(ctx context.Context) ([]models.Operator, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM operators ORDER BY created_at, email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []models.Operator
	for rows.Next() {
		var op models.Operator
		if err := rows.Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// CountOperators returns the number of operator accounts.
func (s *PostgresStore) CountOperators(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count)
	return count, err
}

// SaveToken stores an opaque bearer token for an operator.
func (s *PostgresStore) SaveToken(ctx context.Context, token string, operatorID uuid.UUID, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operator_tokens (token, operator_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, operatorID, expiresAt.UTC())
	return err
}

// GetOperatorByToken resolves an unexpired token to its operator.
func (s *PostgresStore) GetOperatorByToken(ctx context.Context, token string) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.pool.QueryRow(ctx, `
		SELECT o.id, o.email, o.name, o.password_hash, o.created_at
		FROM operator_tokens t
		JOIN operators o ON o.id = t.operator_id
		WHERE t.token = $1 AND t.expires_at > $2
	`, token, time.Now().UTC()).Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

// CreateNews inserts a news post.
func (s *PostgresStore) CreateNews(ctx context.Context, title, body string) (*models.NewsPost, error) {
	post := &models.NewsPost{
		ID:        uuid.New(),
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO news (id, title, body, created_at) VALUES ($1, $2, $3, $4)
	`, post.ID, post.Title, post.Body, post.CreatedAt)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// ListNews retrieves news posts, newest first.
func (s *PostgresStore) ListNews(ctx context.Context) ([]models.NewsPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, body, created_at FROM news ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.NewsPost
	for rows.Next() {
		var post models.NewsPost
		if err := rows.Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// DeleteNews removes a news post.
func (s *PostgresStore) DeleteNews(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM news WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateService inserts a service catalog entry.
func (s *PostgresStore) CreateService(ctx context.Context, name, description, requirements string) (*models.ServiceEntry, error) {
	entry := &models.ServiceEntry{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		Requirements: requirements,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (id, name, description, requirements, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.Name, entry.Description, entry.Requirements, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListServices retrieves service catalog entries, newest first.
func (s *PostgresStore) ListServices(ctx context.Context) ([]models.ServiceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, requirements, created_at
		FROM services ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ServiceEntry
	for rows.Next() {
		var entry models.ServiceEntry
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Description, &entry.Requirements, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteService removes a service catalog entry.
func (s *PostgresStore) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPage creates or fully replaces a static page.
func (s *PostgresStore) UpsertPage(ctx context.Context, slug, title, body string) (*models.Page, error) {
	page := &models.Page{
		Slug:      slug,
		Title:     title,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (slug, title, body, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`, page.Slug, page.Title, page.Body, page.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetPage retrieves a static page by slug.
func (s *PostgresStore) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	page := &models.Page{}
	err := s.pool.QueryRow(ctx, `
		SELECT slug, title, body, updated_at FROM pages WHERE slug = $1
	`, slug).Scan(&page.Slug, &page.Title, &page.Body, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return page, nil
}

// ListPages retrieves all static pages, ordered by slug.
func (s *PostgresStore) ListPages(ctx context.Context) ([]models.Page, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slug, title, body, updated_at FROM pages ORDER BY slug
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var page models.Page
		if err := rows.Scan(&page.Slug, &page.Title, &page.Body, &page.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// DashboardCounts aggregates the console landing-page figures.
func (s *PostgresStore) DashboardCounts(ctx context.Context) (*models.DashboardCounts, error) {
	counts := &models.DashboardCounts{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM news),
			(SELECT COUNT(*) FROM services),
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_sessions WHERE state != $1),
			(SELECT COUNT(*) FROM operators)
	`, string(models.StateBot)).Scan(
		&counts.News,
		&counts.Services,
		&counts.Sessions,
		&counts.LiveSessions,
		&counts.Operators,
	)
	if err != nil {
		return nil, err
	}
	return counts, nil
}
