package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default backend
// for single-instance deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/dashboard-kel.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/dashboard-kel.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		citizen_name TEXT NOT NULL DEFAULT 'Warga',
		state TEXT NOT NULL DEFAULT 'bot',
		owner TEXT,
		created_at DATETIME NOT NULL,
		last_activity_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id),
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operator_tokens (
		token TEXT PRIMARY KEY,
		operator_id TEXT NOT NULL REFERENCES operators(id),
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS news (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		requirements TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		slug TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON chat_sessions(last_activity_at);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_tokens_operator ON operator_tokens(operator_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession creates a new session in bot state.
func (s *SQLiteStore) CreateSession(ctx context.Context, citizenName string) (*models.Session, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, citizen_name, state, owner, created_at, last_activity_at)
		VALUES (?, ?, ?, NULL, ?, ?)
	`, id.String(), citizenName, string(models.StateBot), now, now)
	if err != nil {
		return nil, err
	}

	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, citizen_name, state, owner, created_at, last_activity_at
		FROM chat_sessions WHERE id = ?
	`, id.String())
	return scanSessionSQLite(row)
}

func scanSessionSQLite(row *sql.Row) (*models.Session, error) {
	session := &models.Session{}
	var idStr, state string
	err := row.Scan(
		&idStr,
		&session.CitizenName,
		&state,
		&session.Owner,
		&session.CreatedAt,
		&session.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.ID = uuid.MustParse(idStr)
	session.State = models.SessionState(state)
	return session, nil
}

// ListSessions retrieves all sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var idStr, state string

		err := rows.Scan(
			&idStr,
			&session.CitizenName,
			&state,
			&session.Owner,
			&session.CreatedAt,
			&session.LastActivityAt,
		)
		if err != nil {
			return nil, err
		}

		session.ID = uuid.MustParse(idStr)
		session.State = models.SessionState(state)
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// EscalateSession moves a bot session into the unclaimed live queue.
func (s *SQLiteStore) EscalateSession(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET state = ?, last_activity_at = ?
		WHERE id = ? AND state = ?
	`, string(models.StateLiveUnclaimed), time.Now().UTC(), id.String(), string(models.StateBot))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish a missing session from a session already live.
	if _, err := s.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ClaimSession is the single conditional write the claim protocol relies on:
// the owner is set only if the session is still unclaimed at the time the
// update executes.
func (s *SQLiteStore) ClaimSession(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET state = ?, owner = ?, last_activity_at = ?
		WHERE id = ? AND state = ?
	`, string(models.StateLiveClaimed), owner, time.Now().UTC(), id.String(), string(models.StateLiveUnclaimed))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseSession returns a session to bot state and clears its owner.
func (s *SQLiteStore) ReleaseSession(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET state = ?, owner = NULL, last_activity_at = ?
		WHERE id = ?
	`, string(models.StateBot), time.Now().UTC(), id.String())
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message and bumps the owning session's activity
// timestamp in the same transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, sender models.Sender, body string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM chat_sessions WHERE id = ?`, sessionID.String()).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, sender, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID.String(), string(msg.Sender), msg.Body, msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE chat_sessions SET last_activity_at = ? WHERE id = ?
	`, msg.CreatedAt, sessionID.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a session's messages in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, body, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var sessStr, sender string

		if err := rows.Scan(&msg.ID, &sessStr, &sender, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.SessionID = uuid.MustParse(sessStr)
		msg.Sender = models.Sender(sender)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GreetingBodies returns the earliest matching greeting message per session.
func (s *SQLiteStore) GreetingBodies(ctx context.Context) (map[uuid.UUID]string, error) {
	// SQLite LIKE is case-insensitive for ASCII, matching the original
	// console's ilike filter.
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, body
		FROM chat_messages
		WHERE sender = ? AND body LIKE ?
		ORDER BY seq
	`, string(models.SenderCitizen), GreetingPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	greetings := make(map[uuid.UUID]string)
	for rows.Next() {
		var sessStr, body string
		if err := rows.Scan(&sessStr, &body); err != nil {
			return nil, err
		}
		id := uuid.MustParse(sessStr)
		if _, ok := greetings[id]; !ok {
			greetings[id] = body
		}
	}

	return greetings, rows.Err()
}

// GreetingBody returns the earliest matching greeting message for one
// session, or "" when there is none.
func (s *SQLiteStore) GreetingBody(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM chat_messages
		WHERE session_id = ? AND sender = ? AND body LIKE ?
		ORDER BY seq LIMIT 1
	`, sessionID.String(), string(models.SenderCitizen), GreetingPrefix+"%").Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return body, nil
}

// CreateOperator creates a new operator account.
func (s *SQLiteStore) CreateOperator(ctx context.Context, email, name, passwordHash string) (*models.Operator, error) {
	op := &models.Operator{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, op.ID.String(), op.Email, op.Name, op.PasswordHash, op.CreatedAt)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// GetOperatorByEmail retrieves an operator by email.
func (s *SQLiteStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	op := &models.Operator{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM operators WHERE email = ?
	`, email).Scan(&idStr, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	op.ID = uuid.MustParse(idStr)
	return op, nil
}

// ListOperators retrieves all operator accounts, oldest first.
func (s *SQLiteStore) ListOperators(ctx context.Context) ([]models.Operator, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var idStr string
		if err := rows.Scan(&idStr, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.ID = uuid.MustParse(idStr)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// CountOperators returns the number of operator accounts.
func (s *SQLiteStore) CountOperators(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count)
	return count, err
}

// SaveToken stores an opaque bearer token for an operator.
func (s *SQLiteStore) SaveToken(ctx context.Context, token string, operatorID uuid.UUID, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_tokens (token, operator_id, expires_at)
		VALUES (?, ?, ?)
	`, token, operatorID.String(), expiresAt.UTC())
	return err
}

// GetOperatorByToken resolves an unexpired token to its operator.
func (s *SQLiteStore) GetOperatorByToken(ctx context.Context, token string) (*models.Operator, error) {
	op := &models.Operator{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.email, o.name, o.password_hash, o.created_at
		FROM operator_tokens t
		JOIN operators o ON o.id = t.operator_id
		WHERE t.token = ? AND t.expires_at > ?
	`, token, time.Now().UTC()).Scan(&idStr, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	op.ID = uuid.MustParse(idStr)
	return op, nil
}

// CreateNews inserts a news post.
func (s *SQLiteStore) CreateNews(ctx context.Context, title, body string) (*models.NewsPost, error) {
	post := &models.NewsPost{
		ID:        uuid.New(),
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news (id, title, body, created_at) VALUES (?, ?, ?, ?)
	`, post.ID.String(), post.Title, post.Body, post.CreatedAt)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// ListNews retrieves news posts, newest first.
func (s *SQLiteStore) ListNews(ctx context.Context) ([]models.NewsPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, body, created_at FROM news ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.NewsPost
	for rows.Next() {
		var post models.NewsPost
		var idStr string
		if err := rows.Scan(&idStr, &post.Title, &post.Body, &post.CreatedAt); err != nil {
			return nil, err
		}
		post.ID = uuid.MustParse(idStr)
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// DeleteNews removes a news post.
func (s *SQLiteStore) DeleteNews(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM news WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateService inserts a service catalog entry.
func (s *SQLiteStore) CreateService(ctx context.Context, name, description, requirements string) (*models.ServiceEntry, error) {
	entry := &models.ServiceEntry{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		Requirements: requirements,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, requirements, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID.String(), entry.Name, entry.Description, entry.Requirements, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListServices retrieves service catalog entries, newest first.
func (s *SQLiteStore) ListServices(ctx context.Context) ([]models.ServiceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var idStr string
		if err := rows.Scan(&idStr, &entry.Name, &entry.Description, &entry.Requirements, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ID = uuid.MustParse(idStr)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteService removes a service catalog entry.
func (s *SQLiteStore) DeleteService(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPage creates or fully replaces a static page.
func (s *SQLiteStore) UpsertPage(ctx context.Context, slug, title, body string) (*models.Page, error) {
	page := &models.Page{
		Slug:      slug,
		Title:     title,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (slug, title, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, page.Slug, page.Title, page.Body, page.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetPage retrieves a static page by slug.
func (s *SQLiteStore) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	page := &models.Page{}
	err := s.db.QueryRowContext(ctx, `
		SELECT slug, title, body, updated_at FROM pages WHERE slug = ?
	`, slug).Scan(&page.Slug, &page.Title, &page.Body, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return page, nil
}

// ListPages retrieves all static pages, ordered by slug.
func (s *SQLiteStore) ListPages(ctx context.Context) ([]models.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *SQLiteStore) DashboardCounts(ctx context.Context) (*models.DashboardCounts, error) {
	counts := &models.DashboardCounts{}
	queries := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&counts.News, `SELECT COUNT(*) FROM news`, nil},
		{&counts.Services, `SELECT COUNT(*) FROM services`, nil},
		{&counts.Sessions, `SELECT COUNT(*) FROM chat_sessions`, nil},
		{&counts.LiveSessions, `SELECT COUNT(*) FROM chat_sessions WHERE state != ?`, []any{string(models.StateBot)}},
		{&counts.Operators, `SELECT COUNT(*) FROM operators`, nil},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return counts, nil
}
