package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"FridayChat/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a session or account does not exist.
var ErrNotFound = errors.New("not found")

// Account is a registered user. Signup and credential handling live outside
// this service; accounts are only ever read here, to link sessions to an owner.
type Account struct {
	ID       string
	Username string
	FullName string
	Email    string
}

// Store persists sessions and their messages in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE,
		full_name TEXT,
		email TEXT UNIQUE,
		phone TEXT,
		created_at DATETIME
	);`

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		email TEXT,
		user_id TEXT,
		title TEXT,
		created_at DATETIME,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	for _, stmt := range []string{createUsersTable, createSessionsTable, createMessagesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// newID generates an opaque session identifier.
func newID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateSession creates a session owned by email, seeded with the first user
// message, and returns its identifier. userID may be empty when the email did
// not resolve to a registered account; the session is still created with a
// null owner link.
func (s *Store) CreateSession(email, userID, title string, first session.Message) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := newID()
	owner := sql.NullString{String: userID, Valid: userID != ""}

	_, err = tx.Exec(
		"INSERT INTO sessions (id, email, user_id, title, created_at) VALUES (?, ?, ?, ?, ?)",
		id, email, owner, title, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		id, first.Role, first.Text, first.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("failed to seed session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// AppendMessage appends one message to an existing session.
func (s *Store) AppendMessage(sessionID string, msg session.Message) error {
	_, err := s.db.Exec(
		"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		sessionID, msg.Role, msg.Text, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// GetMessages returns a session's messages in append order. It returns
// ErrNotFound if the session does not exist.
func (s *Store) GetMessages(sessionID string) ([]session.Message, error) {
	var exists int
	err := s.db.QueryRow("SELECT COUNT(1) FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(
		"SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []session.Message{}
	for rows.Next() {
		var msg session.Message
		if err := rows.Scan(&msg.Role, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListSessions returns summaries of all sessions owned by email, newest first.
func (s *Store) ListSessions(email string) ([]session.Summary, error) {
	rows, err := s.db.Query(
		"SELECT id, title, created_at FROM sessions WHERE email = ? ORDER BY created_at DESC",
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []session.Summary{}
	for rows.Next() {
		var sum session.Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindAccountByEmail resolves an email to a registered account. It returns
// ErrNotFound when no account matches.
func (s *Store) FindAccountByEmail(email string) (Account, error) {
	var acc Account
	err := s.db.QueryRow(
		"SELECT id, username, full_name, email FROM users WHERE email = ?",
		email,
	).Scan(&acc.ID, &acc.Username, &acc.FullName, &acc.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to look up account: %w", err)
	}
	return acc, nil
}
