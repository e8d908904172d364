package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/doclens/internal/domain"
)

// SessionRepository handles session persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session
func (r *SessionRepository) Create(session *domain.Session) error {
	if session.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		session.ID = id.String()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO sessions (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, session.ID, session.CreatedAt, session.UpdatedAt)

	return err
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(id string) (*domain.Session, error) {
	session := &domain.Session{}

	err := r.db.QueryRow(`
		SELECT id, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Update updates a session's updated_at timestamp
func (r *SessionRepository) Update(id string) error {
	_, err := r.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// SaveMessage inserts a message or replaces the stored copy with the same ID
func (r *SessionRepository) SaveMessage(message *domain.ChatMessage) error {
	citationsJSON, err := json.Marshal(message.Citations)
	if err != nil {
		return fmt.Errorf("failed to encode citations: %w", err)
	}

	var timestamp sql.NullTime
	if message.Timestamp != nil {
		timestamp = sql.NullTime{Time: *message.Timestamp, Valid: true}
	}

	_, err = r.db.Exec(`
		INSERT INTO messages (id, session_id, sender, status, text, citations, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			text = excluded.text,
			citations = excluded.citations,
			timestamp = excluded.timestamp
	`, message.ID, message.SessionID, string(message.Sender), message.Status, message.Text,
		string(citationsJSON), timestamp, time.Now())

	return err
}

// GetMessages retrieves all messages for a session in insertion order
func (r *SessionRepository) GetMessages(sessionID string) ([]domain.ChatMessage, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, sender, status, text, citations, timestamp
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var (
			message       domain.ChatMessage
			sender        string
			citationsJSON sql.NullString
			timestamp     sql.NullTime
		)

		if err := rows.Scan(&message.ID, &message.SessionID, &sender, &message.Status,
			&message.Text, &citationsJSON, &timestamp); err != nil {
			return nil, err
		}
		message.Sender = domain.Sender(sender)

		if citationsJSON.Valid && citationsJSON.String != "" {
			if err := json.Unmarshal([]byte(citationsJSON.String), &message.Citations); err != nil {
				return nil, fmt.Errorf("failed to decode citations of message %s: %w", message.ID, err)
			}
		}
		if timestamp.Valid {
			ts := timestamp.Time
			message.Timestamp = &ts
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// CountQuestions returns the total number of user messages
func (r *SessionRepository) CountQuestions() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE sender = ?`, string(domain.SenderUser)).Scan(&count)
	return count, err
}

// Count returns the number of sessions
func (r *SessionRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}
