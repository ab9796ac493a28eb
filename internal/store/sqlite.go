package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrDuplicate is returned when a unique constraint (username, email) is violated.
	ErrDuplicate = errors.New("record already exists")
	// ErrNotFound is returned when a scoped lookup or update matches no row.
	ErrNotFound = errors.New("record not found")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        content TEXT NOT NULL,
        is_user BOOLEAN NOT NULL,
        timestamp DATETIME NOT NULL,
        feedback BOOLEAN, -- NULL until feedback is given
        has_feedback BOOLEAN NOT NULL DEFAULT FALSE,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)", username, email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Message methods

func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.Timestamp = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO chat_messages (id, user_id, content, is_user, timestamp, feedback, has_feedback) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.UserID, msg.Content, msg.IsUser, msg.Timestamp, msg.Feedback, msg.HasFeedback)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// GetMessagesByUserID returns the user's conversation in the order it was
// produced. rowid breaks ties between rows written within the same tick.
func (s *SQLiteStore) GetMessagesByUserID(userID int64) ([]Message, error) {
	query := "SELECT id, user_id, content, is_user, timestamp, feedback, has_feedback FROM chat_messages WHERE user_id = ? ORDER BY timestamp ASC, rowid ASC"
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLiteStore) GetLastNMessagesByUserID(userID int64, n int) ([]Message, error) {
	query := `
        SELECT id, user_id, content, is_user, timestamp, feedback, has_feedback
        FROM chat_messages
        WHERE user_id = ?
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?
    `
	rows, err := s.db.Query(query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Restore chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var feedback sql.NullBool
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Content, &msg.IsUser, &msg.Timestamp, &feedback, &msg.HasFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if feedback.Valid {
			msg.Feedback = &feedback.Bool
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessageFeedback records a thumbs-up/down on a message. The update is
// scoped to the owning user so one user cannot mutate another's rows; a miss
// for either reason reports ErrNotFound.
func (s *SQLiteStore) UpdateMessageFeedback(messageID string, userID int64, liked bool) error {
	stmt, err := s.db.Prepare("UPDATE chat_messages SET feedback = ?, has_feedback = TRUE WHERE id = ? AND user_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare feedback update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(liked, messageID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessagesByUserID clears one user's conversation inside a transaction.
func (s *SQLiteStore) DeleteMessagesByUserID(userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chat_messages WHERE user_id = ?", userID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}
	return nil
}
